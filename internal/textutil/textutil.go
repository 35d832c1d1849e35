// Package textutil tokenizes rephrase input, enumerates its n-gram segments
// and extracts the short left/right context windows used for language-model
// scoring.
package textutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultContextWords is the number of context tokens kept on each side
	// of the span to rephrase.
	DefaultContextWords = 4

	// FieldSeparator splits interactive input of the form
	// "prefix || text || suffix".
	FieldSeparator = "||"
)

// Segment is a contiguous, inclusive token span [Start, End] and its text.
type Segment struct {
	Text  string
	Start int
	End   int
}

// Len returns the number of tokens covered.
func (s Segment) Len() int {
	return s.End - s.Start + 1
}

// Normalize trims whitespace and applies Unicode NFC normalization so that
// equal phrases produce equal cache keys.
func Normalize(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// Tokens splits text on runs of whitespace.
func Tokens(text string) []string {
	return strings.Fields(text)
}

// NGrams returns every segment of exactly n tokens, in start order.
func NGrams(tokens []string, n int) []Segment {
	if n <= 0 || n > len(tokens) {
		return nil
	}
	segments := make([]Segment, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		segments = append(segments, Segment{
			Text:  strings.Join(tokens[i:i+n], " "),
			Start: i,
			End:   i + n - 1,
		})
	}
	return segments
}

// AllNGrams returns the segments for n = 1..len(tokens), shortest first.
func AllNGrams(tokens []string) []Segment {
	var all []Segment
	for n := 1; n <= len(tokens); n++ {
		all = append(all, NGrams(tokens, n)...)
	}
	return all
}

// LastWords returns the last count tokens of text joined by single spaces.
// If count ≤ 0, DefaultContextWords is used.
func LastWords(text string, count int) string {
	if count <= 0 {
		count = DefaultContextWords
	}
	words := strings.Fields(text)
	if len(words) > count {
		words = words[len(words)-count:]
	}
	return strings.Join(words, " ")
}

// FirstWords returns the first count tokens of text joined by single spaces.
// If count ≤ 0, DefaultContextWords is used.
func FirstWords(text string, count int) string {
	if count <= 0 {
		count = DefaultContextWords
	}
	words := strings.Fields(text)
	if len(words) > count {
		words = words[:count]
	}
	return strings.Join(words, " ")
}

// Input is a parsed rephrase request.
type Input struct {
	Text   string
	Prefix string
	Suffix string
}

// ParseInput accepts either plain text or "prefix || text || suffix". With
// separators present, the prefix is reduced to its last window tokens and the
// suffix to its first window tokens. A missing suffix field is treated as
// empty.
func ParseInput(line string, window int) Input {
	parts := strings.Split(line, FieldSeparator)
	if len(parts) < 2 {
		return Input{Text: Normalize(line)}
	}

	in := Input{
		Text:   Normalize(parts[1]),
		Prefix: LastWords(Normalize(parts[0]), window),
	}
	if len(parts) > 2 {
		in.Suffix = FirstWords(Normalize(parts[2]), window)
	}
	return in
}
