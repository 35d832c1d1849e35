package pivot

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldDelimiter separates the columns of a phrase-table response line.
const FieldDelimiter = "|||"

// ErrMalformedLine is matched by every *ParseError.
var ErrMalformedLine = errors.New("malformed phrase-table line")

// ParseError describes a response line that was skipped.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s: %q", ErrMalformedLine, e.Reason, e.Line)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedLine
}

// Entry is one parsed phrase-table row: Source translates to Target with
// Score = log10(p(e|f) * p(f|e)).
type Entry struct {
	Source string
	Target string
	Score  float64
}

// ParseLine parses "phrase ||| translation ||| s0 s1 s2 s3 ...". The score
// block is split on single spaces, so the usual leading space yields an empty
// element 0 and the two phrase probabilities sit at indexes 1 and 3.
func ParseLine(line string) (Entry, error) {
	fields := strings.Split(line, FieldDelimiter)
	if len(fields) < 3 {
		return Entry{}, &ParseError{Line: line, Reason: fmt.Sprintf("expected 3 fields, got %d", len(fields))}
	}

	target := strings.TrimSpace(fields[1])
	if target == "" {
		return Entry{}, &ParseError{Line: line, Reason: "empty translation"}
	}

	scores := strings.Split(fields[2], " ")
	if len(scores) < 4 {
		return Entry{}, &ParseError{Line: line, Reason: "score block too short"}
	}
	pef, err := strconv.ParseFloat(scores[1], 64)
	if err != nil {
		return Entry{}, &ParseError{Line: line, Reason: "bad p(e|f): " + err.Error()}
	}
	pfe, err := strconv.ParseFloat(scores[3], 64)
	if err != nil {
		return Entry{}, &ParseError{Line: line, Reason: "bad p(f|e): " + err.Error()}
	}

	product := pef * pfe
	if !(product > 0) || math.IsInf(product, 0) {
		return Entry{}, &ParseError{Line: line, Reason: "probability product not positive and finite"}
	}

	return Entry{
		Source: strings.TrimSpace(fields[0]),
		Target: target,
		Score:  math.Log10(product),
	}, nil
}
