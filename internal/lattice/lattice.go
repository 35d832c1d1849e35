// Package lattice combines per-segment paraphrase candidates into
// paraphrases of the whole input. Segments are chained strictly left to
// right with no gaps, overlaps or reordering.
package lattice

import (
	"github.com/valpere/rephraser/internal"
)

// Lattice groups candidates by the token position where their span starts.
type Lattice struct {
	size    int
	byStart [][]internal.Candidate
}

// Build places each candidate at its start position. Candidates whose span
// is empty, negative or runs past the input are ignored.
func Build(candidates []internal.Candidate, size int) *Lattice {
	l := &Lattice{
		size:    size,
		byStart: make([][]internal.Candidate, size),
	}
	for _, c := range candidates {
		if c.Start < 0 || c.End < c.Start || c.End >= size {
			continue
		}
		l.byStart[c.Start] = append(l.byStart[c.Start], c)
	}
	return l
}

func (l *Lattice) Size() int { return l.size }

// At returns the candidates starting at position i.
func (l *Lattice) At(i int) []internal.Candidate {
	if i < 0 || i >= l.size {
		return nil
	}
	return l.byStart[i]
}

// Decode fills, for every start position i, the map of paraphrase text to
// cumulative score over tilings of [i, size-1]. Positions are filled from the
// right so that each one reuses the completed map of every position after
// it. When two tilings produce the same text the later one wins.
func (l *Lattice) Decode() []map[string]float64 {
	states := make([]map[string]float64, l.size)
	for i := l.size - 1; i >= 0; i-- {
		state := make(map[string]float64)
		for _, c := range l.byStart[i] {
			next := c.End + 1
			if next == l.size {
				state[c.Text] = c.Score
				continue
			}
			for text, score := range states[next] {
				state[c.Text+" "+text] = c.Score + score
			}
		}
		states[i] = state
	}
	return states
}

// Combine returns every full-coverage paraphrase of the input with its
// additive score, excluding the original text itself.
func Combine(candidates []internal.Candidate, size int, original string) map[string]float64 {
	out := make(map[string]float64)
	if size <= 0 {
		return out
	}
	states := Build(candidates, size).Decode()
	for text, score := range states[0] {
		if text == original {
			continue
		}
		out[text] = score
	}
	return out
}
