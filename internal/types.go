package internal

import "time"

// Candidate is a paraphrase of the input span [Start, End] (inclusive token
// positions). Score is an additive log10 value, not a probability.
type Candidate struct {
	Text  string  `json:"text"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// Paraphrase is one entry of the final ranked output.
type Paraphrase struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type RephraseRequest struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Prefix    string    `json:"prefix"`
	Suffix    string    `json:"suffix"`
	Timestamp time.Time `json:"timestamp"`
}
