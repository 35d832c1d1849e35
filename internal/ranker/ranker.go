// Package ranker rescores lattice paraphrases with an external language
// model and produces the final ordering.
package ranker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/valpere/rephraser/internal"
	"github.com/valpere/rephraser/internal/metrics"
)

const DefaultTopN = 30

// ErrNoTotal is returned when an LM response carries no "Total: <number>".
var ErrNoTotal = errors.New("language model response has no Total field")

var totalPattern = regexp.MustCompile(`Total: ([-+]?[\d.]+(?:[eE][-+]?\d+)?)`)

// Scorer sends one probe line to the language model and returns its reply.
type Scorer interface {
	QueryScalarLine(ctx context.Context, request string) (string, error)
}

type Ranker struct {
	lm      Scorer
	topN    int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(lm Scorer, topN int, logger *slog.Logger, m *metrics.Metrics) *Ranker {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Ranker{lm: lm, topN: topN, logger: logger, metrics: m}
}

// ParseTotal extracts the LM total from a response line.
func ParseTotal(line string) (float64, error) {
	match := totalPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, ErrNoTotal
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoTotal, err)
	}
	return v, nil
}

// Probe is the text sent to the language model for one candidate.
func Probe(prefix, candidate, suffix string) string {
	return prefix + " " + candidate + " " + suffix
}

// SortByScore returns candidates ordered by descending score, ties broken by
// text.
func SortByScore(candidates map[string]float64) []internal.Paraphrase {
	out := make([]internal.Paraphrase, 0, len(candidates))
	for text, score := range candidates {
		out = append(out, internal.Paraphrase{Text: text, Score: score})
	}
	slices.SortFunc(out, func(a, b internal.Paraphrase) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Text, b.Text)
	})
	return out
}

// Rank rescores the topN best candidates in context. Candidates whose LM
// response cannot be parsed are dropped; engine errors abort the ranking.
func (r *Ranker) Rank(ctx context.Context, candidates map[string]float64, prefix, suffix string) ([]internal.Paraphrase, error) {
	sorted := SortByScore(candidates)
	if len(sorted) > r.topN {
		sorted = sorted[:r.topN]
	}

	rescored := make(map[string]float64, len(sorted))
	for _, c := range sorted {
		line, err := r.lm.QueryScalarLine(ctx, Probe(prefix, c.Text, suffix))
		if err != nil {
			return nil, fmt.Errorf("language model scoring %q: %w", c.Text, err)
		}
		total, err := ParseTotal(line)
		if err != nil {
			r.metrics.LMDropped.Inc()
			r.logger.Debug("dropping candidate", "candidate", c.Text, "response", line, "error", err)
			continue
		}
		rescored[c.Text] = total + c.Score
	}

	ranked := SortByScore(rescored)
	r.metrics.RankedOutputs.Observe(float64(len(ranked)))
	return ranked, nil
}
