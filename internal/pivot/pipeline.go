// Package pivot generates paraphrase candidates for input segments by
// translating them into a pivot language and back through two phrase-table
// engines.
package pivot

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/valpere/rephraser/internal"
	"github.com/valpere/rephraser/internal/cache"
	"github.com/valpere/rephraser/internal/metrics"
	"github.com/valpere/rephraser/internal/textutil"
)

const (
	DefaultFullSpanKeep    = 10
	DefaultPartialSpanKeep = 5
	DefaultOOVScore        = -99.999
)

// Querier sends one phrase to a phrase-table engine and returns its raw
// response lines.
type Querier interface {
	Query(ctx context.Context, request string) ([]string, error)
}

type Config struct {
	// FullSpanKeep candidates are kept for a segment covering the whole
	// input, PartialSpanKeep for any shorter one.
	FullSpanKeep    int     `mapstructure:"full_span_keep"`
	PartialSpanKeep int     `mapstructure:"partial_span_keep"`
	OOVScore        float64 `mapstructure:"oov_score"`
}

func DefaultConfig() Config {
	return Config{
		FullSpanKeep:    DefaultFullSpanKeep,
		PartialSpanKeep: DefaultPartialSpanKeep,
		OOVScore:        DefaultOOVScore,
	}
}

type Pipeline struct {
	forward  Querier
	backward Querier
	cache    *cache.Cache
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics

	group singleflight.Group
}

func NewPipeline(forward, backward Querier, c *cache.Cache, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.FullSpanKeep <= 0 {
		cfg.FullSpanKeep = DefaultFullSpanKeep
	}
	if cfg.PartialSpanKeep <= 0 {
		cfg.PartialSpanKeep = DefaultPartialSpanKeep
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Pipeline{
		forward:  forward,
		backward: backward,
		cache:    c,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// Candidates returns the pruned candidates of every n-gram of tokens, one
// entry per (segment, candidate) pair, each annotated with its span.
func (p *Pipeline) Candidates(ctx context.Context, tokens []string) ([]internal.Candidate, error) {
	var out []internal.Candidate
	for _, seg := range textutil.AllNGrams(tokens) {
		ranked, err := p.segment(ctx, seg, len(tokens))
		if err != nil {
			return nil, err
		}
		for _, r := range ranked {
			out = append(out, internal.Candidate{
				Text:  r.text,
				Start: seg.Start,
				End:   seg.End,
				Score: r.score,
			})
		}
	}
	return out, nil
}

type scored struct {
	text  string
	score float64
}

func (p *Pipeline) segment(ctx context.Context, seg textutil.Segment, inputSize int) ([]scored, error) {
	if cached, ok := p.cache.Get(seg.Text); ok {
		p.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return rank(cached), nil
	}
	p.metrics.CacheLookups.WithLabelValues("miss").Inc()

	keep := p.cfg.PartialSpanKeep
	if seg.Len() == inputSize {
		keep = p.cfg.FullSpanKeep
	}

	// Concurrent requests for the same segment share one engine round.
	key := fmt.Sprintf("%d\x00%s", keep, seg.Text)
	v, err, _ := p.group.Do(key, func() (any, error) {
		found, err := p.lookup(ctx, seg.Text)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 && seg.Len() == 1 {
			p.logger.Debug("out-of-vocabulary token", "token", seg.Text)
			found[seg.Text] = p.cfg.OOVScore
		}

		ranked := rank(found)
		if len(ranked) > keep {
			ranked = ranked[:keep]
		}
		if len(ranked) > 0 {
			pruned := make(cache.Candidates, len(ranked))
			for _, r := range ranked {
				pruned[r.text] = r.score
			}
			p.cache.Merge(seg.Text, pruned)
		}
		return ranked, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]scored), nil
}

// lookup translates phrase into the pivot language and back, scoring each
// round trip as the sum of both directions' log10 scores. Later duplicates
// overwrite earlier ones.
func (p *Pipeline) lookup(ctx context.Context, phrase string) (cache.Candidates, error) {
	lines, err := p.forward.Query(ctx, phrase)
	if err != nil {
		return nil, fmt.Errorf("forward lookup %q: %w", phrase, err)
	}

	pivotScores := make(map[string]float64)
	var pivots []string
	for _, line := range lines {
		e, err := ParseLine(line)
		if err != nil {
			p.skip("forward", err)
			continue
		}
		if _, seen := pivotScores[e.Target]; !seen {
			pivots = append(pivots, e.Target)
		}
		pivotScores[e.Target] = e.Score
	}

	found := make(cache.Candidates)
	for _, pivot := range pivots {
		lines, err := p.backward.Query(ctx, pivot)
		if err != nil {
			return nil, fmt.Errorf("backward lookup %q: %w", pivot, err)
		}
		for _, line := range lines {
			e, err := ParseLine(line)
			if err != nil {
				p.skip("backward", err)
				continue
			}
			found[e.Target] = e.Score + pivotScores[pivot]
		}
	}
	return found, nil
}

func (p *Pipeline) skip(stage string, err error) {
	p.metrics.ParseFailures.WithLabelValues(stage).Inc()
	p.logger.Debug("skipping phrase-table line", "stage", stage, "error", err)
}

// rank orders candidates by descending score, breaking ties by text.
func rank(c cache.Candidates) []scored {
	out := make([]scored, 0, len(c))
	for text, score := range c {
		out = append(out, scored{text: text, score: score})
	}
	slices.SortFunc(out, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return strings.Compare(a.text, b.text)
	})
	return out
}
