// Package rephraser generates ranked paraphrases of an input text by
// pivoting its segments through a second language and rescoring the
// combined results with a language model.
package rephraser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valpere/rephraser/internal"
	"github.com/valpere/rephraser/internal/lattice"
	"github.com/valpere/rephraser/internal/metrics"
	"github.com/valpere/rephraser/internal/pivot"
	"github.com/valpere/rephraser/internal/ranker"
	"github.com/valpere/rephraser/internal/textutil"
)

// LanguageChecker flags input that is not in the expected language.
type LanguageChecker interface {
	Mismatch(text, expectedISO string) (string, bool)
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Checker, when set, logs a warning for input detected as a language
	// other than SourceLang. It never blocks a request.
	Checker    LanguageChecker
	SourceLang string
}

type Service struct {
	pipeline *pivot.Pipeline
	ranker   *ranker.Ranker
	opts     Options
}

func New(pipeline *pivot.Pipeline, r *ranker.Ranker, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	return &Service{pipeline: pipeline, ranker: r, opts: opts}
}

// GenerateParaphrases returns paraphrases of text ordered by descending
// score. prefix and suffix are the surrounding context used for language
// model scoring and may be empty. An input with no paraphrases yields an
// empty result, not an error.
func (s *Service) GenerateParaphrases(ctx context.Context, text, prefix, suffix string) ([]internal.Paraphrase, error) {
	start := time.Now()
	tokens := textutil.Tokens(textutil.Normalize(text))
	if len(tokens) == 0 {
		return nil, nil
	}
	original := strings.Join(tokens, " ")
	logger := s.opts.Logger.With("input", original)

	if s.opts.Checker != nil {
		if lang, mismatch := s.opts.Checker.Mismatch(original, s.opts.SourceLang); mismatch {
			logger.Warn("input does not look like the source language", "detected", lang, "expected", s.opts.SourceLang)
		}
	}

	candidates, err := s.pipeline.Candidates(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to collect segment candidates: %w", err)
	}

	combined := lattice.Combine(candidates, len(tokens), original)
	s.opts.Metrics.LatticeOutputs.Observe(float64(len(combined)))
	logger.Debug("lattice decoded", "segment_candidates", len(candidates), "paraphrases", len(combined))

	ranked, err := s.ranker.Rank(ctx, combined, prefix, suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to rank paraphrases: %w", err)
	}
	logger.Info("paraphrases ranked", "count", len(ranked), "elapsed", time.Since(start))
	return ranked, nil
}
