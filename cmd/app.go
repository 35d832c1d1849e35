/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/rephraser/internal"
	"github.com/valpere/rephraser/internal/cache"
	"github.com/valpere/rephraser/internal/detector"
	"github.com/valpere/rephraser/internal/engine"
	"github.com/valpere/rephraser/internal/metrics"
	"github.com/valpere/rephraser/internal/orchestrator"
	"github.com/valpere/rephraser/internal/pivot"
	"github.com/valpere/rephraser/internal/ranker"
	"github.com/valpere/rephraser/internal/rephraser"
	"github.com/valpere/rephraser/internal/store"
	"github.com/valpere/rephraser/internal/textutil"
)

// app holds everything one command invocation needs: the three engine
// clients, the rephrasing service and the optional history store.
type app struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	engines []*engine.Client
	orch    *orchestrator.Orchestrator
	service *rephraser.Service
	db      *store.Store
	server  *http.Server
}

func newApp(cfg Config, withHistory bool) (*app, error) {
	a := &app{cfg: cfg, logger: slog.Default()}

	reg := prometheus.NewRegistry()
	a.metrics = metrics.New(reg)
	if cfg.MetricsAddr != "" {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.serveMetrics(reg)
	}

	forward := engine.New(cfg.engineConfig("forward", cfg.Engines.Forward.Command), a.logger, a.metrics)
	backward := engine.New(cfg.engineConfig("backward", cfg.Engines.Backward.Command), a.logger, a.metrics)
	lm := engine.New(cfg.engineConfig("lm", cfg.Engines.LM.Command), a.logger, a.metrics)
	a.engines = []*engine.Client{forward, backward, lm}
	a.orch = orchestrator.New([]orchestrator.Engine{forward, backward, lm}, orchestrator.OrchestratorConfig{
		Timeout: cfg.Engines.WarmTimeout,
	})

	segmentCache, err := cache.New(cfg.Cache.Size)
	if err != nil {
		return nil, err
	}
	pipeline := pivot.NewPipeline(forward, backward, segmentCache, cfg.Pipeline, a.logger, a.metrics)
	rank := ranker.New(lm, cfg.Ranker.TopN, a.logger, a.metrics)

	opts := rephraser.Options{
		Logger:     a.logger,
		Metrics:    a.metrics,
		SourceLang: cfg.Language.Source,
	}
	if cfg.Language.Check {
		d, err := detector.New()
		if err != nil {
			return nil, err
		}
		opts.Checker = d
	}
	a.service = rephraser.New(pipeline, rank, opts)

	if withHistory && cfg.History.Enabled {
		db, err := openStore(cfg.History.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = db
	}
	return a, nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	a.server = &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "addr", a.cfg.MetricsAddr, "error", err)
		}
	}()
}

// rephrase runs one request and records it in the history store.
func (a *app) rephrase(ctx context.Context, in textutil.Input) ([]internal.Paraphrase, error) {
	results, err := a.service.GenerateParaphrases(ctx, in.Text, in.Prefix, in.Suffix)
	if err != nil {
		return nil, err
	}

	if a.db != nil {
		req := internal.RephraseRequest{
			ID:        uuid.New().String(),
			Text:      in.Text,
			Prefix:    in.Prefix,
			Suffix:    in.Suffix,
			Timestamp: time.Now(),
		}
		if err := a.db.SaveRequest(ctx, req); err != nil {
			a.logger.Warn("failed to save request history", "error", err)
		} else if err := a.db.SaveResults(ctx, req.ID, results); err != nil {
			a.logger.Warn("failed to save result history", "error", err)
		}
	}
	return results, nil
}

func (a *app) Close() {
	for _, e := range a.engines {
		_ = e.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
}
