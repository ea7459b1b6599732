// Package app wires the registry, tracker and HTTP surface together.
package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resource-tracker/internal/config"
	"resource-tracker/internal/filter"
	"resource-tracker/internal/handler"
	"resource-tracker/internal/middleware"
	"resource-tracker/internal/model"
	"resource-tracker/internal/registry"
	"resource-tracker/internal/tracker"
)

// App holds the assembled components.
type App struct {
	Registry       *registry.Registry
	Tracker        *tracker.Tracker
	Mux            http.Handler
	RequestTimeout time.Duration
}

// New builds the application from configuration, registers the seed
// resources and opens the tracker.
func New(cfg config.Config) (*App, error) {
	reg := registry.New()

	for i, s := range cfg.Seeds {
		obj := model.ResourceInfo{Name: s.Name, Ranking: s.Ranking, Properties: s.Properties}
		if _, err := reg.Register(s.Name, s.Ranking, s.Properties, obj); err != nil {
			return nil, fmt.Errorf("seed %d: %w", i, err)
		}
	}

	promReg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(promReg)

	var (
		tr  *tracker.Tracker
		err error
	)
	if cfg.TrackName != "" {
		tr, err = tracker.NewForName(reg, cfg.TrackName, nil)
	} else {
		var f *filter.Filter
		f, err = filter.Parse(cfg.Criterion)
		if err == nil {
			tr, err = tracker.New(reg, f, nil)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("build tracker: %w", err)
	}
	middleware.TrackedGauge(promReg, tr.Size)
	if err := tr.Open(); err != nil {
		return nil, fmt.Errorf("open tracker: %w", err)
	}

	h := handler.New(reg, tr, cfg.RequestTimeout)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	return &App{
		Registry:       reg,
		Tracker:        tr,
		Mux:            metrics.Instrument(middleware.Logging(tr.Size, mux)),
		RequestTimeout: cfg.RequestTimeout,
	}, nil
}

// Close shuts the application down: the tracker first, so removal
// callbacks still reach the customizer, then the registry.
func (a *App) Close() {
	a.Tracker.Close()
	a.Registry.Stop()
}
