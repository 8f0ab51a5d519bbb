// File: internal/taint/engine.go
package taint

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/faultline-sec/faultline/internal/config"
	"github.com/faultline-sec/faultline/internal/factstore"
)

// Engine runs one discovery pass over an immutable fact snapshot. It never
// mutates the store; every discovery method is a pure read transform, which
// is what allows them to run in parallel on independent pool connections.
type Engine struct {
	store    *factstore.Store
	registry *Registry
	cfg      config.DiscoveryConfig
	log      *zap.Logger
}

// NewEngine wires a discovery engine. The registry is mandatory; an empty
// one is valid and discovers nothing for pattern-driven categories.
func NewEngine(store *factstore.Store, registry *Registry, cfg config.DiscoveryConfig, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("taint engine requires a fact store")
	}
	if registry == nil {
		return nil, fmt.Errorf("taint engine requires a pattern registry")
	}
	return &Engine{
		store:    store,
		registry: registry,
		cfg:      cfg,
		log:      logger.Named("TaintEngine"),
	}, nil
}

// Run executes a full analysis pass: sources, sinks and sanitizers are
// discovered concurrently, then the safe-sink filter prunes the sink set,
// then the cross-boundary connector resolves the surviving api_call sinks.
func (e *Engine) Run(ctx context.Context) (*Results, error) {
	runID := uuid.New().String()[:8]
	runLog := e.log.With(zap.String("run_id", runID))
	runLog.Info("Starting taint discovery run.")

	var (
		sources    []Source
		sinks      []Sink
		sanitizers []Sanitizer
		allowlist  []string
	)

	if e.cfg.Parallel {
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			var err error
			sources, err = e.DiscoverSources(groupCtx)
			return err
		})
		group.Go(func() error {
			var err error
			sinks, err = e.DiscoverSinks(groupCtx)
			return err
		})
		group.Go(func() error {
			var err error
			sanitizers, err = e.DiscoverSanitizers(groupCtx)
			return err
		})
		group.Go(func() error {
			var err error
			allowlist, err = e.loadSafeAllowlist(groupCtx)
			return err
		})
		if err := group.Wait(); err != nil {
			return nil, fmt.Errorf("discovery run %s: %w", runID, err)
		}
	} else {
		var err error
		if sources, err = e.DiscoverSources(ctx); err != nil {
			return nil, fmt.Errorf("discovery run %s: %w", runID, err)
		}
		if sinks, err = e.DiscoverSinks(ctx); err != nil {
			return nil, fmt.Errorf("discovery run %s: %w", runID, err)
		}
		if sanitizers, err = e.DiscoverSanitizers(ctx); err != nil {
			return nil, fmt.Errorf("discovery run %s: %w", runID, err)
		}
		if allowlist, err = e.loadSafeAllowlist(ctx); err != nil {
			return nil, fmt.Errorf("discovery run %s: %w", runID, err)
		}
	}

	filtered := FilterSafeSinks(sinks, allowlist)

	var apiSinks []Sink
	for _, sink := range filtered {
		if sink.Category == CategoryAPICall {
			apiSinks = append(apiSinks, sink)
		}
	}
	flows, err := e.ResolveCrossBoundary(ctx, apiSinks)
	if err != nil {
		return nil, fmt.Errorf("discovery run %s: %w", runID, err)
	}

	runLog.Info("Taint discovery run complete.",
		zap.Int("sources", len(sources)),
		zap.Int("sinks", len(filtered)),
		zap.Int("sinks_filtered", len(sinks)-len(filtered)),
		zap.Int("sanitizers", len(sanitizers)),
		zap.Int("flows", len(flows)),
	)

	return &Results{
		Sources:    sources,
		Sinks:      filtered,
		Sanitizers: sanitizers,
		Flows:      flows,
	}, nil
}
