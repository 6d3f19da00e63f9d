package main

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"

	"lanwatch/internal/adapter"
	"lanwatch/internal/classify"
	"lanwatch/internal/config"
	"lanwatch/internal/core/preflight"
	"lanwatch/internal/discovery"
	"lanwatch/internal/inventory"
	"lanwatch/internal/repository"
	"lanwatch/internal/repository/sqlite"
	"lanwatch/internal/subnet"
)

// pipeline is everything a discovery round needs, built from one config
type pipeline struct {
	registry   *adapter.Registry
	classifier *classify.Classifier
	engine     *inventory.Engine
	store      repository.Repository // nil when persistence is off
	publisher  *inventory.Publisher
}

func buildPipeline(ctx context.Context, cfg *config.Config, rangeOverride string, log logrus.FieldLogger) (*pipeline, error) {
	preflight.Apply(ctx, preflight.SystemProbes(), cfg, log)
	behavior := cfg.EffectiveBehavior()

	if rangeOverride == "" {
		rangeOverride = cfg.Discovery.Range
	}
	var override netip.Prefix
	if rangeOverride != "" {
		p, err := config.ParseRange(rangeOverride)
		if err != nil {
			return nil, err
		}
		override = p
	}

	reg, err := adapter.Build(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build adapters: %w", err)
	}

	prewarmer := discovery.NewPrewarmer(reg.Sweeper, reg.Neighbors, reg.Pinger, log)
	classifier := classify.New(classify.RulesFromConfig(cfg.Classify))

	engine := inventory.NewEngine(inventory.EngineConfig{
		Resolver: subnet.NewResolver(override, log),
		Warmer:   prewarmer,
		Deps: discovery.ProberDeps{
			Ports:        reg.Ports,
			Fingerprints: reg.Fingerprints,
			DNS:          reg.DNS,
			Neighbors:    reg.Neighbors,
			Retry:        prewarmer,
			Vendors:      reg.OUI,
		},
		Identity:     reg.Local,
		Classifier:   classifier,
		Workers:      behavior.Workers,
		RetryWorkers: behavior.RetryWorkers,
		ProbeTimeout: behavior.ProbeTimeout,
	}, log)

	p := &pipeline{
		registry:   reg,
		classifier: classifier,
		engine:     engine,
	}

	var store inventory.Store
	if cfg.Persist.Path != "" {
		s, err := sqlite.New(cfg.Persist.Path, cfg.Persist.Keep)
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		p.store = s
		store = s
		log.WithField("path", cfg.Persist.Path).Debug("Snapshot store opened")
	}

	p.publisher = inventory.NewPublisher(engine, store, behavior.RefreshInterval, behavior.RoundTimeout, log)
	return p, nil
}

// applyConfig pushes the reloadable parts of cfg into a running pipeline.
// Only classification rules change without a restart.
func (p *pipeline) applyConfig(cfg *config.Config) {
	p.classifier.SetRules(classify.RulesFromConfig(cfg.Classify))
}

func (p *pipeline) Close() error {
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}

// openStore opens the configured store for read-only commands
func openStore(cfg *config.Config) (repository.Repository, error) {
	if cfg.Persist.Path == "" {
		return nil, fmt.Errorf("persistence is disabled (persist.path is empty)")
	}
	return sqlite.New(cfg.Persist.Path, 0)
}

// restore publishes the stored snapshot before the first round, when enabled
func (p *pipeline) restore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) {
	if !cfg.Persist.Restore || p.store == nil {
		return
	}
	if err := p.publisher.Restore(ctx); err != nil {
		log.WithError(err).Warn("Could not restore previous inventory")
	}
}
