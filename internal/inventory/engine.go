package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lanwatch/internal/adapter"
	"lanwatch/internal/discovery"
	"lanwatch/internal/domain"
	"lanwatch/internal/merge"
	"lanwatch/internal/subnet"
)

// RangeResolver finds the range to scan and the local address
type RangeResolver interface {
	Resolve(ctx context.Context) (subnet.Resolution, error)
}

// Classifier labels merged records
type Classifier interface {
	ClassifyAll(records []domain.RawRecord) []domain.Device
}

// EngineConfig wires the pipeline stages together
type EngineConfig struct {
	Resolver     RangeResolver
	Warmer       discovery.Warmer
	Deps         discovery.ProberDeps
	Identity     adapter.LocalIdentity
	Classifier   Classifier
	Workers      int
	RetryWorkers int
	ProbeTimeout time.Duration
}

// Engine runs the discovery pipeline: resolve, sweep and probe, merge,
// classify.
type Engine struct {
	cfg   EngineConfig
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() string
}

// NewEngine creates an engine
func NewEngine(cfg EngineConfig, log logrus.FieldLogger) *Engine {
	return &Engine{
		cfg:   cfg,
		log:   fieldLogger(log),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// RunRound runs the pipeline once and returns a new snapshot. ctx carries the
// round deadline.
func (e *Engine) RunRound(ctx context.Context) (*domain.Snapshot, error) {
	start := e.now()
	id := e.newID()
	log := e.log.WithField("round", id)

	// Resolve always returns a usable range; its error is informational
	res, err := e.cfg.Resolver.Resolve(ctx)
	if err != nil {
		log.WithError(err).Debug("range resolution degraded")
	}

	self := discovery.Self{
		Addr:         res.LocalAddr,
		HardwareAddr: res.HardwareAddr,
		Identity:     e.cfg.Identity,
	}
	prober := discovery.NewProber(self, e.cfg.Deps, e.cfg.ProbeTimeout, log)
	scheduler := discovery.NewScheduler(e.cfg.Warmer, prober, e.cfg.Workers, e.cfg.RetryWorkers, log)

	round, err := scheduler.Run(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("round %s: %w", id, err)
	}

	records := merge.Records(round.Sweep, round.Probes)
	devices := e.cfg.Classifier.ClassifyAll(records)

	snap := &domain.Snapshot{
		ID:         id,
		Range:      res.Range.String(),
		Devices:    devices,
		CapturedAt: e.now(),
		Stats:      round.Stats,
	}
	snap.Duration = snap.CapturedAt.Sub(start)

	log.WithFields(logrus.Fields{
		"range":     snap.Range,
		"devices":   len(devices),
		"retried":   round.Stats.Retried,
		"timed_out": round.Stats.TimedOut,
		"duration":  snap.Duration.Round(time.Millisecond),
	}).Info("Discovery round complete")
	return snap, nil
}
