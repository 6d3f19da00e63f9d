package inventory

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"lanwatch/internal/domain"
)

// RoundRunner produces a snapshot per call
type RoundRunner interface {
	RunRound(ctx context.Context) (*domain.Snapshot, error)
}

// Store persists published snapshots
type Store interface {
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error
	LatestSnapshot(ctx context.Context) (*domain.Snapshot, error)
}

// Publisher keeps the latest good snapshot and refreshes it in the
// background. Readers never block on a running round.
type Publisher struct {
	runner       RoundRunner
	store        Store // optional
	interval     time.Duration
	roundTimeout time.Duration
	log          logrus.FieldLogger

	current atomic.Pointer[domain.Snapshot]
	rounds  sync.Mutex // one round at a time

	mu          sync.Mutex
	subscribers []chan *domain.Snapshot
}

// NewPublisher creates a publisher. store may be nil.
func NewPublisher(runner RoundRunner, store Store, interval, roundTimeout time.Duration, log logrus.FieldLogger) *Publisher {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if roundTimeout <= 0 {
		roundTimeout = interval
	}
	return &Publisher{
		runner:       runner,
		store:        store,
		interval:     interval,
		roundTimeout: roundTimeout,
		log:          fieldLogger(log),
	}
}

// Current returns the last published snapshot. The second value is false
// until the first round (or a restore) has completed.
func (p *Publisher) Current() (*domain.Snapshot, bool) {
	snap := p.current.Load()
	return snap, snap != nil
}

// Snapshot is Current with domain.ErrNotReady in place of the boolean
func (p *Publisher) Snapshot() (*domain.Snapshot, error) {
	snap, ok := p.Current()
	if !ok {
		return nil, domain.ErrNotReady
	}
	return snap, nil
}

// Subscribe returns a channel that receives every newly published snapshot.
// Slow subscribers miss snapshots instead of stalling the publisher. Call
// the returned function to unsubscribe.
func (p *Publisher) Subscribe(buffer int) (<-chan *domain.Snapshot, func()) {
	ch := make(chan *domain.Snapshot, buffer)
	p.mu.Lock()
	p.subscribers = append(p.subscribers, ch)
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, s := range p.subscribers {
				if s == ch {
					p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// Restore publishes the last persisted snapshot, marked Restored, when
// nothing has been published yet
func (p *Publisher) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	snap, err := p.store.LatestSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}
	snap.Restored = true
	if !p.current.CompareAndSwap(nil, snap) {
		return nil
	}
	p.log.WithFields(logrus.Fields{
		"round":   snap.ID,
		"devices": len(snap.Devices),
		"age":     time.Since(snap.CapturedAt).Round(time.Second),
	}).Info("Restored previous inventory")
	p.notify(snap)
	return nil
}

// Refresh runs one round now. On success the snapshot is persisted,
// published and announced; on failure or cancellation the previous
// snapshot stays.
func (p *Publisher) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	p.rounds.Lock()
	defer p.rounds.Unlock()

	roundCtx, cancel := context.WithTimeout(ctx, p.roundTimeout)
	defer cancel()

	snap, err := p.runner.RunRound(roundCtx)
	switch {
	case err != nil:
	case ctx.Err() != nil:
		// Cancelled while the round ran; whatever it produced is partial
		err = fmt.Errorf("%w: %w", domain.ErrRoundFailed, ctx.Err())
	case snap == nil:
		err = domain.ErrRoundFailed
	}
	if err != nil {
		if ctx.Err() != nil {
			p.log.WithError(err).Info("Discovery round cancelled, keeping previous inventory")
			return nil, err
		}
		if prev, ok := p.Current(); ok {
			p.log.WithError(err).WithField("round", prev.ID).Error("Discovery round failed, keeping previous inventory")
		} else {
			p.log.WithError(err).Error("Discovery round failed, no inventory yet")
		}
		return nil, err
	}

	if p.store != nil {
		if err := p.store.SaveSnapshot(ctx, snap); err != nil {
			p.log.WithError(err).Warn("Failed to persist snapshot")
		}
	}

	p.current.Store(snap)
	p.notify(snap)
	return snap, nil
}

// Run refreshes immediately and then every interval until ctx is done
func (p *Publisher) Run(ctx context.Context) error {
	p.log.WithField("interval", p.interval).Info("Inventory refresh started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		// Failures are logged by Refresh and the old snapshot stays
		_, _ = p.Refresh(ctx)

		select {
		case <-ctx.Done():
			p.log.Info("Inventory refresh stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Publisher) notify(snap *domain.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- snap:
		default:
			// Subscriber is slow, skip
		}
	}
}

func fieldLogger(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
