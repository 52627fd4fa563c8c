// Package janitor removes snapshot directories and disclosure pages left
// behind by a process that died before its own cleanup ran.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Store abstracts the artifact location swept by the Janitor.
type Store interface {
	// SweepBefore removes artifacts last modified before t and returns the number removed.
	SweepBefore(ctx context.Context, t time.Time) (int, error)
}

// Config holds tunables for the Janitor.
type Config struct {
	Interval time.Duration // how often a cycle begins
	MaxAge   time.Duration // artifacts younger than this are left alone
	Logger   *slog.Logger  // optional logger (defaults to slog.Default())
}

// Metrics accumulates in-memory counters for the sweep loop.
type Metrics struct {
	mu                  sync.Mutex
	Cycles              uint64
	Removed             uint64
	Failures            uint64
	CycleLastDurationMS int64
}

// MetricsView is a read-only snapshot safe to copy.
type MetricsView struct {
	Cycles              uint64
	Removed             uint64
	Failures            uint64
	CycleLastDurationMS int64
}

func (m *Metrics) addRemoved(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.Removed += uint64(n)
	m.mu.Unlock()
}

func (m *Metrics) addFailure() {
	m.mu.Lock()
	m.Failures++
	m.mu.Unlock()
}

func (m *Metrics) recordCycle(d time.Duration) {
	m.mu.Lock()
	m.Cycles++
	m.CycleLastDurationMS = d.Milliseconds()
	m.mu.Unlock()
}

// Janitor encapsulates the background sweep loop.
type Janitor struct {
	store   Store
	cfg     Config
	metrics *Metrics
	now     func() time.Time

	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs but does not start a Janitor.
func New(store Store, cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Janitor{
		store:   store,
		cfg:     cfg,
		metrics: &Metrics{},
		now:     time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the janitor loop in a new goroutine.
func (j *Janitor) Start(ctx context.Context) {
	if j.ticker != nil {
		return
	}
	j.ticker = time.NewTicker(j.cfg.Interval)
	go j.loop(ctx)
}

// Stop signals the loop to exit and waits for completion. Stop on a janitor
// that was never started returns immediately.
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.stopCh) })
	if j.ticker == nil {
		return
	}
	<-j.doneCh
}

// Done is closed once a started loop has exited.
func (j *Janitor) Done() <-chan struct{} {
	return j.doneCh
}

// MetricsSnapshot returns a copy of current metrics.
func (j *Janitor) MetricsSnapshot() MetricsView {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()
	return MetricsView{
		Cycles:              j.metrics.Cycles,
		Removed:             j.metrics.Removed,
		Failures:            j.metrics.Failures,
		CycleLastDurationMS: j.metrics.CycleLastDurationMS,
	}
}

// RunOnce performs a single sweep and reports how many artifacts it removed.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	return j.runCycle(ctx)
}

func (j *Janitor) loop(ctx context.Context) {
	log := j.cfg.Logger.With("domain", "janitor")
	defer func() {
		j.ticker.Stop()
		close(j.doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("janitor stop", "reason", "context_cancel")
			return
		case <-j.stopCh:
			log.Info("janitor stop", "reason", "stop_signal")
			return
		case <-j.ticker.C:
			_, _ = j.runCycle(ctx)
		}
	}
}

func (j *Janitor) runCycle(ctx context.Context) (int, error) {
	start := time.Now()
	log := j.cfg.Logger.With("domain", "janitor", "action", "cycle")
	cutoff := j.now().Add(-j.cfg.MaxAge)
	count, err := j.store.SweepBefore(ctx, cutoff)
	if err != nil && !errors.Is(err, context.Canceled) {
		j.metrics.addFailure()
		log.Error("sweep", "error", err)
	}
	j.metrics.addRemoved(count)
	j.metrics.recordCycle(time.Since(start))
	log.Info("cycle complete", "removed", count, "ms", time.Since(start).Milliseconds())
	return count, err
}
