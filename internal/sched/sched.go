// Package sched arms deferred poll closes as persisted deadlines.
//
// The original design slept in a background task and re-entered the
// event loop when the timer elapsed, which does not survive a process
// restart. Here the deadline is a durable record: Schedule persists it
// and arms an in-process timer, and Sweep re-reads all pending deadlines
// after a restart, re-firing the overdue ones and re-arming the rest.
// Duplicate firings are harmless - poll close is idempotent.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/store"
)

// FireFunc receives a deadline that has elapsed. Implementations enqueue
// the corresponding end-poll event; they must not block for long.
type FireFunc func(d entity.Deadline)

// Scheduler persists poll-close deadlines and fires them when due.
type Scheduler struct {
	store  *store.Store
	fire   FireFunc
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer // keyed by room id; one poll per room
	closed bool
}

// New creates a scheduler. fire is invoked from timer goroutines.
func New(s *store.Store, fire FireFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:  s,
		fire:   fire,
		logger: logger,
		now:    time.Now,
		timers: map[string]*time.Timer{},
	}
}

// SetClock overrides the wall clock. Used in tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Schedule persists d and arms its timer. A room has at most one open
// poll, so a new deadline for the same room replaces the previous one.
func (s *Scheduler) Schedule(ctx context.Context, d entity.Deadline) error {
	rec := d.Record()
	if err := s.store.Put(ctx, rec.PK, rec.SK, rec.Kind, rec.Attrs); err != nil {
		return fmt.Errorf("schedule deadline: %w", err)
	}

	s.arm(d)
	s.logger.Debug("deadline scheduled", "room", d.RoomID, "poll", d.PollMessageID, "fires_at", d.FiresAt)
	return nil
}

// Sweep reconciles persisted deadlines with in-process timers: overdue
// deadlines fire immediately, future ones are re-armed. Run at startup
// and periodically; this is what lets a deadline survive the process
// that armed it.
func (s *Scheduler) Sweep(ctx context.Context) error {
	recs, err := s.store.QueryKind(ctx, entity.KindDeadline)
	if err != nil {
		return fmt.Errorf("sweep deadlines: %w", err)
	}

	now := s.now()
	for i := range recs {
		d, err := entity.DecodeDeadline(&recs[i])
		if err != nil {
			s.logger.Error("sweep: bad deadline record", "pk", recs[i].PK, "error", err)
			continue
		}

		if !d.FiresAt.After(now) {
			s.logger.Debug("sweep: firing overdue deadline", "room", d.RoomID, "poll", d.PollMessageID)
			s.fire(d)
			continue
		}
		s.arm(d)
	}

	return nil
}

// Run sweeps at the given interval until ctx is done. A zero interval
// sweeps once and returns.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if err := s.Sweep(ctx); err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("periodic sweep failed", "error", err)
			}
		}
	}
}

// Stop cancels all armed timers. Persisted deadlines are untouched; the
// next process picks them up via Sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for room, timer := range s.timers {
		timer.Stop()
		delete(s.timers, room)
	}
}

func (s *Scheduler) arm(d entity.Deadline) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if prev, ok := s.timers[d.RoomID]; ok {
		prev.Stop()
	}

	delay := time.Until(d.FiresAt)
	if delay < 0 {
		delay = 0
	}

	s.timers[d.RoomID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, d.RoomID)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		s.logger.Debug("deadline fired", "room", d.RoomID, "poll", d.PollMessageID)
		s.fire(d)
	})
}
