package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/platform"
	"github.com/roach88/quorum/internal/poll"
	"github.com/roach88/quorum/internal/presence"
	"github.com/roach88/quorum/internal/settings"
	"github.com/roach88/quorum/internal/store"
)

// Dispatcher is the meeting finite-state machine driver.
//
// It serializes inbound events through a FIFO queue, resolves the
// room's current state and effective settings, matches the transition
// table, and runs the bound action. The declared target state is
// persisted BEFORE the action runs, so a duplicate or re-delivered
// event resolves against the post-transition state rather than
// re-entering the pre-transition one. An action-returned override is
// persisted afterwards.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Handle(): single-caller; Run is the only caller in production
type Dispatcher struct {
	store    *store.Store
	resolver *settings.Resolver
	presence *presence.Tracker
	polls    *poll.Engine
	msgr     platform.Messenger
	renderer platform.CardRenderer
	exporter platform.Exporter
	logger   *slog.Logger
	queue    *eventQueue
	now      func() time.Time

	// defaultPollLimit is the poll time limit in seconds applied when a
	// start-poll submission carries none.
	defaultPollLimit int

	// unrouted counts events no transition matched. Observability only;
	// an unmatched pair is not an error.
	unrouted atomic.Int64
}

// Config carries the dispatcher's collaborators.
type Config struct {
	Store            *store.Store
	Resolver         *settings.Resolver
	Presence         *presence.Tracker
	Polls            *poll.Engine
	Messenger        platform.Messenger
	Renderer         platform.CardRenderer
	Exporter         platform.Exporter
	Logger           *slog.Logger
	DefaultPollLimit int
}

// DefaultPollLimit is applied when Config leaves the limit unset.
const DefaultPollLimit = 20

// NewDispatcher creates the FSM driver.
func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.DefaultPollLimit
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	return &Dispatcher{
		store:            cfg.Store,
		resolver:         cfg.Resolver,
		presence:         cfg.Presence,
		polls:            cfg.Polls,
		msgr:             cfg.Messenger,
		renderer:         cfg.Renderer,
		exporter:         cfg.Exporter,
		logger:           logger,
		queue:            newEventQueue(),
		now:              time.Now,
		defaultPollLimit: limit,
	}
}

// SetClock overrides the wall clock. Used in tests.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Enqueue submits an event for processing. Safe from any goroutine.
// Returns false if the dispatcher has been closed.
func (d *Dispatcher) Enqueue(ev Event) bool {
	return d.queue.Enqueue(ev)
}

// HandleDeadline converts an elapsed poll deadline into an endPoll
// event. It satisfies sched.FireFunc.
func (d *Dispatcher) HandleDeadline(dl entity.Deadline) {
	d.Enqueue(Event{
		Name:          EventEndPoll,
		RoomID:        dl.RoomID,
		PollMessageID: dl.PollMessageID,
	})
}

// Close stops accepting events. Run drains what is queued and returns.
func (d *Dispatcher) Close() {
	d.queue.Close()
}

// UnroutedCount returns how many events matched no transition.
func (d *Dispatcher) UnroutedCount() int64 {
	return d.unrouted.Load()
}

// Run processes queued events until the queue is closed and drained or
// ctx is cancelled. Event-level failures are logged, never fatal: the
// loop always proceeds to the next event.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		ev, ok := d.queue.TryDequeue()
		if !ok {
			if d.queue.Drained() {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.queue.Wait():
				continue
			}
		}

		if err := d.Handle(ctx, ev); err != nil {
			d.logger.Error("event handling failed",
				"room", ev.RoomID, "event", ev.Name, "error", err)
		}
	}
}

// Handle processes one event through the FSM.
//
// Failure semantics: an unmatched (state, event) pair is counted and
// dropped - external sources deliver events irrelevant to the bot's own
// transitions. Storage failures abort the event (safe to redeliver).
// Action failures are logged and do NOT roll back the already-persisted
// state; forward progress wins over strict consistency with external
// side effects.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	if ev.Name == EventDirectlyAddressed {
		// Addressed directly: answer with help, no state involvement.
		return d.sendHelp(ctx, ev)
	}

	cur, err := d.currentState(ctx, ev.RoomID)
	if err != nil {
		return storageError(ev.RoomID, ev.Name, err)
	}

	tr := matchTransition(cur, ev.Name)
	if tr == nil {
		d.unrouted.Add(1)
		d.logger.Debug("no transition matched",
			"room", ev.RoomID, "event", ev.Name, "state", cur)
		return nil
	}

	next := tr.next
	if next == sameState {
		next = cur
	}

	// Durability-first: persist the declared target before acting, so a
	// duplicate of this event resolves against the post-transition state.
	if next != cur || cur != StateUnseen {
		if err := d.saveState(ctx, ev.RoomID, next); err != nil {
			return storageError(ev.RoomID, ev.Name, err)
		}
	}
	d.logger.Debug("transition", "room", ev.RoomID, "event", ev.Name,
		"from", cur, "to", next)

	outcome, err := tr.action(d, ctx, ev, cur)
	if err != nil {
		// The state write above stands; the failure is scoped to the
		// action's side effects. An override the action returned anyway
		// (a rejection restoring the previous state) is still applied.
		d.logger.Error("action failed", "room", ev.RoomID, "event", ev.Name, "error", err)
	}

	if outcome.HasOverride && outcome.Override != next {
		if err := d.saveState(ctx, ev.RoomID, outcome.Override); err != nil {
			return storageError(ev.RoomID, ev.Name, err)
		}
		d.logger.Debug("transition override", "room", ev.RoomID,
			"event", ev.Name, "from", next, "to", outcome.Override)
	}

	return nil
}

// currentState reads the room's FSM state; a missing row is StateUnseen.
func (d *Dispatcher) currentState(ctx context.Context, roomID string) (State, error) {
	rec, err := d.store.Get(ctx, roomID, entity.SKRoomState)
	if err != nil {
		return StateUnseen, fmt.Errorf("read room state: %w", err)
	}
	if rec == nil {
		return StateUnseen, nil
	}
	return State(entity.DecodeRoomState(rec).State), nil
}

func (d *Dispatcher) saveState(ctx context.Context, roomID string, s State) error {
	if s == StateUnseen {
		return nil
	}
	rec := entity.RoomState{RoomID: roomID, State: string(s)}.Record()
	if err := d.store.Put(ctx, rec.PK, rec.SK, rec.Kind, rec.Attrs); err != nil {
		return fmt.Errorf("save room state: %w", err)
	}
	return nil
}

// effectiveSettings resolves the two-scope settings for this event.
func (d *Dispatcher) effectiveSettings(ctx context.Context, ev Event) settings.Values {
	values, err := d.resolver.Resolve(ctx, ev.RoomID, ev.ActorID)
	if err != nil {
		d.logger.Error("settings resolution failed, using defaults",
			"room", ev.RoomID, "actor", ev.ActorID, "error", err)
		return settings.Defaults()
	}
	return values
}
