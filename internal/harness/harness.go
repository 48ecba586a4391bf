// Package harness runs YAML conformance scenarios against the full
// engine wired over in-memory platform fakes and a temporary database.
//
// Every scenario produces a deterministic trace (fixed clock, counted
// message ids) that golden tests compare byte-for-byte; assertions in
// the scenario file check the final stored state.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/quorum/internal/cards"
	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/export"
	"github.com/roach88/quorum/internal/meeting"
	"github.com/roach88/quorum/internal/platform/fake"
	"github.com/roach88/quorum/internal/poll"
	"github.com/roach88/quorum/internal/presence"
	"github.com/roach88/quorum/internal/settings"
	"github.com/roach88/quorum/internal/store"
	"github.com/roach88/quorum/internal/testutil"
)

// baseTime is the scenario clock's origin. One second elapses before
// each event.
var baseTime = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

// TraceEvent records one delivered event and its observable effects.
type TraceEvent struct {
	Seq     int          `json:"seq"`
	Event   string       `json:"event"`
	Room    string       `json:"room"`
	State   string       `json:"state"`
	Sent    []SentRecord `json:"sent,omitempty"`
	Deleted []string     `json:"deleted,omitempty"`
}

// SentRecord summarizes one outbound message.
type SentRecord struct {
	Target   string `json:"target"`
	Kind     string `json:"kind"` // "card" or "file"
	Filename string `json:"filename,omitempty"`
}

// Result is the outcome of one scenario run.
type Result struct {
	Trace      []TraceEvent
	Store      *store.Store
	Messenger  *fake.Messenger
	Dispatcher *meeting.Dispatcher

	dir string
}

// Close releases the run's database and its temporary directory.
func (r *Result) Close() error {
	err := r.Store.Close()
	os.RemoveAll(r.dir)
	return err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// persistScheduler records deadlines without arming timers; scenarios
// deliver end-poll events themselves.
type persistScheduler struct {
	st *store.Store
}

func (p *persistScheduler) Schedule(ctx context.Context, d entity.Deadline) error {
	rec := d.Record()
	return p.st.Put(ctx, rec.PK, rec.SK, rec.Kind, rec.Attrs)
}

// Run executes the scenario and returns its trace. The caller owns the
// returned Result and must Close it.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "quorum-harness-*")
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	st, err := store.Open(dir + "/scenario.db")
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("harness: %w", err)
	}

	clock := testutil.NewClock(baseTime)
	msgr := fake.NewMessenger()

	// Counted ids keep traces and golden files stable across runs.
	msgID := 0
	msgr.NextID = func() string {
		msgID++
		return fmt.Sprintf("msg-%d", msgID)
	}

	for id, name := range scenario.Setup.Members {
		msgr.AddMember(id, name)
	}
	for room, mods := range scenario.Setup.Moderators {
		msgr.SetModerators(room, mods...)
	}
	for _, room := range scenario.Setup.DirectRooms {
		msgr.SetDirect(room, true)
	}

	tracker := presence.NewTracker(st)
	renderer := cards.NewRenderer()
	resolver := settings.NewResolver(st)
	resolver.SetClock(clock.Now)

	polls := poll.NewEngine(st, tracker, msgr, renderer, &persistScheduler{st: st}, discardLogger())
	polls.SetClock(clock.Now)

	disp := meeting.NewDispatcher(meeting.Config{
		Store:     st,
		Resolver:  resolver,
		Presence:  tracker,
		Polls:     polls,
		Messenger: msgr,
		Renderer:  renderer,
		Exporter:  export.NewCSV(),
		Logger:    discardLogger(),
	})
	disp.SetClock(clock.Now)

	result := &Result{
		Store:      st,
		Messenger:  msgr,
		Dispatcher: disp,
		dir:        dir,
	}

	ctx := context.Background()
	for i, step := range scenario.Events {
		clock.Advance(time.Second)

		ev := meeting.Event{
			Name:    meeting.EventName(step.Event),
			RoomID:  step.Room,
			ActorID: step.Actor,
			Inputs:  step.Inputs,
		}
		if step.CurrentPoll {
			id, err := currentPollID(ctx, st, step.Room)
			if err != nil {
				result.Close()
				return nil, fmt.Errorf("harness: event %d (%s): %w", i, step.Event, err)
			}
			ev.PollMessageID = id
		}

		sentBefore := len(msgr.Sent())
		deletedBefore := len(msgr.Deleted())

		if err := disp.Handle(ctx, ev); err != nil {
			result.Close()
			return nil, fmt.Errorf("harness: event %d (%s): %w", i, step.Event, err)
		}

		result.Trace = append(result.Trace, TraceEvent{
			Seq:     i + 1,
			Event:   step.Event,
			Room:    step.Room,
			State:   roomState(ctx, st, step.Room),
			Sent:    sentSince(msgr, sentBefore),
			Deleted: deletedSince(msgr, deletedBefore),
		})
	}

	return result, nil
}

func currentPollID(ctx context.Context, st *store.Store, roomID string) (string, error) {
	rec, err := st.Get(ctx, roomID, entity.SKPollState)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", fmt.Errorf("no poll state in room %s", roomID)
	}
	state, err := entity.DecodePollState(rec)
	if err != nil {
		return "", err
	}
	return state.MessageID, nil
}

func roomState(ctx context.Context, st *store.Store, roomID string) string {
	rec, err := st.Get(ctx, roomID, entity.SKRoomState)
	if err != nil || rec == nil {
		return ""
	}
	return entity.DecodeRoomState(rec).State
}

func sentSince(msgr *fake.Messenger, from int) []SentRecord {
	all := msgr.Sent()
	if from >= len(all) {
		return nil
	}
	out := make([]SentRecord, 0, len(all)-from)
	for _, msg := range all[from:] {
		rec := SentRecord{Target: msg.Target, Kind: "card"}
		if msg.Filename != "" {
			rec.Kind = "file"
			rec.Filename = msg.Filename
		}
		out = append(out, rec)
	}
	return out
}

func deletedSince(msgr *fake.Messenger, from int) []string {
	all := msgr.Deleted()
	if from >= len(all) {
		return nil
	}
	return all[from:]
}
