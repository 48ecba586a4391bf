package meeting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/cards"
	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/export"
	"github.com/roach88/quorum/internal/platform/fake"
	"github.com/roach88/quorum/internal/poll"
	"github.com/roach88/quorum/internal/presence"
	"github.com/roach88/quorum/internal/settings"
	"github.com/roach88/quorum/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSched persists deadlines like the real scheduler but never fires;
// tests drive the close event themselves.
type stubSched struct {
	mu        sync.Mutex
	st        *store.Store
	scheduled []entity.Deadline
}

func (s *stubSched) Schedule(ctx context.Context, d entity.Deadline) error {
	rec := d.Record()
	if err := s.st.Put(ctx, rec.PK, rec.SK, rec.Kind, rec.Attrs); err != nil {
		return err
	}
	s.mu.Lock()
	s.scheduled = append(s.scheduled, d)
	s.mu.Unlock()
	return nil
}

type fixture struct {
	t     *testing.T
	store *store.Store
	msgr  *fake.Messenger
	sched *stubSched
	polls *poll.Engine
	disp  *Dispatcher

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(t.TempDir() + "/quorum.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		t:     t,
		store: st,
		msgr:  fake.NewMessenger(),
		sched: &stubSched{st: st},
		now:   time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC),
	}

	tracker := presence.NewTracker(st)
	renderer := cards.NewRenderer()
	f.polls = poll.NewEngine(st, tracker, f.msgr, renderer, f.sched, testLogger())
	f.polls.SetClock(f.clock)

	resolver := settings.NewResolver(st)
	resolver.SetClock(f.clock)

	f.disp = NewDispatcher(Config{
		Store:     st,
		Resolver:  resolver,
		Presence:  tracker,
		Polls:     f.polls,
		Messenger: f.msgr,
		Renderer:  renderer,
		Exporter:  export.NewCSV(),
		Logger:    testLogger(),
	})
	f.disp.SetClock(f.clock)

	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) handle(ev Event) {
	f.t.Helper()
	require.NoError(f.t, f.disp.Handle(context.Background(), ev))
}

func (f *fixture) state(roomID string) State {
	f.t.Helper()
	rec, err := f.store.Get(context.Background(), roomID, entity.SKRoomState)
	require.NoError(f.t, err)
	if rec == nil {
		return StateUnseen
	}
	return State(entity.DecodeRoomState(rec).State)
}

func (f *fixture) pollMessageID(roomID string) string {
	f.t.Helper()
	rec, err := f.store.Get(context.Background(), roomID, entity.SKPollState)
	require.NoError(f.t, err)
	require.NotNil(f.t, rec)
	st, err := entity.DecodePollState(rec)
	require.NoError(f.t, err)
	return st.MessageID
}

func (f *fixture) snapshots(roomID string) []store.Record {
	f.t.Helper()
	recs, err := f.store.QueryPrimaryKind(context.Background(), roomID, entity.KindResults)
	require.NoError(f.t, err)
	return recs
}

// seedSettings stores room-scope settings so joinedSpace skips the
// first-contact detour.
func (f *fixture) seedSettings(roomID string) {
	f.t.Helper()
	rec := settings.Record(roomID, settings.Defaults())
	require.NoError(f.t, f.store.Put(context.Background(), rec.PK, rec.SK, rec.Kind, rec.Attrs))
}

func TestFirstContactDetoursIntoSettings(t *testing.T) {
	f := newFixture(t)

	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})

	assert.Equal(t, StateRoomSettings, f.state("room1"))
	require.Len(t, f.msgr.Sent(), 1)

	// The settings form comes back; now the welcome card follows.
	f.handle(Event{
		Name:   EventRoomSettingsSubmitted,
		RoomID: "room1",
		Inputs: map[string]string{settings.KeyLanguage: "en"},
	})

	assert.Equal(t, StateWelcome, f.state("room1"))
	assert.Len(t, f.msgr.Sent(), 2)
}

func TestJoinWithStoredSettingsWelcomesDirectly(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")

	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})

	assert.Equal(t, StateWelcome, f.state("room1"))
	assert.Len(t, f.msgr.Sent(), 1)
}

func TestFullMeetingFlow(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")
	f.msgr.SetModerators("room1", "chair")
	f.msgr.AddMember("chair", "Carol Chair")
	f.msgr.AddMember("alice", "Alice Adams")
	f.msgr.AddMember("bob", "Bob Brown")
	f.msgr.AddMember("dana", "Dana Doe")

	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})
	f.handle(Event{
		Name: EventStartMeeting, RoomID: "room1", ActorID: "chair",
		Inputs: map[string]string{inputMeetingSubject: "Board meeting"},
	})
	require.Equal(t, StateMeetingActive, f.state("room1"))

	// Dana only presses Present and never votes.
	f.handle(Event{Name: EventPresence, RoomID: "room1", ActorID: "dana"})

	f.advance(time.Minute)
	f.handle(Event{
		Name: EventStartPoll, RoomID: "room1", ActorID: "chair",
		Inputs: map[string]string{inputPollSubject: "Approve budget", inputTimeLimit: "30"},
	})
	require.Equal(t, StatePollRunning, f.state("room1"))

	pollMsg := f.pollMessageID("room1")
	require.NotEmpty(t, pollMsg)

	// The deadline row was persisted alongside the timer.
	dlRec, err := f.store.Get(context.Background(), "room1", entity.SKDeadline)
	require.NoError(t, err)
	require.NotNil(t, dlRec)

	f.handle(Event{
		Name: EventPollVoteCast, RoomID: "room1", ActorID: "alice",
		PollMessageID: pollMsg, Inputs: map[string]string{inputVote: entity.ChoiceYea},
	})
	f.handle(Event{
		Name: EventPollVoteCast, RoomID: "room1", ActorID: "bob",
		PollMessageID: pollMsg, Inputs: map[string]string{inputVote: entity.ChoiceNay},
	})
	require.Equal(t, StatePollRunning, f.state("room1"))

	f.advance(30 * time.Second)
	f.handle(Event{Name: EventEndPoll, RoomID: "room1", PollMessageID: pollMsg})
	assert.Equal(t, StateMeetingActive, f.state("room1"))

	// One snapshot, card deleted, and the room got the results card
	// followed by the per-poll results file (partial results default on).
	require.Len(t, f.snapshots("room1"), 1)
	assert.Contains(t, f.msgr.Deleted(), pollMsg)
	sent := f.msgr.Sent()
	require.GreaterOrEqual(t, len(sent), 2)
	pollFile := sent[len(sent)-1]
	assert.True(t, strings.HasSuffix(pollFile.Filename, ".csv"))
	resultsCard := sent[len(sent)-2]
	require.Len(t, resultsCard.Attachments, 1)

	// The timer for the closed poll fires late: nothing matches, the
	// event is counted and dropped.
	f.handle(Event{Name: EventEndPoll, RoomID: "room1", PollMessageID: pollMsg})
	assert.Equal(t, StateMeetingActive, f.state("room1"))
	assert.Len(t, f.snapshots("room1"), 1)
	assert.Equal(t, int64(1), f.disp.UnroutedCount())

	f.advance(time.Minute)
	f.handle(Event{Name: EventEndMeeting, RoomID: "room1", ActorID: "chair"})
	assert.Equal(t, StateMeetingInactive, f.state("room1"))

	// The meeting results went out as a CSV file before the closing card.
	var file *fake.SentMessage
	for _, msg := range f.msgr.Sent() {
		if msg.Filename != "" {
			m := msg
			file = &m
		}
	}
	require.NotNil(t, file)
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))
	content := string(file.Content)
	assert.Contains(t, content, "Approve budget")
	assert.Contains(t, content, "Alice Adams")
	assert.Contains(t, content, "Dana Doe")

	// Presence was reset, not deleted.
	present, err := presence.NewTracker(f.store).ListPresent(context.Background(), "room1")
	require.NoError(t, err)
	assert.Empty(t, present)
	rows, err := f.store.QueryPrimaryKind(context.Background(), "room1", entity.KindPresence)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestNonModeratorStartRejected(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")
	f.msgr.SetModerators("room1", "chair")

	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})
	sentBefore := len(f.msgr.Sent())

	f.handle(Event{Name: EventStartMeeting, RoomID: "room1", ActorID: "mallory"})

	// Rejection card goes privately to the actor and the room falls back to WELCOME.
	assert.Equal(t, StateWelcome, f.state("room1"))
	assert.Len(t, f.msgr.Sent(), sentBefore+1)
	require.NotNil(t, f.msgr.LastTo("mallory"))

	starts, err := f.store.QueryPrimaryKind(context.Background(), "room1", entity.KindMeetingStart)
	require.NoError(t, err)
	assert.Empty(t, starts)
}

func TestUnmoderatedRoomAllowsAnyone(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")

	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})
	f.handle(Event{Name: EventStartMeeting, RoomID: "room1", ActorID: "anyone"})

	assert.Equal(t, StateMeetingActive, f.state("room1"))
}

func TestStaleTimerLeavesNewPollRunning(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")
	f.msgr.SetModerators("room1", "chair")

	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})
	f.handle(Event{Name: EventStartMeeting, RoomID: "room1", ActorID: "chair"})
	f.handle(Event{
		Name: EventStartPoll, RoomID: "room1", ActorID: "chair",
		Inputs: map[string]string{inputPollSubject: "First", inputTimeLimit: "10"},
	})
	firstMsg := f.pollMessageID("room1")

	f.advance(10 * time.Second)
	f.handle(Event{Name: EventEndPoll, RoomID: "room1", PollMessageID: firstMsg})
	f.handle(Event{
		Name: EventStartPoll, RoomID: "room1", ActorID: "chair",
		Inputs: map[string]string{inputPollSubject: "Second", inputTimeLimit: "10"},
	})
	secondMsg := f.pollMessageID("room1")
	require.NotEqual(t, firstMsg, secondMsg)
	require.Equal(t, StatePollRunning, f.state("room1"))

	// The first poll's timer fires again while the second runs. The
	// idempotence guard drops it and the room stays in the poll.
	f.handle(Event{Name: EventEndPoll, RoomID: "room1", PollMessageID: firstMsg})

	assert.Equal(t, StatePollRunning, f.state("room1"))
	assert.Len(t, f.snapshots("room1"), 1)

	rec, err := f.store.Get(context.Background(), "room1", entity.SKPollState)
	require.NoError(t, err)
	st, err := entity.DecodePollState(rec)
	require.NoError(t, err)
	assert.Equal(t, entity.PollTagRunning, st.Tag)
}

func TestEndMeetingClosesOpenPoll(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")

	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})
	f.handle(Event{Name: EventStartMeeting, RoomID: "room1", ActorID: "chair"})
	f.handle(Event{
		Name: EventStartPoll, RoomID: "room1", ActorID: "chair",
		Inputs: map[string]string{inputPollSubject: "Adjourn", inputTimeLimit: "60"},
	})
	pollMsg := f.pollMessageID("room1")
	f.handle(Event{
		Name: EventPollVoteCast, RoomID: "room1", ActorID: "alice",
		PollMessageID: pollMsg, Inputs: map[string]string{inputVote: entity.ChoiceYea},
	})

	f.advance(5 * time.Second)
	f.handle(Event{Name: EventEndMeeting, RoomID: "room1", ActorID: "chair"})

	assert.Equal(t, StateMeetingInactive, f.state("room1"))
	assert.Len(t, f.snapshots("room1"), 1)
	assert.Contains(t, f.msgr.Deleted(), pollMsg)
}

func TestUserSettingsOverrideRoomScope(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")

	f.handle(Event{
		Name: EventUserSettingsSubmitted, RoomID: "room1", ActorID: "pavel",
		Inputs: map[string]string{settings.KeyLanguage: "cs"},
	})

	// Pavel's next gated action resolves their personal locale and the
	// outbound card carries the Czech fallback text.
	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})
	f.handle(Event{Name: EventStartMeeting, RoomID: "room1", ActorID: "pavel"})

	last := f.msgr.LastTo("room1")
	require.NotNil(t, last)
	assert.Contains(t, last.Markdown, "formulář")
}

func TestDirectlyAddressedSendsHelp(t *testing.T) {
	f := newFixture(t)

	f.handle(Event{Name: EventDirectlyAddressed, RoomID: "room1", ActorID: "alice"})

	assert.Equal(t, StateUnseen, f.state("room1"))
	require.Len(t, f.msgr.Sent(), 1)
}

func TestUnmatchedEventCountedNotFailed(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")
	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})

	// Presence outside a meeting matches nothing.
	f.handle(Event{Name: EventPresence, RoomID: "room1", ActorID: "alice"})

	assert.Equal(t, StateWelcome, f.state("room1"))
	assert.Equal(t, int64(1), f.disp.UnroutedCount())
}

func TestStatePersistedBeforeActionRuns(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")
	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})

	// The platform goes down mid-action. The transition survives: a
	// redelivery of the same submission resolves against the new state.
	f.msgr.FailSends(errors.New("platform down"))
	f.handle(Event{Name: EventStartMeeting, RoomID: "room1", ActorID: "chair"})

	assert.Equal(t, StateMeetingActive, f.state("room1"))
}

func TestRemovedFromAnyState(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")
	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})
	f.handle(Event{Name: EventStartMeeting, RoomID: "room1", ActorID: "chair"})

	f.handle(Event{Name: EventRemovedFromSpace, RoomID: "room1"})

	assert.Equal(t, StateRemoved, f.state("room1"))
}

func TestRunDrainsQueueAndStops(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")

	require.True(t, f.disp.Enqueue(Event{Name: EventJoinedSpace, RoomID: "room1"}))
	f.disp.Close()
	require.False(t, f.disp.Enqueue(Event{Name: EventJoinedSpace, RoomID: "room1"}))

	err := f.disp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateWelcome, f.state("room1"))
	assert.Len(t, f.msgr.Sent(), 1)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.disp.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHandleDeadlineEnqueuesClose(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")
	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})
	f.handle(Event{Name: EventStartMeeting, RoomID: "room1", ActorID: "chair"})
	f.handle(Event{
		Name: EventStartPoll, RoomID: "room1", ActorID: "chair",
		Inputs: map[string]string{inputPollSubject: "Quick vote", inputTimeLimit: "5"},
	})
	pollMsg := f.pollMessageID("room1")

	f.advance(5 * time.Second)
	f.disp.HandleDeadline(entity.Deadline{RoomID: "room1", PollMessageID: pollMsg})
	f.disp.Close()
	require.NoError(t, f.disp.Run(context.Background()))

	assert.Equal(t, StateMeetingActive, f.state("room1"))
	assert.Len(t, f.snapshots("room1"), 1)
}

func TestBadTimeLimitFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	f.seedSettings("room1")
	f.handle(Event{Name: EventJoinedSpace, RoomID: "room1"})
	f.handle(Event{Name: EventStartMeeting, RoomID: "room1", ActorID: "chair"})

	f.handle(Event{
		Name: EventStartPoll, RoomID: "room1", ActorID: "chair",
		Inputs: map[string]string{inputPollSubject: "Vague", inputTimeLimit: "soon"},
	})

	rec, err := f.store.Get(context.Background(), "room1", entity.SKPollState)
	require.NoError(t, err)
	require.NotNil(t, rec)
	st, err := entity.DecodePollState(rec)
	require.NoError(t, err)
	assert.Equal(t, DefaultPollLimit, st.TimeLimit)
}
