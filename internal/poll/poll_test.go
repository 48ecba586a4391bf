package poll

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/cards"
	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/platform/fake"
	"github.com/roach88/quorum/internal/presence"
	"github.com/roach88/quorum/internal/store"
)

// stubScheduler records scheduled deadlines without arming timers.
type stubScheduler struct {
	scheduled []entity.Deadline
}

func (s *stubScheduler) Schedule(ctx context.Context, d entity.Deadline) error {
	s.scheduled = append(s.scheduled, d)
	return nil
}

type fixture struct {
	engine  *Engine
	store   *store.Store
	tracker *presence.Tracker
	msgr    *fake.Messenger
	sched   *stubScheduler
	now     time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:   s,
		tracker: presence.NewTracker(s),
		msgr:    fake.NewMessenger(),
		sched:   &stubScheduler{},
		now:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(s, f.tracker, f.msgr, cards.NewRenderer(), f.sched, slog.Default())
	f.engine.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) startPoll(t *testing.T, subject string, limit int) string {
	t.Helper()
	msgID, err := f.engine.Start(context.Background(), StartRequest{
		RoomID:      "room-1",
		Subject:     subject,
		TimeLimit:   limit,
		InitiatorID: "user-mod",
		Locale:      "en",
	})
	require.NoError(t, err)
	return msgID
}

func (f *fixture) pollState(t *testing.T) entity.PollState {
	t.Helper()
	rec, err := f.store.Get(context.Background(), "room-1", entity.SKPollState)
	require.NoError(t, err)
	require.NotNil(t, rec)
	state, err := entity.DecodePollState(rec)
	require.NoError(t, err)
	return state
}

func TestStart_PersistsRunningStateAndSchedulesClose(t *testing.T) {
	f := setup(t)

	msgID := f.startPoll(t, "Budget", 20)
	require.NotEmpty(t, msgID)

	state := f.pollState(t)
	assert.Equal(t, entity.PollTagRunning, state.Tag)
	assert.Equal(t, "Budget", state.Subject)
	assert.Equal(t, 20, state.TimeLimit)
	assert.Equal(t, msgID, state.MessageID)

	require.Len(t, f.sched.scheduled, 1)
	d := f.sched.scheduled[0]
	assert.Equal(t, msgID, d.PollMessageID)
	assert.Equal(t, f.now.Add(20*time.Second), d.FiresAt)

	// The poll card went out before state was persisted
	last := f.msgr.LastTo("room-1")
	require.NotNil(t, last)
	assert.Equal(t, msgID, last.ID)
}

func TestRecordVote_LastChoiceWinsAndMarksPresent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	msgID := f.startPoll(t, "Budget", 20)

	require.NoError(t, f.engine.RecordVote(ctx, "room-1", msgID, "user-1", entity.ChoiceYea))
	require.NoError(t, f.engine.RecordVote(ctx, "room-1", msgID, "user-1", entity.ChoiceNay))

	votes, err := f.store.QueryPrimaryKind(ctx, msgID, entity.KindVote)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, entity.ChoiceNay, entity.DecodeVote(&votes[0]).Choice)

	present, err := f.tracker.ListPresent(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, present)
}

func TestClose_TallyBucketsAndSnapshot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.msgr.AddMember("user-1", "Anna Berg")
	f.msgr.AddMember("user-2", "Carl Dahl")
	f.msgr.AddMember("user-3", "Eva Falk")
	f.msgr.AddMember("user-4", "Gus Hahn")

	msgID := f.startPoll(t, "Budget", 20)

	require.NoError(t, f.engine.RecordVote(ctx, "room-1", msgID, "user-1", entity.ChoiceYea))
	require.NoError(t, f.engine.RecordVote(ctx, "room-1", msgID, "user-2", entity.ChoiceNay))
	require.NoError(t, f.engine.RecordVote(ctx, "room-1", msgID, "user-3", entity.ChoiceAbstain))
	// user-4 signalled presence but never voted
	require.NoError(t, f.tracker.Mark(ctx, "room-1", "user-4"))

	tally, err := f.engine.Close(ctx, "room-1", msgID, CloseOptions{})
	require.NoError(t, err)
	require.NotNil(t, tally)

	assert.Equal(t, []string{"Anna Berg"}, tally.Yea)
	assert.Equal(t, []string{"Carl Dahl"}, tally.Nay)
	assert.Equal(t, []string{"Eva Falk", "Gus Hahn"}, tally.Abstain)

	yea, nay, abstain := tally.Counts()
	assert.Equal(t, 1, yea)
	assert.Equal(t, 1, nay)
	assert.Equal(t, 2, abstain)

	// Every participant lands in exactly one bucket
	assert.Len(t, tally.Rows, 4)

	state := f.pollState(t)
	assert.Equal(t, entity.PollTagEnded, state.Tag)

	// Snapshot written once, immutable thereafter
	snapRec, err := f.store.Get(ctx, "room-1", msgID)
	require.NoError(t, err)
	require.NotNil(t, snapRec)
	snap, err := entity.DecodeResultsSnapshot(snapRec)
	require.NoError(t, err)
	assert.Equal(t, "Budget", snap.Subject)
	assert.Len(t, snap.Rows, 4)

	// The poll card was taken down
	assert.Contains(t, f.msgr.Deleted(), msgID)
}

func TestClose_ActiveVotesOnlyExcludesSilent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	msgID := f.startPoll(t, "Budget", 20)
	require.NoError(t, f.engine.RecordVote(ctx, "room-1", msgID, "user-1", entity.ChoiceYea))
	require.NoError(t, f.tracker.Mark(ctx, "room-1", "user-silent"))

	tally, err := f.engine.Close(ctx, "room-1", msgID, CloseOptions{ActiveVotesOnly: true})
	require.NoError(t, err)
	require.NotNil(t, tally)

	assert.Len(t, tally.Yea, 1)
	assert.Empty(t, tally.Abstain)
	assert.Len(t, tally.Rows, 1)
}

func TestClose_SecondCloseIsNoOp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	msgID := f.startPoll(t, "Budget", 20)
	require.NoError(t, f.engine.RecordVote(ctx, "room-1", msgID, "user-1", entity.ChoiceYea))

	first, err := f.engine.Close(ctx, "room-1", msgID, CloseOptions{})
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.engine.Close(ctx, "room-1", msgID, CloseOptions{})
	require.NoError(t, err)
	assert.Nil(t, second)

	// Still exactly one snapshot, state still ENDED
	assert.Equal(t, entity.PollTagEnded, f.pollState(t).Tag)
	snaps, err := f.store.QueryPrimaryKind(ctx, "room-1", entity.KindResults)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestClose_StaleMessageIDIsNoOp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	oldID := f.startPoll(t, "First", 20)
	_, err := f.engine.Close(ctx, "room-1", oldID, CloseOptions{})
	require.NoError(t, err)

	newID := f.startPoll(t, "Second", 20)

	// The first poll's timer arrives after the second poll opened
	tally, err := f.engine.Close(ctx, "room-1", oldID, CloseOptions{})
	require.NoError(t, err)
	assert.Nil(t, tally)

	state := f.pollState(t)
	assert.Equal(t, entity.PollTagRunning, state.Tag)
	assert.Equal(t, newID, state.MessageID)
}

func TestClose_NoPollStateIsNoOp(t *testing.T) {
	f := setup(t)

	tally, err := f.engine.Close(context.Background(), "room-1", "", CloseOptions{})
	require.NoError(t, err)
	assert.Nil(t, tally)
}

func TestClose_DropsDeadlineRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	msgID := f.startPoll(t, "Budget", 20)
	d := entity.Deadline{RoomID: "room-1", PollMessageID: msgID, Subject: "Budget", FiresAt: f.now}
	rec := d.Record()
	require.NoError(t, f.store.Put(ctx, rec.PK, rec.SK, rec.Kind, rec.Attrs))

	_, err := f.engine.Close(ctx, "room-1", msgID, CloseOptions{})
	require.NoError(t, err)

	got, err := f.store.Get(ctx, "room-1", entity.SKDeadline)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMeetingResults_WindowBounds(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// A previous meeting with its own snapshot
	require.NoError(t, f.engine.MarkMeeting(ctx, "room-1", entity.KindMeetingStart, "Old"))
	msgOld := f.startPoll(t, "Old question", 20)
	f.now = f.now.Add(time.Minute)
	_, err := f.engine.Close(ctx, "room-1", msgOld, CloseOptions{})
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.engine.MarkMeeting(ctx, "room-1", entity.KindMeetingEnd, "Old"))

	// The current meeting
	f.now = f.now.Add(time.Hour)
	require.NoError(t, f.engine.MarkMeeting(ctx, "room-1", entity.KindMeetingStart, "New"))
	f.now = f.now.Add(time.Minute)
	msgNew := f.startPoll(t, "New question", 20)
	require.NoError(t, f.engine.RecordVote(ctx, "room-1", msgNew, "user-1", entity.ChoiceYea))
	f.now = f.now.Add(time.Minute)
	_, err = f.engine.Close(ctx, "room-1", msgNew, CloseOptions{})
	require.NoError(t, err)

	snaps, err := f.engine.MeetingResults(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "New question", snaps[0].Subject)
}

func TestMeetingResults_NoMeetingEver(t *testing.T) {
	f := setup(t)

	snaps, err := f.engine.MeetingResults(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
