// Package poll manages the lifecycle of the one poll a room may have
// open: start, vote tally, and an idempotent close that tolerates the
// race between the timer-driven end and a manual end.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/quorum/internal/cards"
	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/platform"
	"github.com/roach88/quorum/internal/presence"
	"github.com/roach88/quorum/internal/store"
)

// Scheduler arms a deferred poll close. Implemented by sched.Scheduler;
// the interface keeps this package ignorant of how the deadline is
// persisted and fired.
type Scheduler interface {
	Schedule(ctx context.Context, d entity.Deadline) error
}

// Engine drives poll state transitions NONE -> RUNNING -> ENDED -> NONE
// for each room. Only one poll can be open per room at a time.
type Engine struct {
	store    *store.Store
	presence *presence.Tracker
	msgr     platform.Messenger
	renderer platform.CardRenderer
	sched    Scheduler
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a poll engine over the shared store and collaborators.
func NewEngine(s *store.Store, tracker *presence.Tracker, msgr platform.Messenger, renderer platform.CardRenderer, sched Scheduler, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    s,
		presence: tracker,
		msgr:     msgr,
		renderer: renderer,
		sched:    sched,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the wall clock. Used in tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// StartRequest carries the inputs of a poll start.
type StartRequest struct {
	RoomID      string
	Subject     string
	TimeLimit   int // seconds
	InitiatorID string
	Locale      string
}

// Start opens a fresh poll: posts the poll card, persists PollState
// RUNNING keyed by the card's message id, and schedules the deferred
// close. Returns the poll's message id.
func (e *Engine) Start(ctx context.Context, req StartRequest) (string, error) {
	member, err := e.msgr.Member(ctx, req.InitiatorID)
	if err != nil {
		return "", fmt.Errorf("start poll: resolve initiator: %w", err)
	}

	att, err := e.renderer.Render(cards.TemplatePoll, map[string]string{
		"poll_subject": req.Subject,
		"display_name": member.DisplayName,
		"time_limit":   strconv.Itoa(req.TimeLimit),
	}, req.Locale)
	if err != nil {
		return "", fmt.Errorf("start poll: %w", err)
	}

	messageID, err := e.msgr.SendMessage(ctx, req.RoomID, req.Subject+" poll", []platform.Attachment{att})
	if err != nil {
		return "", fmt.Errorf("start poll: send card: %w", err)
	}

	state := entity.PollState{
		RoomID:      req.RoomID,
		Tag:         entity.PollTagRunning,
		Subject:     req.Subject,
		TimeLimit:   req.TimeLimit,
		MessageID:   messageID,
		InitiatorID: req.InitiatorID,
	}
	rec := state.Record()
	if err := e.store.Put(ctx, rec.PK, rec.SK, rec.Kind, rec.Attrs); err != nil {
		return "", fmt.Errorf("start poll: persist state: %w", err)
	}

	deadline := entity.Deadline{
		RoomID:        req.RoomID,
		PollMessageID: messageID,
		Subject:       req.Subject,
		FiresAt:       e.now().Add(time.Duration(req.TimeLimit) * time.Second),
	}
	if err := e.sched.Schedule(ctx, deadline); err != nil {
		return "", fmt.Errorf("start poll: schedule close: %w", err)
	}

	e.logger.Debug("poll started",
		"room", req.RoomID, "subject", req.Subject, "message", messageID, "limit", req.TimeLimit)

	return messageID, nil
}

// RecordVote upserts the participant's choice for the poll (last choice
// wins) and marks the voter present: casting any vote implies presence
// for the rest of the meeting.
func (e *Engine) RecordVote(ctx context.Context, roomID, pollMessageID, voterID, choice string) error {
	vote := entity.VoteRecord{PollMessageID: pollMessageID, VoterID: voterID, Choice: choice}
	rec := vote.Record()
	if err := e.store.Put(ctx, rec.PK, rec.SK, rec.Kind, rec.Attrs); err != nil {
		return fmt.Errorf("record vote: %w", err)
	}

	if err := e.presence.Mark(ctx, roomID, voterID); err != nil {
		return fmt.Errorf("record vote: mark present: %w", err)
	}

	e.logger.Debug("vote recorded", "room", roomID, "poll", pollMessageID, "voter", voterID)
	return nil
}

// CloseOptions carries the effective settings a close depends on.
type CloseOptions struct {
	// ActiveVotesOnly excludes silent present participants from all
	// buckets instead of adding them to abstain.
	ActiveVotesOnly bool
}

// Close ends the room's poll and returns its tally.
//
// Idempotence guards, in order:
//   - no PollState, or its tag is not RUNNING: the poll is already
//     closed, return (nil, nil)
//   - requesterMsgID set and different from the recorded message id: the
//     close was meant for a previous poll that raced with a new one
//     starting, return (nil, nil)
//
// Otherwise the tally is computed, an immutable ResultsSnapshot written,
// PollState flipped to ENDED, the deadline row dropped, and the poll card
// deleted from the room.
func (e *Engine) Close(ctx context.Context, roomID, requesterMsgID string, opts CloseOptions) (*Tally, error) {
	rec, err := e.store.Get(ctx, roomID, entity.SKPollState)
	if err != nil {
		return nil, fmt.Errorf("close poll: read state: %w", err)
	}
	if rec == nil {
		e.logger.Debug("close poll: no poll state", "room", roomID)
		return nil, nil
	}

	state, err := entity.DecodePollState(rec)
	if err != nil {
		return nil, fmt.Errorf("close poll: %w", err)
	}
	if state.Tag != entity.PollTagRunning {
		e.logger.Debug("close poll: already closed", "room", roomID, "tag", state.Tag)
		return nil, nil
	}
	if requesterMsgID != "" && requesterMsgID != state.MessageID {
		e.logger.Debug("close poll: stale request",
			"room", roomID, "requested", requesterMsgID, "current", state.MessageID)
		return nil, nil
	}

	tally, err := e.tally(ctx, roomID, state, opts)
	if err != nil {
		return nil, err
	}

	snapshot := entity.ResultsSnapshot{
		RoomID:        roomID,
		PollMessageID: state.MessageID,
		Subject:       state.Subject,
		At:            e.now(),
		Rows:          tally.Rows,
	}
	snapRec, err := snapshot.Record()
	if err != nil {
		return nil, fmt.Errorf("close poll: %w", err)
	}
	if err := e.store.Put(ctx, snapRec.PK, snapRec.SK, snapRec.Kind, snapRec.Attrs); err != nil {
		return nil, fmt.Errorf("close poll: write snapshot: %w", err)
	}

	state.Tag = entity.PollTagEnded
	endedRec := state.Record()
	if err := e.store.Put(ctx, endedRec.PK, endedRec.SK, endedRec.Kind, endedRec.Attrs); err != nil {
		return nil, fmt.Errorf("close poll: persist state: %w", err)
	}

	// The deadline served its purpose whether the close was manual or
	// timer-driven. A missed delete only costs a no-op re-fire.
	if err := e.store.Delete(ctx, roomID, entity.SKDeadline); err != nil {
		e.logger.Error("close poll: drop deadline", "room", roomID, "error", err)
	}

	// The poll card is taken down so late votes have nothing to press.
	// Platform failures here do not roll back the close.
	if err := e.msgr.DeleteMessage(ctx, state.MessageID); err != nil {
		e.logger.Error("close poll: delete card", "room", roomID, "message", state.MessageID, "error", err)
	}

	e.logger.Debug("poll closed", "room", roomID, "poll", state.MessageID,
		"yea", len(tally.Yea), "nay", len(tally.Nay), "abstain", len(tally.Abstain))

	return tally, nil
}

// tally buckets every vote and classifies silent present participants.
func (e *Engine) tally(ctx context.Context, roomID string, state entity.PollState, opts CloseOptions) (*Tally, error) {
	voteRecs, err := e.store.QueryPrimaryKind(ctx, state.MessageID, entity.KindVote)
	if err != nil {
		return nil, fmt.Errorf("close poll: read votes: %w", err)
	}

	tally := &Tally{Subject: state.Subject, MessageID: state.MessageID}
	voted := map[string]bool{}

	for i := range voteRecs {
		vote := entity.DecodeVote(&voteRecs[i])
		voted[vote.VoterID] = true

		name, err := e.displayName(ctx, vote.VoterID)
		if err != nil {
			return nil, err
		}

		switch vote.Choice {
		case entity.ChoiceYea:
			tally.Yea = append(tally.Yea, name)
		case entity.ChoiceNay:
			tally.Nay = append(tally.Nay, name)
		case entity.ChoiceAbstain:
			tally.Abstain = append(tally.Abstain, name)
		default:
			e.logger.Debug("close poll: unknown choice dropped",
				"room", roomID, "voter", vote.VoterID, "choice", vote.Choice)
			continue
		}
		tally.Rows = append(tally.Rows, entity.ResultRow{Participant: name, Choice: vote.Choice})
	}

	// Present but silent participants abstain, unless the room counts
	// only explicit button presses.
	if !opts.ActiveVotesOnly {
		present, err := e.presence.ListPresent(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("close poll: list present: %w", err)
		}
		for _, participantID := range present {
			if voted[participantID] {
				continue
			}
			name, err := e.displayName(ctx, participantID)
			if err != nil {
				return nil, err
			}
			tally.Abstain = append(tally.Abstain, name)
			tally.Rows = append(tally.Rows, entity.ResultRow{Participant: name, Choice: entity.ChoiceAbstain})
		}
	}

	sortByLastName(tally.Yea)
	sortByLastName(tally.Nay)
	sortByLastName(tally.Abstain)
	sort.SliceStable(tally.Rows, func(i, j int) bool {
		return lastNameKey(tally.Rows[i].Participant) < lastNameKey(tally.Rows[j].Participant)
	})

	return tally, nil
}

func (e *Engine) displayName(ctx context.Context, participantID string) (string, error) {
	member, err := e.msgr.Member(ctx, participantID)
	if err != nil {
		return "", fmt.Errorf("close poll: resolve member %s: %w", participantID, err)
	}
	return member.DisplayName, nil
}

// Tally is the outcome of one closed poll.
type Tally struct {
	Subject   string
	MessageID string
	Yea       []string
	Nay       []string
	Abstain   []string
	Rows      []entity.ResultRow
}

// Counts returns the bucket sizes.
func (t *Tally) Counts() (yea, nay, abstain int) {
	return len(t.Yea), len(t.Nay), len(t.Abstain)
}

// sortByLastName orders display names by their final word, matching how
// the results card groups participants.
func sortByLastName(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return lastNameKey(names[i]) < lastNameKey(names[j])
	})
}

func lastNameKey(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}
