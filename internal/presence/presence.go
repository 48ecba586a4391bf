// Package presence tracks which participants are marked present in a
// room's current meeting.
//
// A participant becomes present either through an explicit presence
// action or implicitly by casting any vote. At meeting end the flags are
// reset rather than deleted, so the row history survives.
package presence

import (
	"context"
	"fmt"

	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/store"
)

// Tracker owns the PRESENT rows of each room.
type Tracker struct {
	store *store.Store
}

// NewTracker creates a tracker backed by the shared record store.
func NewTracker(s *store.Store) *Tracker {
	return &Tracker{store: s}
}

// Mark records participantID as present in roomID. Naturally idempotent:
// marking twice is one row.
func (t *Tracker) Mark(ctx context.Context, roomID, participantID string) error {
	return t.set(ctx, roomID, participantID, true)
}

// ClearAll resets every presence flag in the room to false. Rows are kept,
// not deleted - the meeting is over but the history stays.
func (t *Tracker) ClearAll(ctx context.Context, roomID string) error {
	present, err := t.ListPresent(ctx, roomID)
	if err != nil {
		return err
	}
	for _, participantID := range present {
		if err := t.set(ctx, roomID, participantID, false); err != nil {
			return err
		}
	}
	return nil
}

// ListPresent returns the ids of all participants currently marked
// present in roomID, in secondary-key order.
func (t *Tracker) ListPresent(ctx context.Context, roomID string) ([]string, error) {
	records, err := t.store.QueryPrimaryKind(ctx, roomID, entity.KindPresence)
	if err != nil {
		return nil, fmt.Errorf("list present for room %s: %w", roomID, err)
	}

	present := []string{}
	for i := range records {
		p := entity.DecodePresence(&records[i])
		if p.Present {
			present = append(present, p.ParticipantID)
		}
	}
	return present, nil
}

func (t *Tracker) set(ctx context.Context, roomID, participantID string, status bool) error {
	rec := entity.PresenceRecord{RoomID: roomID, ParticipantID: participantID, Present: status}.Record()
	if err := t.store.Put(ctx, rec.PK, rec.SK, rec.Kind, rec.Attrs); err != nil {
		return fmt.Errorf("set presence %s in room %s: %w", participantID, roomID, err)
	}
	return nil
}
