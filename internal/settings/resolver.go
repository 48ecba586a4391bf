package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/store"
)

// Resolver resolves the effective settings for an event from the room
// scope and, when a participant is known, the participant scope.
type Resolver struct {
	store *store.Store
	now   func() time.Time
}

// NewResolver creates a resolver backed by the shared record store.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s, now: time.Now}
}

// SetClock overrides the wall clock. Used in tests.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Resolve returns the effective settings for an event in roomID, acted by
// participantID (may be empty when the event carries no actor).
//
// If the participant scope exists and carries the explicitly-edited flag,
// its values fully replace the room scope for this event, and the result
// is persisted back into the room scope: once observed, a participant's
// personal preference becomes the room's effective setting.
func (r *Resolver) Resolve(ctx context.Context, roomID, participantID string) (Values, error) {
	room, err := r.Scope(ctx, roomID)
	if err != nil {
		return Values{}, err
	}

	if participantID == "" {
		return room, nil
	}

	rec, err := r.store.Get(ctx, participantID, entity.SKSettings)
	if err != nil {
		return Values{}, fmt.Errorf("resolve settings for %s: %w", participantID, err)
	}
	if rec == nil {
		return room, nil
	}

	user := Decode(rec)
	if !user.UserExplicitlyEdited {
		return room, nil
	}

	user.LastSavedAt = r.now()
	if err := r.store.Put(ctx, roomID, entity.SKSettings, entity.KindSettings, Record(roomID, user).Attrs); err != nil {
		return Values{}, fmt.Errorf("persist effective settings for room %s: %w", roomID, err)
	}

	return user, nil
}

// Scope loads one scope's settings, defaulted when absent.
func (r *Resolver) Scope(ctx context.Context, scopeID string) (Values, error) {
	rec, err := r.store.Get(ctx, scopeID, entity.SKSettings)
	if err != nil {
		return Values{}, fmt.Errorf("load settings for %s: %w", scopeID, err)
	}
	if rec == nil {
		return Defaults(), nil
	}
	return Decode(rec), nil
}

// SaveScope merges upd over the stored scope settings and persists the
// result with a fresh LastSavedAt.
func (r *Resolver) SaveScope(ctx context.Context, scopeID string, upd Update) (Values, error) {
	base, err := r.Scope(ctx, scopeID)
	if err != nil {
		return Values{}, err
	}

	merged := Merge(base, upd)
	merged.LastSavedAt = r.now()

	if err := r.store.Put(ctx, scopeID, entity.SKSettings, entity.KindSettings, Record(scopeID, merged).Attrs); err != nil {
		return Values{}, fmt.Errorf("save settings for %s: %w", scopeID, err)
	}

	return merged, nil
}
