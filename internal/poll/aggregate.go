package poll

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/quorum/internal/entity"
)

// maxTimestamp is the upper bound for open-ended marker range scans.
const maxTimestamp = "9999-12-31T23:59:59.999Z"

// MeetingResults collects the result snapshots of the room's most recent
// meeting, in poll-close order. The meeting window is bounded by the
// latest MEETING_START marker and the first MEETING_END after it (or now,
// if the meeting is still open).
func (e *Engine) MeetingResults(ctx context.Context, roomID string) ([]entity.ResultsSnapshot, error) {
	start, end, err := e.meetingWindow(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if start.IsZero() {
		return []entity.ResultsSnapshot{}, nil
	}

	recs, err := e.store.QueryPrimaryKind(ctx, roomID, entity.KindResults)
	if err != nil {
		return nil, fmt.Errorf("meeting results: read snapshots: %w", err)
	}

	snapshots := []entity.ResultsSnapshot{}
	for i := range recs {
		snap, err := entity.DecodeResultsSnapshot(&recs[i])
		if err != nil {
			return nil, fmt.Errorf("meeting results: %w", err)
		}
		if snap.At.Before(start) || snap.At.After(end) {
			continue
		}
		snapshots = append(snapshots, snap)
	}

	// Snapshot rows are keyed by message id, so restore close order.
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].At.Before(snapshots[j].At)
	})

	return snapshots, nil
}

// MarkMeeting appends a start or end boundary marker for the room.
func (e *Engine) MarkMeeting(ctx context.Context, roomID, kind, subject string) error {
	marker := entity.MeetingMarker{RoomID: roomID, At: e.now(), Kind: kind, Subject: subject}
	rec := marker.Record()
	if err := e.store.Put(ctx, rec.PK, rec.SK, rec.Kind, rec.Attrs); err != nil {
		return fmt.Errorf("mark meeting %s: %w", kind, err)
	}
	return nil
}

// meetingWindow returns the bounds of the most recent meeting. A zero
// start means no meeting has ever started in the room.
func (e *Engine) meetingWindow(ctx context.Context, roomID string) (start, end time.Time, err error) {
	starts, err := e.store.QueryPrimaryKind(ctx, roomID, entity.KindMeetingStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("meeting window: read start markers: %w", err)
	}
	if len(starts) == 0 {
		return time.Time{}, time.Time{}, nil
	}

	latest, err := entity.DecodeMeetingMarker(&starts[len(starts)-1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("meeting window: %w", err)
	}
	start = latest.At

	// First end marker at or after the start bounds the window; an open
	// meeting runs to now.
	ends, err := e.store.QueryPrimaryKindRange(ctx, roomID, entity.KindMeetingEnd,
		entity.Timestamp(start), maxTimestamp)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("meeting window: read end markers: %w", err)
	}
	if len(ends) == 0 {
		return start, e.now(), nil
	}

	first, err := entity.DecodeMeetingMarker(&ends[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("meeting window: %w", err)
	}
	return start, first.At, nil
}
