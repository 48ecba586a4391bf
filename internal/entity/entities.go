package entity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/quorum/internal/store"
)

// RoomState is the FSM's single source of truth for what a room is doing.
// At most one exists per room; it is overwritten on every transition.
type RoomState struct {
	RoomID string
	State  string
}

func (r RoomState) Record() store.Record {
	return store.Record{
		PK:    r.RoomID,
		SK:    SKRoomState,
		Kind:  KindRoomState,
		Attrs: map[string]string{"value": r.State},
	}
}

func DecodeRoomState(rec *store.Record) RoomState {
	return RoomState{RoomID: rec.PK, State: rec.Attr("value")}
}

// PresenceRecord marks a participant's attendance in a room. Rows are
// reset to false at meeting end rather than deleted, to keep history.
type PresenceRecord struct {
	RoomID        string
	ParticipantID string
	Present       bool
}

func (p PresenceRecord) Record() store.Record {
	return store.Record{
		PK:    p.RoomID,
		SK:    p.ParticipantID,
		Kind:  KindPresence,
		Attrs: map[string]string{"status": strconv.FormatBool(p.Present)},
	}
}

func DecodePresence(rec *store.Record) PresenceRecord {
	return PresenceRecord{
		RoomID:        rec.PK,
		ParticipantID: rec.SK,
		Present:       rec.Attr("status") == "true",
	}
}

// PollState tracks the one poll a room may have open. The Tag is RUNNING
// or ENDED; MessageID identifies the poll card and anchors the
// idempotence guard for racing close events.
type PollState struct {
	RoomID      string
	Tag         string
	Subject     string
	TimeLimit   int // seconds
	MessageID   string
	InitiatorID string
}

func (p PollState) Record() store.Record {
	return store.Record{
		PK:   p.RoomID,
		SK:   SKPollState,
		Kind: KindPollState,
		Attrs: map[string]string{
			"tag":       p.Tag,
			"subject":   p.Subject,
			"timeLimit": strconv.Itoa(p.TimeLimit),
			"messageId": p.MessageID,
			"initiator": p.InitiatorID,
		},
	}
}

func DecodePollState(rec *store.Record) (PollState, error) {
	limit := 0
	if raw := rec.Attr("timeLimit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return PollState{}, fmt.Errorf("decode poll state: bad timeLimit %q: %w", raw, err)
		}
		limit = n
	}
	return PollState{
		RoomID:      rec.PK,
		Tag:         rec.Attr("tag"),
		Subject:     rec.Attr("subject"),
		TimeLimit:   limit,
		MessageID:   rec.Attr("messageId"),
		InitiatorID: rec.Attr("initiator"),
	}, nil
}

// VoteRecord is one participant's choice in one poll. Keyed by the poll
// card's message id, so a re-vote overwrites (last choice wins).
type VoteRecord struct {
	PollMessageID string
	VoterID       string
	Choice        string
}

func (v VoteRecord) Record() store.Record {
	return store.Record{
		PK:    v.PollMessageID,
		SK:    v.VoterID,
		Kind:  KindVote,
		Attrs: map[string]string{"vote": v.Choice},
	}
}

func DecodeVote(rec *store.Record) VoteRecord {
	return VoteRecord{
		PollMessageID: rec.PK,
		VoterID:       rec.SK,
		Choice:        rec.Attr("vote"),
	}
}

// MeetingMarker is an append-only start or end boundary of a meeting.
// The timestamp is the secondary key, so markers range-scan in time order.
type MeetingMarker struct {
	RoomID  string
	At      time.Time
	Kind    string // KindMeetingStart or KindMeetingEnd
	Subject string
}

func (m MeetingMarker) Record() store.Record {
	return store.Record{
		PK:    m.RoomID,
		SK:    Timestamp(m.At),
		Kind:  m.Kind,
		Attrs: map[string]string{"subject": m.Subject},
	}
}

func DecodeMeetingMarker(rec *store.Record) (MeetingMarker, error) {
	at, err := ParseTimestamp(rec.SK)
	if err != nil {
		return MeetingMarker{}, fmt.Errorf("decode meeting marker: %w", err)
	}
	return MeetingMarker{
		RoomID:  rec.PK,
		At:      at,
		Kind:    rec.Kind,
		Subject: rec.Attr("subject"),
	}, nil
}

// Deadline is a persisted poll-close timer. The sweep re-reads these
// after a restart, which is what lets the deferred close survive the
// process that armed it.
type Deadline struct {
	RoomID        string
	PollMessageID string
	Subject       string
	FiresAt       time.Time
}

func (d Deadline) Record() store.Record {
	return store.Record{
		PK:   d.RoomID,
		SK:   SKDeadline,
		Kind: KindDeadline,
		Attrs: map[string]string{
			"messageId": d.PollMessageID,
			"subject":   d.Subject,
			"firesAt":   Timestamp(d.FiresAt),
		},
	}
}

func DecodeDeadline(rec *store.Record) (Deadline, error) {
	at, err := ParseTimestamp(rec.Attr("firesAt"))
	if err != nil {
		return Deadline{}, fmt.Errorf("decode deadline: %w", err)
	}
	return Deadline{
		RoomID:        rec.PK,
		PollMessageID: rec.Attr("messageId"),
		Subject:       rec.Attr("subject"),
		FiresAt:       at,
	}, nil
}
