package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/quorum/internal/store"
)

// ResultRow is one (participant, choice) pair in a poll's final tally.
type ResultRow struct {
	Participant string `json:"participant"`
	Choice      string `json:"choice"`
}

// ResultsSnapshot is the immutable record of one closed poll. Written
// exactly once at poll close and never mutated; later aggregation only
// reads ranges of them.
type ResultsSnapshot struct {
	RoomID        string
	PollMessageID string
	Subject       string
	At            time.Time
	Rows          []ResultRow
}

func (s ResultsSnapshot) Record() (store.Record, error) {
	rows, err := json.Marshal(s.Rows)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode results snapshot: %w", err)
	}
	return store.Record{
		PK:   s.RoomID,
		SK:   s.PollMessageID,
		Kind: KindResults,
		Attrs: map[string]string{
			"subject":   s.Subject,
			"timestamp": Timestamp(s.At),
			"rows":      string(rows),
		},
	}, nil
}

func DecodeResultsSnapshot(rec *store.Record) (ResultsSnapshot, error) {
	at, err := ParseTimestamp(rec.Attr("timestamp"))
	if err != nil {
		return ResultsSnapshot{}, fmt.Errorf("decode results snapshot: %w", err)
	}

	var rows []ResultRow
	if raw := rec.Attr("rows"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rows); err != nil {
			return ResultsSnapshot{}, fmt.Errorf("decode results snapshot rows: %w", err)
		}
	}

	return ResultsSnapshot{
		RoomID:        rec.PK,
		PollMessageID: rec.SK,
		Subject:       rec.Attr("subject"),
		At:            at,
		Rows:          rows,
	}, nil
}
