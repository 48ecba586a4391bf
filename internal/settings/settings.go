// Package settings loads, merges, and persists bot configuration across
// the two scopes that share one shape: room-level and participant-level.
//
// A Values is an immutable snapshot; Merge is a pure function returning a
// new Values. There is no shared mutable default object - Defaults()
// returns a fresh value every time.
package settings

import (
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/store"
)

// Attribute names under which options are stored and submitted.
const (
	KeyLanguage             = "language"
	KeyPartialResults       = "partialResults"
	KeyActiveVotesOnly      = "activeVotesOnly"
	KeyUserOptedIntoDirect  = "userOptedIntoDirectChannel"
	KeyUserExplicitlyEdited = "userExplicitlyEdited"
	KeyLastSavedAt          = "lastSavedAt"
)

// Values is one scope's effective settings.
type Values struct {
	// Language is a BCP 47 locale identifier for outbound cards.
	Language string
	// PartialResults publishes a tally after every poll, not only at
	// meeting end.
	PartialResults bool
	// ActiveVotesOnly excludes silent participants from all tally
	// buckets instead of counting them as abstained.
	ActiveVotesOnly bool
	// UserOptedIntoDirectChannel records that the participant has
	// already been contacted one-to-one.
	UserOptedIntoDirectChannel bool
	// UserExplicitlyEdited gates whether a participant scope overrides
	// the room scope.
	UserExplicitlyEdited bool
	// LastSavedAt is the timestamp of the last persisted change.
	LastSavedAt time.Time
}

// Defaults returns the baseline settings for a scope with no stored record.
func Defaults() Values {
	return Values{
		Language:       "en",
		PartialResults: true,
	}
}

// Update is a partial settings submission, as delivered by a form. Keys
// not present keep the base value on merge - nothing is ever reset to
// defaults by an update.
type Update map[string]string

// Merge applies upd over base and returns the result. The merge is
// incremental and associative: merging {language} then {partialResults}
// changes both fields and nothing else. Textual true/false spellings
// ("yes"/"no"/"1"/"0") are normalized to booleans.
func Merge(base Values, upd Update) Values {
	merged := base
	for key, raw := range upd {
		switch key {
		case KeyLanguage:
			merged.Language = canonicalLanguage(raw, base.Language)
		case KeyPartialResults:
			merged.PartialResults = parseBool(raw, base.PartialResults)
		case KeyActiveVotesOnly:
			merged.ActiveVotesOnly = parseBool(raw, base.ActiveVotesOnly)
		case KeyUserOptedIntoDirect:
			merged.UserOptedIntoDirectChannel = parseBool(raw, base.UserOptedIntoDirectChannel)
		case KeyUserExplicitlyEdited:
			merged.UserExplicitlyEdited = parseBool(raw, base.UserExplicitlyEdited)
		case KeyLastSavedAt:
			if at, err := entity.ParseTimestamp(raw); err == nil {
				merged.LastSavedAt = at
			}
		}
		// Unknown keys are dropped, matching the fixed option set.
	}
	return merged
}

// Record encodes v as the settings row for one scope.
func Record(scopeID string, v Values) store.Record {
	attrs := map[string]string{
		KeyLanguage:             v.Language,
		KeyPartialResults:       formatBool(v.PartialResults),
		KeyActiveVotesOnly:      formatBool(v.ActiveVotesOnly),
		KeyUserOptedIntoDirect:  formatBool(v.UserOptedIntoDirectChannel),
		KeyUserExplicitlyEdited: formatBool(v.UserExplicitlyEdited),
	}
	if !v.LastSavedAt.IsZero() {
		attrs[KeyLastSavedAt] = entity.Timestamp(v.LastSavedAt)
	}
	return store.Record{
		PK:    scopeID,
		SK:    entity.SKSettings,
		Kind:  entity.KindSettings,
		Attrs: attrs,
	}
}

// Decode merges a stored settings record over the defaults. Attributes
// missing from the record keep their default value.
func Decode(rec *store.Record) Values {
	return Merge(Defaults(), Update(rec.Attrs))
}

// canonicalLanguage parses raw as a BCP 47 tag and returns its canonical
// form. Unparseable input keeps the previous value rather than poisoning
// the scope.
func canonicalLanguage(raw, prev string) string {
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return prev
	}
	return tag.String()
}

func parseBool(raw string, prev bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return prev
	}
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
