package harness

import (
	"context"
	"fmt"

	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/presence"
)

// CheckAssertions evaluates every assertion against the run's final
// state and returns one error per failed assertion.
func CheckAssertions(scenario *Scenario, result *Result) []error {
	ctx := context.Background()
	var failures []error

	for i, a := range scenario.Assertions {
		if err := checkOne(ctx, a, result); err != nil {
			failures = append(failures, fmt.Errorf("assertion %d (%s): %w", i, a.Type, err))
		}
	}
	return failures
}

func checkOne(ctx context.Context, a Assertion, result *Result) error {
	switch a.Type {
	case "state":
		got := roomState(ctx, result.Store, a.Room)
		if got != a.Equals {
			return fmt.Errorf("room %s: state %q, want %q", a.Room, got, a.Equals)
		}

	case "poll_tag":
		rec, err := result.Store.Get(ctx, a.Room, entity.SKPollState)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("room %s: no poll state", a.Room)
		}
		state, err := entity.DecodePollState(rec)
		if err != nil {
			return err
		}
		if state.Tag != a.Equals {
			return fmt.Errorf("room %s: poll tag %q, want %q", a.Room, state.Tag, a.Equals)
		}

	case "snapshots":
		recs, err := result.Store.QueryPrimaryKind(ctx, a.Room, entity.KindResults)
		if err != nil {
			return err
		}
		if len(recs) != a.Count {
			return fmt.Errorf("room %s: %d snapshots, want %d", a.Room, len(recs), a.Count)
		}

	case "messages":
		if got := len(result.Messenger.Sent()); got != a.Count {
			return fmt.Errorf("%d messages sent, want %d", got, a.Count)
		}

	case "present":
		ids, err := presence.NewTracker(result.Store).ListPresent(ctx, a.Room)
		if err != nil {
			return err
		}
		if len(ids) != a.Count {
			return fmt.Errorf("room %s: %d present, want %d", a.Room, len(ids), a.Count)
		}

	case "unrouted":
		if got := result.Dispatcher.UnroutedCount(); got != int64(a.Count) {
			return fmt.Errorf("%d unrouted events, want %d", got, a.Count)
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
