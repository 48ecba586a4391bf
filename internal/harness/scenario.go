package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a room setup, a sequence
// of inbound events, and assertions on the resulting state. Scenarios
// are stored as YAML under testdata/scenarios.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup establishes the room before the first event.
	Setup Setup `yaml:"setup,omitempty"`

	// Events is the inbound event sequence, delivered in order. The
	// harness clock advances one second before each event.
	Events []EventStep `yaml:"events"`

	// Assertions validate the final state after all events.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Setup describes the chat platform surroundings of the scenario's rooms.
type Setup struct {
	// Members maps participant ids to display names.
	Members map[string]string `yaml:"members,omitempty"`

	// Moderators maps room ids to their moderator participant ids.
	Moderators map[string][]string `yaml:"moderators,omitempty"`

	// DirectRooms lists rooms that are one-to-one channels.
	DirectRooms []string `yaml:"direct_rooms,omitempty"`
}

// EventStep is one inbound event.
type EventStep struct {
	// Event is the event name (joinedSpace, startMeeting, ...).
	Event string `yaml:"event"`

	// Room is the room the event concerns.
	Room string `yaml:"room"`

	// Actor is the participant id acting, if any.
	Actor string `yaml:"actor,omitempty"`

	// Inputs carries submitted form fields.
	Inputs map[string]string `yaml:"inputs,omitempty"`

	// CurrentPoll, when true, resolves the event's poll message id from
	// the room's stored poll state before delivery. Used by vote and
	// end-poll steps, whose real-world payload carries the card id.
	CurrentPoll bool `yaml:"current_poll,omitempty"`
}

// Assertion validates one aspect of the final state.
type Assertion struct {
	// Type is one of: state, poll_tag, snapshots, messages, present,
	// unrouted.
	Type string `yaml:"type"`

	// Room scopes the assertion, where applicable.
	Room string `yaml:"room,omitempty"`

	// Equals is the expected value for state and poll_tag assertions.
	Equals string `yaml:"equals,omitempty"`

	// Count is the expected count for snapshots, messages, present, and
	// unrouted assertions.
	Count int `yaml:"count"`
}

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadScenarios reads every *.yaml scenario under dir, sorted by name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	sort.Strings(matches)

	scenarios := make([]*Scenario, 0, len(matches))
	for _, path := range matches {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func (s *Scenario) validate() error {
	if len(s.Events) == 0 {
		return fmt.Errorf("no events")
	}
	for i, step := range s.Events {
		if step.Event == "" {
			return fmt.Errorf("event %d: missing event name", i)
		}
		if step.Room == "" {
			return fmt.Errorf("event %d (%s): missing room", i, step.Event)
		}
	}
	for i, a := range s.Assertions {
		switch a.Type {
		case "state", "poll_tag":
			if a.Room == "" || a.Equals == "" {
				return fmt.Errorf("assertion %d (%s): needs room and equals", i, a.Type)
			}
		case "snapshots", "present":
			if a.Room == "" {
				return fmt.Errorf("assertion %d (%s): needs room", i, a.Type)
			}
		case "messages", "unrouted":
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
	}
	return nil
}
