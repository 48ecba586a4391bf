package meeting

// State enumerates what a room is doing. The value is persisted verbatim
// as the room's FSM_STATE record.
type State string

const (
	// StateUnseen is the implicit state of a room with no FSM_STATE row
	// yet. It is never persisted and matches transition rules the same
	// way StateIdle does.
	StateUnseen State = ""

	StateIdle            State = "IDLE"
	StateWelcome         State = "WELCOME"
	StateRoomSettings    State = "ROOM_SETTINGS"
	StateMeetingInactive State = "MEETING_INACTIVE"
	StateMeetingActive   State = "MEETING_ACTIVE"
	StatePollRunning     State = "POLL_RUNNING"
	StateRemoved         State = "REMOVED"
)

// EventName identifies an inbound event kind.
type EventName string

const (
	EventJoinedSpace           EventName = "joinedSpace"
	EventDirectlyAddressed     EventName = "directlyAddressed"
	EventStartMeeting          EventName = "startMeeting"
	EventEndMeeting            EventName = "endMeeting"
	EventPresence              EventName = "presence"
	EventStartPoll             EventName = "startPoll"
	EventPollVoteCast          EventName = "pollVoteCast"
	EventEndPoll               EventName = "endPoll"
	EventRoomSettingsSubmitted EventName = "roomSettingsSubmitted"
	EventUserSettingsSubmitted EventName = "userSettingsSubmitted"
	EventRemovedFromSpace      EventName = "removedFromSpace"
)

// Event is one normalized inbound notification as the transport delivers
// it: an event name, the room it concerns, and the payload fields the
// bound action may need. Delivery is at-least-once and unordered;
// actions are written to tolerate duplicates.
type Event struct {
	Name    EventName
	RoomID  string
	ActorID string
	// MessageID is the id of the message the event refers to (the card
	// a form submission came from).
	MessageID string
	// PollMessageID identifies which poll an endPoll event is meant
	// for. A close for a poll that has already been superseded is
	// dropped by the idempotence guard.
	PollMessageID string
	// Inputs carries submitted form fields.
	Inputs map[string]string
}

// Input returns a submitted form field, or "" if absent.
func (e Event) Input(key string) string {
	if e.Inputs == nil {
		return ""
	}
	return e.Inputs[key]
}

// Outcome is an action's verdict on the declared transition. Actions
// normally accept the table's target state; returning an override (the
// moderator gate rejecting a start, the welcome flow detouring into
// settings) replaces it after the fact.
type Outcome struct {
	Override    State
	HasOverride bool
}

// keep is the neutral outcome: the declared target stands.
func keep() Outcome {
	return Outcome{}
}

// override replaces the declared target with s.
func override(s State) Outcome {
	return Outcome{Override: s, HasOverride: true}
}
