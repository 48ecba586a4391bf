package meeting

import "context"

// actionFunc is the work bound to a transition, expressed as a method
// on Dispatcher. It runs after the declared target state has been
// persisted; returning an override replaces that target afterwards.
// cur is the state the room was in before the transition.
type actionFunc func(d *Dispatcher, ctx context.Context, ev Event, cur State) (Outcome, error)

// sameState as a rule target keeps the room's current state.
const sameState State = "SAME_STATE"

// rule is one row of the transition table. An empty states slice matches
// any current state; such rows are placed after every exact-state row
// for their event, so a wildcard only applies when no exact rule did.
type rule struct {
	states []State
	event  EventName
	action actionFunc
	next   State
}

func (r *rule) matches(cur State, event EventName) bool {
	if r.event != event {
		return false
	}
	if len(r.states) == 0 {
		return true
	}
	for _, s := range r.states {
		if s == cur {
			return true
		}
	}
	return false
}

// transitions is the immutable transition table, resolved first-match at
// dispatch time. Order matters: exact-state rules precede the any-state
// rules for the same event.
var transitions = []rule{
	{
		states: []State{StateUnseen, StateIdle},
		event:  EventJoinedSpace,
		action: (*Dispatcher).actAnnounce,
		next:   StateWelcome,
	},
	{
		// Re-invited while already known: announce again, idempotent.
		event:  EventJoinedSpace,
		action: (*Dispatcher).actAnnounce,
		next:   StateWelcome,
	},
	{
		states: []State{StateWelcome, StateMeetingInactive},
		event:  EventStartMeeting,
		action: (*Dispatcher).actStartMeeting,
		next:   StateMeetingActive,
	},
	{
		states: []State{StateRoomSettings},
		event:  EventRoomSettingsSubmitted,
		action: (*Dispatcher).actRoomSettingsThenWelcome,
		next:   StateWelcome,
	},
	{
		states: []State{StateMeetingInactive},
		event:  EventRoomSettingsSubmitted,
		action: (*Dispatcher).actRoomSettings,
		next:   sameState,
	},
	{
		states: []State{StateMeetingActive, StatePollRunning},
		event:  EventPresence,
		action: (*Dispatcher).actPresence,
		next:   sameState,
	},
	{
		event:  EventEndMeeting,
		action: (*Dispatcher).actEndMeeting,
		next:   StateMeetingInactive,
	},
	{
		states: []State{StateMeetingActive},
		event:  EventStartPoll,
		action: (*Dispatcher).actStartPoll,
		next:   StatePollRunning,
	},
	{
		states: []State{StatePollRunning},
		event:  EventPollVoteCast,
		action: (*Dispatcher).actPollVote,
		next:   sameState,
	},
	{
		states: []State{StatePollRunning},
		event:  EventEndPoll,
		action: (*Dispatcher).actEndPoll,
		next:   StateMeetingActive,
	},
	{
		event:  EventRemovedFromSpace,
		action: (*Dispatcher).actRemoved,
		next:   StateRemoved,
	},
	{
		event:  EventUserSettingsSubmitted,
		action: (*Dispatcher).actUserSettings,
		next:   sameState,
	},
}

// matchTransition returns the first rule matching (cur, event), or nil.
func matchTransition(cur State, event EventName) *rule {
	for i := range transitions {
		if transitions[i].matches(cur, event) {
			return &transitions[i]
		}
	}
	return nil
}
