package entity

// Discriminator values for the shared table. The kind column tags which
// entity shape a record carries; the secondary index keys on (sk, kind).
const (
	KindRoomState    = "FSM_STATE"
	KindPresence     = "PRESENT"
	KindPollState    = "POLL_STATE"
	KindVote         = "POLL_DATA"
	KindMeetingStart = "MEETING_START"
	KindMeetingEnd   = "MEETING_END"
	KindResults      = "RESULTS"
	KindSettings     = "SETTINGS"
	KindDeadline     = "DEADLINE"
)

// Well-known secondary keys for the singleton-per-scope kinds. A room has
// at most one FSM state row and one poll state row; a scope has at most
// one settings row.
const (
	SKRoomState = "FSM_STATE"
	SKPollState = "POLL_STATE"
	SKSettings  = "SETTINGS"
	SKDeadline  = "DEADLINE"
)

// Poll lifecycle tags held in PollState. These are the only legal values;
// a poll's full history lives in ResultsSnapshot, not here.
const (
	PollTagRunning = "RUNNING"
	PollTagEnded   = "ENDED"
)

// Vote choices. A participant who never presses a button is classified at
// tally time, not stored.
const (
	ChoiceYea     = "yea"
	ChoiceNay     = "nay"
	ChoiceAbstain = "abstain"
)
