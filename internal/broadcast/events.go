package broadcast

import "time"

// EventType enumerates everything the coordinator pushes to clients.
type EventType string

const (
	EventSessionActivated EventType = "session.activated"
	EventClockSync        EventType = "clock.sync"
	EventMoveApplied      EventType = "move.applied"
	EventSessionPaused    EventType = "session.paused"
	EventResumeRequested  EventType = "resume.requested"
	EventResumeAccepted   EventType = "resume.accepted"
	EventResumeDeclined   EventType = "resume.declined"
	EventDrawOffered      EventType = "draw.offered"
	EventDrawAccepted     EventType = "draw.accepted"
	EventDrawDeclined     EventType = "draw.declined"
	EventUndoRequested    EventType = "undo.requested"
	EventUndoAccepted     EventType = "undo.accepted"
	EventUndoDeclined     EventType = "undo.declined"
	EventSessionFinished  EventType = "session.finished"
	EventSessionAborted   EventType = "session.aborted"
)

// MovePayload describes an applied move and the resulting position.
type MovePayload struct {
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
	FEN       string `json:"fen"`
	Turn      string `json:"turn"`
	MoveCount int    `json:"move_count"`
	Color     string `json:"color"`
}

// ClockPayload is display-only; the server value stays authoritative.
type ClockPayload struct {
	WhiteMs int64  `json:"white_ms"`
	BlackMs int64  `json:"black_ms"`
	Running string `json:"running,omitempty"`
}

// RequestPayload describes a consent request transition.
type RequestPayload struct {
	Kind      string    `json:"kind"`
	Initiator string    `json:"initiator"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// StatePayload carries a position after a non-move state change (undo accept, pause, resume).
type StatePayload struct {
	FEN       string `json:"fen"`
	Turn      string `json:"turn"`
	MoveCount int    `json:"move_count"`
	UndoLeft  int    `json:"undo_left,omitempty"`
}

// FinishPayload describes a terminal transition.
type FinishPayload struct {
	Winner    string `json:"winner,omitempty"`
	EndReason string `json:"end_reason"`
}

// Event is the tagged union broadcast over session and user channels.
// Exactly the payloads relevant to Type are set.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	At        time.Time       `json:"at"`
	Move      *MovePayload    `json:"move,omitempty"`
	Clock     *ClockPayload   `json:"clock,omitempty"`
	Request   *RequestPayload `json:"request,omitempty"`
	State     *StatePayload   `json:"state,omitempty"`
	Finish    *FinishPayload  `json:"finish,omitempty"`
}
