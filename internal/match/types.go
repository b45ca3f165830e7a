package match

import (
	"time"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Mode separates rated play (no pause, no undo, clocks never stop) from casual play.
type Mode string

const (
	ModeRated  Mode = "rated"
	ModeCasual Mode = "casual"
)

// Status represents the session lifecycle state.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusActive   Status = "ACTIVE"
	StatusPaused   Status = "PAUSED"
	StatusFinished Status = "FINISHED"
	StatusAborted  Status = "ABORTED"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool { return s == StatusFinished || s == StatusAborted }

// EndReason records how a session reached a terminal state.
type EndReason string

const (
	EndCheckmate   EndReason = "checkmate"
	EndStalemate   EndReason = "stalemate"
	EndResignation EndReason = "resignation"
	EndDrawAgreed  EndReason = "draw_agreed"
	EndDraw        EndReason = "draw"
	EndTimeout     EndReason = "timeout"
	EndForfeit     EndReason = "forfeit"
	EndAbort       EndReason = "abort"
	EndSystemError EndReason = "system_error"
)

// RequestKind enumerates the consent negotiations sharing one workflow.
type RequestKind string

const (
	KindResume RequestKind = "resume"
	KindDraw   RequestKind = "draw"
	KindUndo   RequestKind = "undo"
)

type RequestStatus string

const (
	ReqPending    RequestStatus = "pending"
	ReqAccepted   RequestStatus = "accepted"
	ReqDeclined   RequestStatus = "declined"
	ReqExpired    RequestStatus = "expired"
	ReqSuperseded RequestStatus = "superseded"
)

// ClockState holds both countdown clocks. The remaining value for the running
// color is derived from LastTickAt on demand; the stored value is only settled
// at mutation points, so accuracy does not depend on timer scheduling.
type ClockState struct {
	WhiteMs     int64     `json:"white_ms"`
	BlackMs     int64     `json:"black_ms"`
	InitialMs   int64     `json:"initial_ms"`
	IncrementMs int64     `json:"increment_ms"`
	Running     Color     `json:"running,omitempty"`
	LastTickAt  time.Time `json:"last_tick_at"`
}

// PlayerConnection tracks transport connectivity for one color.
// Grace timers live on the registry's session wrapper, not here: connection
// state is part of the snapshot, timers are not.
type PlayerConnection struct {
	Connected       bool      `json:"connected"`
	Transport       string    `json:"transport,omitempty"`
	LastHandshakeAt time.Time `json:"last_handshake_at,omitempty"`
}

// PendingRequest is the single outstanding consent negotiation of a session.
type PendingRequest struct {
	Kind      RequestKind   `json:"kind"`
	Initiator Color         `json:"initiator"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Status    RequestStatus `json:"status"`
}

// GameSession is the authoritative state of one match. All mutation goes
// through the registry's per-session lock.
type GameSession struct {
	ID          string                      `json:"id"`
	WhiteID     string                      `json:"white_id"`
	BlackID     string                      `json:"black_id"`
	Mode        Mode                        `json:"mode"`
	Status      Status                      `json:"status"`
	Turn        Color                       `json:"turn"`
	FEN         string                      `json:"fen"`
	MovesUCI    []string                    `json:"moves_uci"`
	MovesSAN    []string                    `json:"moves_san"`
	Clock       ClockState                  `json:"clock"`
	Pending     *PendingRequest             `json:"pending,omitempty"`
	Connections map[Color]*PlayerConnection `json:"connections"`
	UndoLeft    map[Color]int               `json:"undo_left,omitempty"`
	Winner      string                      `json:"winner,omitempty"`
	EndReason   EndReason                   `json:"end_reason,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
	FinishedAt  time.Time                   `json:"finished_at,omitempty"`
}

func (g *GameSession) MoveCount() int { return len(g.MovesUCI) }

// PlayerColor resolves the acting color from caller identity.
func (g *GameSession) PlayerColor(userID string) (Color, bool) {
	switch userID {
	case "":
		return "", false
	case g.WhiteID:
		return White, true
	case g.BlackID:
		return Black, true
	}
	return "", false
}

// UserID returns the player id for a color.
func (g *GameSession) UserID(c Color) string {
	if c == White {
		return g.WhiteID
	}
	return g.BlackID
}

// Clone deep-copies the session so async I/O never touches live state.
func (g *GameSession) Clone() *GameSession {
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	if g.Pending != nil {
		p := *g.Pending
		cp.Pending = &p
	}
	cp.Connections = make(map[Color]*PlayerConnection, len(g.Connections))
	for c, pc := range g.Connections {
		v := *pc
		cp.Connections[c] = &v
	}
	if g.UndoLeft != nil {
		cp.UndoLeft = make(map[Color]int, len(g.UndoLeft))
		for c, n := range g.UndoLeft {
			cp.UndoLeft[c] = n
		}
	}
	return &cp
}
