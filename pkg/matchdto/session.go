package matchdto

import "time"

type ClockView struct {
	WhiteMs     int64  `json:"white_ms"`
	BlackMs     int64  `json:"black_ms"`
	IncrementMs int64  `json:"increment_ms"`
	Running     string `json:"running,omitempty"`
}

type PendingView struct {
	Kind      string    `json:"kind"`
	Initiator string    `json:"initiator"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ConnectionView struct {
	Connected       bool      `json:"connected"`
	LastHandshakeAt time.Time `json:"last_handshake_at,omitempty"`
}

// SessionView is the read model returned to clients (status query, reconnect sync).
type SessionView struct {
	ID        string                    `json:"id"`
	WhiteID   string                    `json:"white_id"`
	BlackID   string                    `json:"black_id"`
	Mode      string                    `json:"mode"`
	Status    string                    `json:"status"`
	Turn      string                    `json:"turn"`
	FEN       string                    `json:"fen"`
	MovesSAN  []string                  `json:"moves_san"`
	MovesUCI  []string                  `json:"moves_uci"`
	MoveCount int                       `json:"move_count"`
	Clock     ClockView                 `json:"clock"`
	Pending   *PendingView              `json:"pending,omitempty"`
	UndoLeft  map[string]int            `json:"undo_left,omitempty"`
	Conns     map[string]ConnectionView `json:"connections,omitempty"`
	Winner    string                    `json:"winner,omitempty"`
	EndReason string                    `json:"end_reason,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}
