package matchdto

// CreateSessionRequest creates a session for two matched players.
type CreateSessionRequest struct {
	WhiteID     string `json:"white_id"`
	BlackID     string `json:"black_id"`
	Mode        string `json:"mode"`
	InitialMs   int64  `json:"initial_ms,omitempty"`
	IncrementMs int64  `json:"increment_ms,omitempty"`
}

// ActionRequest is the common body of every per-verb action endpoint.
// The acting color is resolved server-side from UserID.
type ActionRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type MoveRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Move      string `json:"move"`
}

type HandshakeRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Transport string `json:"transport,omitempty"`
}

type ActionResponse struct {
	OK      bool         `json:"ok"`
	Session *SessionView `json:"session,omitempty"`
	Error   *DomainError `json:"error,omitempty"`
}
