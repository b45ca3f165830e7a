package match

import "errors"

// Error is a recoverable, caller-visible coordinator error. Everything in
// this taxonomy is returned synchronously to the acting client and is never
// fatal to the session.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

var (
	ErrInvalidStateTransition = &Error{Code: "invalid_state_transition", Message: "action not valid for current session status"}
	ErrRatedModeViolation     = &Error{Code: "rated_mode_violation", Message: "not available in rated mode"}
	ErrUnauthorized           = &Error{Code: "unauthorized", Message: "actor is not a player of this session or not the addressee"}
	ErrAlreadyPending         = &Error{Code: "already_pending", Message: "a conflicting request is already pending"}
	ErrExpired                = &Error{Code: "expired", Message: "the request has expired"}
	ErrNotFound               = &Error{Code: "not_found", Message: "no such pending request"}
	ErrPreconditionFailed     = &Error{Code: "precondition_failed", Message: "request preconditions not met"}
	ErrSessionNotFound        = &Error{Code: "session_not_found", Message: "session not found"}
	ErrNotYourTurn            = &Error{Code: "not_your_turn", Message: "it is the opponent's turn"}
	ErrIllegalMove            = &Error{Code: "illegal_move", Message: "move is not legal in the current position"}
)

// ErrCode extracts the taxonomy code from an error chain, or "internal".
func ErrCode(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return "internal"
}
