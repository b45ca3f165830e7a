package match

import "context"

// MoveOutcome is what the validator reports about the position after a move.
type MoveOutcome string

const (
	OutcomeNone      MoveOutcome = "none"
	OutcomeCheckmate MoveOutcome = "checkmate"
	OutcomeStalemate MoveOutcome = "stalemate"
	OutcomeDraw      MoveOutcome = "draw"
)

// MoveResult is the validator's verdict on a submitted move.
type MoveResult struct {
	UCI      string
	SAN      string
	FEN      string
	NextTurn Color
	Outcome  MoveOutcome
}

// PositionInfo describes a reconstructed position (used after undo).
type PositionInfo struct {
	FEN  string
	Turn Color
}

// MoveValidator is the external rules capability. Apply returns
// ErrIllegalMove (wrapped) for rejected moves.
type MoveValidator interface {
	Apply(movesUCI []string, move string) (*MoveResult, error)
	Rewind(movesUCI []string) (*PositionInfo, error)
}

// PersistenceGateway stores session checkpoints and final results. The
// registry treats it as a fallback, never as the live source of truth.
type PersistenceGateway interface {
	SaveSnapshot(ctx context.Context, g *GameSession) error
	LoadSnapshot(ctx context.Context, id string) (*GameSession, error)
	SaveResult(ctx context.Context, g *GameSession) error
}
