package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-coordinator/internal/match"
)

// Validator implements match.MoveValidator on top of corentings/chess.
// Positions are always reconstructed from the start position by replaying the
// stored UCI moves; the session FEN is presentation state, replaying it here
// could double-apply moves.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

var _ match.MoveValidator = (*Validator)(nil)

// Apply replays the move list, then applies the submitted move (UCI
// preferred, SAN fallback) and reports the resulting position and outcome.
func (v *Validator) Apply(movesUCI []string, move string) (*match.MoveResult, error) {
	game, err := reconstruct(movesUCI)
	if err != nil {
		return nil, err
	}
	pos := game.Position()

	raw := strings.TrimSpace(move)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty move", match.ErrIllegalMove)
	}

	var applied *nchess.Move
	uci := strings.ToLower(raw)
	if _, derr := (nchess.UCINotation{}).Decode(pos, uci); derr == nil {
		if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: %s", match.ErrIllegalMove, raw)
		}
	} else {
		if err := game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: %s", match.ErrIllegalMove, raw)
		}
	}
	applied = lastMove(game)
	if applied == nil {
		return nil, fmt.Errorf("%w: %s", match.ErrIllegalMove, raw)
	}

	res := &match.MoveResult{
		UCI:      applied.String(),
		SAN:      nchess.AlgebraicNotation{}.Encode(pos, applied),
		FEN:      game.FEN(),
		NextTurn: colorFrom(game.Position().Turn()),
		Outcome:  outcomeOf(game),
	}
	return res, nil
}

// Rewind reconstructs the position after undo trimmed the move list.
func (v *Validator) Rewind(movesUCI []string) (*match.PositionInfo, error) {
	game, err := reconstruct(movesUCI)
	if err != nil {
		return nil, err
	}
	return &match.PositionInfo{
		FEN:  game.FEN(),
		Turn: colorFrom(game.Position().Turn()),
	}, nil
}

func reconstruct(moves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for i, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
	}
	return game, nil
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func colorFrom(c nchess.Color) match.Color {
	if c == nchess.White {
		return match.White
	}
	return match.Black
}

func outcomeOf(game *nchess.Game) match.MoveOutcome {
	switch game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		return match.OutcomeCheckmate
	case nchess.Draw:
		if game.Method() == nchess.Stalemate {
			return match.OutcomeStalemate
		}
		return match.OutcomeDraw
	default:
		return match.OutcomeNone
	}
}
