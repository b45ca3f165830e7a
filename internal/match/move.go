package match

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/chess-coordinator/internal/broadcast"
	"github.com/park285/chess-coordinator/internal/obslog"
	"github.com/park285/chess-coordinator/pkg/matchdto"
)

// SubmitMove validates and applies a move for the acting player, switches the
// running clock, and finalizes the session when the validator reports a
// decisive or drawn outcome.
func (r *Registry) SubmitMove(ctx context.Context, sessionID, userID, move string) (*matchdto.SessionView, error) {
	move = strings.TrimSpace(move)
	if move == "" {
		return nil, fmt.Errorf("%w: empty move", ErrIllegalMove)
	}
	var view *matchdto.SessionView
	err := r.withSession(ctx, sessionID, func(s *session) error {
		g := s.g
		if g.Status.Terminal() {
			return fmt.Errorf("%w: session already %s", ErrInvalidStateTransition, g.Status)
		}
		color, ok := g.PlayerColor(userID)
		if !ok {
			return ErrUnauthorized
		}
		if g.Status != StatusActive {
			return fmt.Errorf("%w: moves require an active session", ErrInvalidStateTransition)
		}
		if r.checkFlagLocked(s) {
			return fmt.Errorf("%w: session finished on time", ErrInvalidStateTransition)
		}
		if g.Turn != color {
			return ErrNotYourTurn
		}

		res, err := r.validator.Apply(g.MovesUCI, move)
		if err != nil {
			return err
		}

		g.MovesUCI = append(g.MovesUCI, res.UCI)
		g.MovesSAN = append(g.MovesSAN, res.SAN)
		g.FEN = res.FEN
		g.Turn = res.NextTurn
		r.clock.ApplyMove(g, color)
		now := r.opts.Now()
		g.UpdatedAt = now

		obslog.L().Info("move_apply",
			zap.String("session_id", g.ID),
			zap.String("color", string(color)),
			zap.String("uci", res.UCI),
			zap.String("san", res.SAN),
			zap.Int("move_count", g.MoveCount()),
			zap.String("outcome", string(res.Outcome)),
		)

		ev := r.eventBase(g, broadcast.EventMoveApplied)
		ev.Move = &broadcast.MovePayload{
			UCI:       res.UCI,
			SAN:       res.SAN,
			FEN:       g.FEN,
			Turn:      string(g.Turn),
			MoveCount: g.MoveCount(),
			Color:     string(color),
		}
		ev.Clock = r.clockPayload(g)
		r.enqueueLocked(s, []string{broadcast.SessionChannel(g.ID)}, ev)

		switch res.Outcome {
		case OutcomeCheckmate:
			r.finalizeLocked(s, color, EndCheckmate)
		case OutcomeStalemate:
			r.finalizeLocked(s, "", EndStalemate)
		case OutcomeDraw:
			r.finalizeLocked(s, "", EndDraw)
		default:
			if now.Sub(s.lastSnapshot) >= r.opts.SnapshotInterval {
				r.snapshotLocked(s)
			}
		}
		view = r.viewOf(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}
