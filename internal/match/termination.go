package match

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-coordinator/internal/broadcast"
	"github.com/park285/chess-coordinator/internal/obslog"
	"github.com/park285/chess-coordinator/pkg/matchdto"
)

// Resign ends the session with the opponent as winner.
func (r *Registry) Resign(ctx context.Context, sessionID, userID string) (*matchdto.SessionView, error) {
	return r.terminalAction(ctx, sessionID, userID, EndResignation)
}

// Forfeit ends the session against the forfeiting player.
func (r *Registry) Forfeit(ctx context.Context, sessionID, userID string) (*matchdto.SessionView, error) {
	return r.terminalAction(ctx, sessionID, userID, EndForfeit)
}

func (r *Registry) terminalAction(ctx context.Context, sessionID, userID string, reason EndReason) (*matchdto.SessionView, error) {
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
		if g.Status != StatusActive && g.Status != StatusPaused {
			return fmt.Errorf("%w: %s requires a running session", ErrInvalidStateTransition, reason)
		}
		if r.checkFlagLocked(s) {
			return fmt.Errorf("%w: session finished on time", ErrInvalidStateTransition)
		}
		r.finalizeLocked(s, color.Opponent(), reason)
		view = r.viewOf(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Abort cancels a session that never meaningfully started. An empty userID is
// a system-initiated abort (e.g. one side never connected).
func (r *Registry) Abort(ctx context.Context, sessionID, userID string) (*matchdto.SessionView, error) {
	var view *matchdto.SessionView
	err := r.withSession(ctx, sessionID, func(s *session) error {
		g := s.g
		if g.Status.Terminal() {
			return fmt.Errorf("%w: session already %s", ErrInvalidStateTransition, g.Status)
		}
		if userID != "" {
			if _, ok := g.PlayerColor(userID); !ok {
				return ErrUnauthorized
			}
		}
		if g.MoveCount() >= r.opts.MinAbortPlies {
			return fmt.Errorf("%w: game already underway", ErrPreconditionFailed)
		}
		r.finalizeLocked(s, "", EndAbort)
		view = r.viewOf(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// checkFlagLocked is the opportunistic flag-fall check run on any
// session-touching event (the sweep covers quiet sessions). Returns true if
// the session was finalized here.
func (r *Registry) checkFlagLocked(s *session) bool {
	g := s.g
	if g.Status != StatusActive {
		return false
	}
	flagged, ok := r.clock.Flagged(g)
	if !ok {
		return false
	}
	obslog.L().Info("session_flag_fall",
		zap.String("session_id", g.ID),
		zap.String("flagged", string(flagged)),
	)
	r.finalizeLocked(s, flagged.Opponent(), EndTimeout)
	return true
}

// finalizeLocked is the single funnel into finished/aborted. It computes the
// canonical result, emits exactly one terminal broadcast, and hands the final
// record to persistence off the lock. Terminal states are sticky: a second
// call is a no-op.
func (r *Registry) finalizeLocked(s *session, winner Color, reason EndReason) {
	g := s.g
	if g.Status.Terminal() {
		obslog.L().Warn("session_double_finalize_blocked",
			zap.String("session_id", g.ID),
			zap.String("reason", string(reason)),
		)
		return
	}

	r.clock.Stop(g)
	if reason == EndAbort || reason == EndSystemError {
		g.Status = StatusAborted
	} else {
		g.Status = StatusFinished
	}
	g.EndReason = reason
	if winner != "" {
		g.Winner = g.UserID(winner)
	}
	now := r.opts.Now()
	g.UpdatedAt = now
	g.FinishedAt = now
	if g.Pending != nil && g.Pending.Status == ReqPending {
		g.Pending.Status = ReqSuperseded
	}
	for c := range s.grace {
		r.cancelGraceLocked(s, c)
	}

	obslog.L().Info("session_finalize",
		zap.String("session_id", g.ID),
		zap.String("status", string(g.Status)),
		zap.String("end_reason", string(reason)),
		zap.String("winner", g.Winner),
		zap.Int("move_count", g.MoveCount()),
	)

	t := broadcast.EventSessionFinished
	if g.Status == StatusAborted {
		t = broadcast.EventSessionAborted
	}
	ev := r.eventBase(g, t)
	ev.Finish = &broadcast.FinishPayload{Winner: g.Winner, EndReason: string(reason)}
	ev.Clock = r.clockPayload(g)
	r.enqueueLocked(s, []string{
		broadcast.SessionChannel(g.ID),
		broadcast.UserChannel(g.WhiteID),
		broadcast.UserChannel(g.BlackID),
	}, ev)

	r.persistFinalAsync(g.Clone())
	s.lastSnapshot = now
}

// failLocked force-finalizes a session after an internal invariant violation
// rather than leaving it inconsistent.
func (r *Registry) failLocked(s *session, why string) {
	obslog.L().Error("session_invariant_violation",
		zap.String("session_id", s.g.ID),
		zap.String("detail", why),
	)
	r.finalizeLocked(s, "", EndSystemError)
}

func (r *Registry) persistFinalAsync(cp *GameSession) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.gateway.SaveSnapshot(ctx, cp); err != nil {
			obslog.L().Warn("final_snapshot_error", zap.String("session_id", cp.ID), zap.Error(err))
		}
		if err := r.gateway.SaveResult(ctx, cp); err != nil {
			obslog.L().Error("final_result_persist_error", zap.String("session_id", cp.ID), zap.Error(err))
			return
		}
		obslog.L().Info("final_result_persist",
			zap.String("session_id", cp.ID),
			zap.String("end_reason", string(cp.EndReason)),
		)
	}()
}
