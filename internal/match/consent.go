package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/chess-coordinator/internal/broadcast"
	"github.com/park285/chess-coordinator/internal/obslog"
	"github.com/park285/chess-coordinator/pkg/matchdto"
)

// expirePendingLocked lazily resolves an outdated request. Expired requests
// are kept on the session (status expired) but treated as absent everywhere.
func (r *Registry) expirePendingLocked(g *GameSession) {
	if g.Pending != nil && g.Pending.Status == ReqPending && r.opts.Now().After(g.Pending.ExpiresAt) {
		g.Pending.Status = ReqExpired
		obslog.L().Info("request_expire",
			zap.String("session_id", g.ID),
			zap.String("kind", string(g.Pending.Kind)),
		)
	}
}

// SubmitRequest starts a consent negotiation (resume, draw, undo). One
// request may be outstanding per session; a newer one from the same initiator
// supersedes after the cooldown, and a stale one addressed to the other
// player is replaced after the long timeout.
func (r *Registry) SubmitRequest(ctx context.Context, sessionID, userID string, kind RequestKind) (*matchdto.SessionView, error) {
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
		if g.Status == StatusActive && r.checkFlagLocked(s) {
			return fmt.Errorf("%w: session finished on time", ErrInvalidStateTransition)
		}
		if err := r.checkSubmitLocked(g, kind, color); err != nil {
			return err
		}

		now := r.opts.Now()
		r.expirePendingLocked(g)
		if p := g.Pending; p != nil && p.Status == ReqPending {
			age := now.Sub(p.CreatedAt)
			switch {
			case p.Initiator == color && age >= r.opts.SupersedeCooldown:
				p.Status = ReqSuperseded
			case p.Initiator != color && age >= r.opts.StaleRequestTimeout:
				p.Status = ReqSuperseded
			default:
				return fmt.Errorf("%w: %s from %s still pending", ErrAlreadyPending, p.Kind, p.Initiator)
			}
		}

		g.Pending = &PendingRequest{
			Kind:      kind,
			Initiator: color,
			CreatedAt: now,
			ExpiresAt: now.Add(r.opts.RequestExpiry),
			Status:    ReqPending,
		}
		g.UpdatedAt = now
		obslog.L().Info("request_submit",
			zap.String("session_id", g.ID),
			zap.String("kind", string(kind)),
			zap.String("initiator", string(color)),
		)
		ev := r.eventBase(g, requestedEventType(kind))
		ev.Request = &broadcast.RequestPayload{
			Kind:      string(kind),
			Initiator: string(color),
			ExpiresAt: g.Pending.ExpiresAt,
		}
		r.enqueueLocked(s, []string{
			broadcast.SessionChannel(g.ID),
			broadcast.UserChannel(g.UserID(color.Opponent())),
		}, ev)
		view = r.viewOf(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// checkSubmitLocked enforces the kind-specific preconditions before a
// PendingRequest is created.
func (r *Registry) checkSubmitLocked(g *GameSession, kind RequestKind, color Color) error {
	switch kind {
	case KindResume:
		if g.Status != StatusPaused {
			return fmt.Errorf("%w: resume requires a paused session", ErrInvalidStateTransition)
		}
	case KindDraw:
		if g.Status != StatusActive {
			return fmt.Errorf("%w: draw offer requires an active session", ErrInvalidStateTransition)
		}
		if g.MoveCount() < 2 {
			return fmt.Errorf("%w: draw requires both sides to have moved", ErrPreconditionFailed)
		}
	case KindUndo:
		if g.Mode == ModeRated {
			return fmt.Errorf("%w: undo is not available in rated games", ErrRatedModeViolation)
		}
		if g.Status != StatusActive {
			return fmt.Errorf("%w: undo requires an active session", ErrInvalidStateTransition)
		}
		if g.UndoLeft[color] <= 0 {
			return fmt.Errorf("%w: no undo allowance left", ErrPreconditionFailed)
		}
		if g.Turn != color {
			return fmt.Errorf("%w: undo can only be requested on your own turn", ErrPreconditionFailed)
		}
		if g.MoveCount() < 2 {
			return fmt.Errorf("%w: no full move pair to retract", ErrPreconditionFailed)
		}
	default:
		return fmt.Errorf("%w: unknown request kind %q", ErrPreconditionFailed, kind)
	}
	return nil
}

// RespondRequest resolves the pending negotiation. Only the non-initiating
// player may respond; responses to stale requests fail with Expired/NotFound.
func (r *Registry) RespondRequest(ctx context.Context, sessionID, userID string, kind RequestKind, accept bool) (*matchdto.SessionView, error) {
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
		if r.checkFlagLocked(s) {
			return fmt.Errorf("%w: session finished on time", ErrInvalidStateTransition)
		}
		r.expirePendingLocked(g)
		p := g.Pending
		if p == nil || p.Kind != kind || p.Status == ReqDeclined || p.Status == ReqAccepted || p.Status == ReqSuperseded {
			return fmt.Errorf("%w: no pending %s request", ErrNotFound, kind)
		}
		if p.Status == ReqExpired {
			return fmt.Errorf("%w: the %s request expired", ErrExpired, kind)
		}
		if p.Initiator == color {
			return fmt.Errorf("%w: only the other player may respond", ErrUnauthorized)
		}

		now := r.opts.Now()
		g.UpdatedAt = now
		if !accept {
			p.Status = ReqDeclined
			obslog.L().Info("request_decline",
				zap.String("session_id", g.ID),
				zap.String("kind", string(kind)),
				zap.String("by", string(color)),
			)
			ev := r.eventBase(g, declinedEventType(kind))
			ev.Request = &broadcast.RequestPayload{Kind: string(kind), Initiator: string(p.Initiator)}
			r.enqueueLocked(s, []string{broadcast.SessionChannel(g.ID)}, ev)
			view = r.viewOf(g)
			return nil
		}

		if err := r.acceptLocked(s, p, color); err != nil {
			return err
		}
		view = r.viewOf(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (r *Registry) acceptLocked(s *session, p *PendingRequest, responder Color) error {
	g := s.g
	switch p.Kind {
	case KindResume:
		if g.Status != StatusPaused {
			return fmt.Errorf("%w: session is no longer paused", ErrInvalidStateTransition)
		}
		p.Status = ReqAccepted
		g.Status = StatusActive
		r.clock.Resume(g)
		obslog.L().Info("session_resume", zap.String("session_id", g.ID))
		ev := r.eventBase(g, broadcast.EventResumeAccepted)
		ev.Clock = r.clockPayload(g)
		ev.State = &broadcast.StatePayload{FEN: g.FEN, Turn: string(g.Turn), MoveCount: g.MoveCount()}
		r.enqueueLocked(s, []string{broadcast.SessionChannel(g.ID)}, ev)
		r.snapshotLocked(s)
		return nil

	case KindDraw:
		if g.Status != StatusActive {
			return fmt.Errorf("%w: session is no longer active", ErrInvalidStateTransition)
		}
		p.Status = ReqAccepted
		ev := r.eventBase(g, broadcast.EventDrawAccepted)
		ev.Request = &broadcast.RequestPayload{Kind: string(p.Kind), Initiator: string(p.Initiator)}
		r.enqueueLocked(s, []string{broadcast.SessionChannel(g.ID)}, ev)
		r.finalizeLocked(s, "", EndDrawAgreed)
		return nil

	case KindUndo:
		if g.Status != StatusActive {
			return fmt.Errorf("%w: session is no longer active", ErrInvalidStateTransition)
		}
		if g.MoveCount() < 2 {
			return fmt.Errorf("%w: no full move pair to retract", ErrPreconditionFailed)
		}
		trimmed := g.MovesUCI[:g.MoveCount()-2]
		pos, err := r.validator.Rewind(trimmed)
		if err != nil {
			r.failLocked(s, fmt.Sprintf("undo rewind failed: %v", err))
			return fmt.Errorf("%w: position rewind failed", ErrInvalidStateTransition)
		}
		p.Status = ReqAccepted
		g.MovesUCI = g.MovesUCI[:len(trimmed)]
		g.MovesSAN = g.MovesSAN[:len(trimmed)]
		g.FEN = pos.FEN
		g.Turn = pos.Turn
		g.UndoLeft[p.Initiator]--
		r.clock.Settle(g)
		g.Clock.Running = g.Turn
		obslog.L().Info("session_undo",
			zap.String("session_id", g.ID),
			zap.String("initiator", string(p.Initiator)),
			zap.Int("undo_left", g.UndoLeft[p.Initiator]),
		)
		ev := r.eventBase(g, broadcast.EventUndoAccepted)
		ev.State = &broadcast.StatePayload{
			FEN:       g.FEN,
			Turn:      string(g.Turn),
			MoveCount: g.MoveCount(),
			UndoLeft:  g.UndoLeft[p.Initiator],
		}
		ev.Clock = r.clockPayload(g)
		r.enqueueLocked(s, []string{broadcast.SessionChannel(g.ID)}, ev)
		r.snapshotLocked(s)
		return nil
	}
	return fmt.Errorf("%w: unknown request kind %q", ErrPreconditionFailed, p.Kind)
}

func requestedEventType(k RequestKind) broadcast.EventType {
	switch k {
	case KindResume:
		return broadcast.EventResumeRequested
	case KindDraw:
		return broadcast.EventDrawOffered
	default:
		return broadcast.EventUndoRequested
	}
}

func declinedEventType(k RequestKind) broadcast.EventType {
	switch k {
	case KindResume:
		return broadcast.EventResumeDeclined
	case KindDraw:
		return broadcast.EventDrawDeclined
	default:
		return broadcast.EventUndoDeclined
	}
}
