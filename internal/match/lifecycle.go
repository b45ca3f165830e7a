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

// Handshake activates a player's transport connection. Cancels any pending
// grace teardown for that color and drives waiting→active once both colors
// are connected. Re-invoking on an active session is a no-op update.
func (r *Registry) Handshake(ctx context.Context, sessionID, userID, transport string) (*matchdto.SessionView, error) {
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

		pc := g.Connections[color]
		pc.Connected = true
		pc.Transport = transport
		pc.LastHandshakeAt = r.opts.Now()
		r.cancelGraceLocked(s, color)

		obslog.L().Info("session_handshake",
			zap.String("session_id", g.ID),
			zap.String("color", string(color)),
			zap.String("transport", transport),
		)

		if g.Status == StatusWaiting && g.Connections[White].Connected && g.Connections[Black].Connected {
			r.activateLocked(s)
		}
		view = r.viewOf(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// activateLocked performs waiting→active: start the clock and broadcast.
func (r *Registry) activateLocked(s *session) {
	g := s.g
	g.Status = StatusActive
	r.clock.Start(g)
	g.UpdatedAt = r.opts.Now()
	obslog.L().Info("session_activate", zap.String("session_id", g.ID))
	ev := r.eventBase(g, broadcast.EventSessionActivated)
	ev.Clock = r.clockPayload(g)
	ev.State = &broadcast.StatePayload{FEN: g.FEN, Turn: string(g.Turn), MoveCount: g.MoveCount()}
	r.enqueueLocked(s, []string{broadcast.SessionChannel(g.ID)}, ev)
	r.snapshotLocked(s)
}

// Disconnect handles a transport-level disconnect notice. Rated sessions only
// flip the flag: the clock keeps running and flag-fall is the one path to an
// absent-player loss. Casual sessions arm a cancellable grace teardown.
func (r *Registry) Disconnect(ctx context.Context, sessionID, userID string) error {
	return r.withSession(ctx, sessionID, func(s *session) error {
		g := s.g
		color, ok := g.PlayerColor(userID)
		if !ok {
			return ErrUnauthorized
		}
		if g.Status.Terminal() {
			return nil
		}

		pc := g.Connections[color]
		pc.Connected = false
		pc.Transport = ""
		obslog.L().Info("session_disconnect",
			zap.String("session_id", g.ID),
			zap.String("color", string(color)),
			zap.String("mode", string(g.Mode)),
		)
		if g.Mode == ModeRated {
			return nil
		}
		r.scheduleGraceLocked(s, color)
		return nil
	})
}

// scheduleGraceLocked arms the disconnect grace timer for a color,
// cancel-and-replace so duplicate notices never stack timers.
func (r *Registry) scheduleGraceLocked(s *session, color Color) {
	r.cancelGraceLocked(s, color)
	id := s.g.ID
	s.grace[color] = time.AfterFunc(r.opts.DisconnectGrace, func() {
		r.onGraceFired(id, color)
	})
}

func (r *Registry) cancelGraceLocked(s *session, color Color) {
	if t, ok := s.grace[color]; ok {
		t.Stop()
		delete(s.grace, color)
	}
}

// onGraceFired runs as a serialized operation and re-checks the authoritative
// state: the session may have reconnected, paused, or finished since the
// timer was armed. Firing drives an implicit pause, never a forfeit.
func (r *Registry) onGraceFired(sessionID string, color Color) {
	_ = r.withSession(context.Background(), sessionID, func(s *session) error {
		g := s.g
		delete(s.grace, color)
		if g.Status != StatusActive || g.Mode != ModeCasual {
			return nil
		}
		if pc := g.Connections[color]; pc.Connected {
			return nil
		}
		if r.checkFlagLocked(s) {
			return nil
		}
		obslog.L().Info("session_grace_expired",
			zap.String("session_id", g.ID),
			zap.String("color", string(color)),
		)
		r.pauseLocked(s)
		return nil
	})
}
