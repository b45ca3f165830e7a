package match

import "time"

// ClockEngine owns all clock mutation. Remaining time for the running color
// is recomputed from wall clock elapsed since LastTickAt rather than
// decremented on a timer, so scheduling jitter never skews the count.
type ClockEngine struct {
	now func() time.Time
}

func NewClockEngine(now func() time.Time) *ClockEngine {
	if now == nil {
		now = time.Now
	}
	return &ClockEngine{now: now}
}

// Start begins ticking for the side to move. Called on waiting→active.
func (e *ClockEngine) Start(g *GameSession) {
	g.Clock.Running = g.Turn
	g.Clock.LastTickAt = e.now()
}

// Settle folds elapsed time into the stored counter of the running color and
// resets the tick origin. Callers hold the session lock.
func (e *ClockEngine) Settle(g *GameSession) {
	now := e.now()
	if g.Clock.Running != "" {
		elapsed := now.Sub(g.Clock.LastTickAt).Milliseconds()
		if elapsed > 0 {
			if g.Clock.Running == White {
				g.Clock.WhiteMs -= elapsed
			} else {
				g.Clock.BlackMs -= elapsed
			}
		}
	}
	g.Clock.LastTickAt = now
}

// Remaining derives the authoritative remaining time for a color, clamped at zero.
func (e *ClockEngine) Remaining(g *GameSession, c Color) int64 {
	ms := g.Clock.WhiteMs
	if c == Black {
		ms = g.Clock.BlackMs
	}
	if g.Clock.Running == c {
		ms -= e.now().Sub(g.Clock.LastTickAt).Milliseconds()
	}
	if ms < 0 {
		return 0
	}
	return ms
}

// ApplyMove stops the mover's clock, applies the increment, and starts the
// opponent's clock.
func (e *ClockEngine) ApplyMove(g *GameSession, mover Color) {
	e.Settle(g)
	if g.Clock.IncrementMs > 0 {
		if mover == White {
			g.Clock.WhiteMs += g.Clock.IncrementMs
		} else {
			g.Clock.BlackMs += g.Clock.IncrementMs
		}
	}
	g.Clock.Running = mover.Opponent()
}

// Pause freezes the running clock. Rated sessions have no pausable state, so
// this is a no-op for them: the rated invariant is that the clock only stops
// at termination.
func (e *ClockEngine) Pause(g *GameSession) {
	if g.Mode == ModeRated {
		return
	}
	e.Settle(g)
	g.Clock.Running = ""
}

// Resume restarts the clock for the side to move from the stored remaining
// times (not a reset).
func (e *ClockEngine) Resume(g *GameSession) {
	g.Clock.Running = g.Turn
	g.Clock.LastTickAt = e.now()
}

// Stop halts ticking at termination, settling first so the final snapshot
// carries exact values.
func (e *ClockEngine) Stop(g *GameSession) {
	e.Settle(g)
	if g.Clock.WhiteMs < 0 {
		g.Clock.WhiteMs = 0
	}
	if g.Clock.BlackMs < 0 {
		g.Clock.BlackMs = 0
	}
	g.Clock.Running = ""
}

// Flagged reports whether the running color's derived time has reached zero.
func (e *ClockEngine) Flagged(g *GameSession) (Color, bool) {
	c := g.Clock.Running
	if c == "" {
		return "", false
	}
	if e.Remaining(g, c) <= 0 {
		return c, true
	}
	return "", false
}
