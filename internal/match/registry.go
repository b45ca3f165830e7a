package match

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-coordinator/internal/broadcast"
	"github.com/park285/chess-coordinator/internal/obslog"
	"github.com/park285/chess-coordinator/pkg/matchdto"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Options carries the tunable timings of the coordinator. Zero values fall
// back to the documented defaults.
type Options struct {
	RequestExpiry       time.Duration
	SupersedeCooldown   time.Duration
	StaleRequestTimeout time.Duration
	DisconnectGrace     time.Duration
	Retention           time.Duration
	ClockSyncInterval   time.Duration
	SnapshotInterval    time.Duration
	UndoAllowance       int
	MinAbortPlies       int
	DefaultInitialMs    int64
	DefaultIncrementMs  int64

	// Now is injectable for deterministic clock tests.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.RequestExpiry <= 0 {
		o.RequestExpiry = 30 * time.Second
	}
	if o.SupersedeCooldown <= 0 {
		o.SupersedeCooldown = 10 * time.Second
	}
	if o.StaleRequestTimeout <= 0 {
		o.StaleRequestTimeout = 60 * time.Second
	}
	if o.DisconnectGrace <= 0 {
		o.DisconnectGrace = 2 * time.Minute
	}
	if o.Retention <= 0 {
		o.Retention = 5 * time.Minute
	}
	if o.ClockSyncInterval <= 0 {
		o.ClockSyncInterval = time.Second
	}
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = 30 * time.Second
	}
	if o.UndoAllowance <= 0 {
		o.UndoAllowance = 3
	}
	if o.MinAbortPlies <= 0 {
		o.MinAbortPlies = 2
	}
	if o.DefaultInitialMs <= 0 {
		o.DefaultInitialMs = 5 * 60 * 1000
	}
	if o.DefaultIncrementMs < 0 {
		o.DefaultIncrementMs = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type outbound struct {
	channels []string
	ev       broadcast.Event
}

// session wraps a GameSession with its serialization point and per-session
// resources: grace timers and the ordered broadcast outbox.
type session struct {
	mu           sync.Mutex
	g            *GameSession
	grace        map[Color]*time.Timer
	out          chan outbound
	closeOnce    sync.Once
	lastSnapshot time.Time
}

func (s *session) closeOutbox() {
	s.closeOnce.Do(func() { close(s.out) })
}

// Registry is the authoritative in-memory map of active sessions and the
// single mutation entry point for each of them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session

	validator MoveValidator
	gateway   PersistenceGateway
	caster    broadcast.Broadcaster

	opts  Options
	clock *ClockEngine

	wg sync.WaitGroup
}

func NewRegistry(validator MoveValidator, gateway PersistenceGateway, caster broadcast.Broadcaster, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		sessions:  make(map[string]*session),
		validator: validator,
		gateway:   gateway,
		caster:    caster,
		opts:      opts,
		clock:     NewClockEngine(opts.Now),
	}
}

// CreateParams describes a matched player pair. Invitation/matchmaking is an
// external collaborator; by the time this is called both seats are decided.
type CreateParams struct {
	WhiteID     string
	BlackID     string
	Mode        Mode
	InitialMs   int64
	IncrementMs int64
}

// CreateSession registers a new session in the waiting state.
func (r *Registry) CreateSession(ctx context.Context, p CreateParams) (*matchdto.SessionView, error) {
	whiteID := strings.TrimSpace(p.WhiteID)
	blackID := strings.TrimSpace(p.BlackID)
	if whiteID == "" || blackID == "" {
		return nil, fmt.Errorf("%w: both players required", ErrPreconditionFailed)
	}
	if whiteID == blackID {
		return nil, fmt.Errorf("%w: players must differ", ErrPreconditionFailed)
	}
	mode := p.Mode
	if mode != ModeRated && mode != ModeCasual {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrPreconditionFailed, p.Mode)
	}
	initial := p.InitialMs
	if initial <= 0 {
		initial = r.opts.DefaultInitialMs
	}
	increment := p.IncrementMs
	if increment < 0 {
		increment = r.opts.DefaultIncrementMs
	}

	now := r.opts.Now()
	g := &GameSession{
		ID:      uuid.New().String(),
		WhiteID: whiteID,
		BlackID: blackID,
		Mode:    mode,
		Status:  StatusWaiting,
		Turn:    White,
		FEN:     startFEN,
		Clock: ClockState{
			WhiteMs:     initial,
			BlackMs:     initial,
			InitialMs:   initial,
			IncrementMs: increment,
			LastTickAt:  now,
		},
		Connections: map[Color]*PlayerConnection{
			White: {},
			Black: {},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mode == ModeCasual {
		g.UndoLeft = map[Color]int{
			White: r.opts.UndoAllowance,
			Black: r.opts.UndoAllowance,
		}
	}

	s := r.newWrapper(g)
	r.mu.Lock()
	r.sessions[g.ID] = s
	r.mu.Unlock()

	obslog.L().Info("session_create",
		zap.String("session_id", g.ID),
		zap.String("white_id", whiteID),
		zap.String("black_id", blackID),
		zap.String("mode", string(mode)),
		zap.Int64("initial_ms", initial),
		zap.Int64("increment_ms", increment),
	)
	r.snapshotAsync(g.Clone())
	return r.viewOf(g), nil
}

func (r *Registry) newWrapper(g *GameSession) *session {
	s := &session{
		g:     g,
		grace: make(map[Color]*time.Timer),
		out:   make(chan outbound, 256),
	}
	r.wg.Add(1)
	go r.outboxLoop(s)
	return s
}

// lookup resolves a session, falling back to the persisted snapshot so a
// restarted coordinator can re-home live sessions.
func (r *Registry) lookup(ctx context.Context, id string) (*session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionNotFound
	}
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	g, err := r.gateway.LoadSnapshot(ctx, id)
	if err != nil || g == nil {
		return nil, ErrSessionNotFound
	}
	// Transport handles did not survive the restart; players must shake hands again.
	for _, pc := range g.Connections {
		pc.Connected = false
		pc.Transport = ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		return existing, nil
	}
	s = r.newWrapper(g)
	r.sessions[id] = s
	obslog.L().Info("session_rehome", zap.String("session_id", id), zap.String("status", string(g.Status)))
	return s, nil
}

// withSession runs fn under the session's single-writer lock.
func (r *Registry) withSession(ctx context.Context, id string, fn func(s *session) error) error {
	s, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

// View returns the read model for a session.
func (r *Registry) View(ctx context.Context, id string) (*matchdto.SessionView, error) {
	var view *matchdto.SessionView
	err := r.withSession(ctx, id, func(s *session) error {
		r.checkFlagLocked(s)
		r.expirePendingLocked(s.g)
		view = r.viewOf(s.g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Pause is the explicit pause action (player- or inactivity-triggered).
// Casual only; rated sessions have no pausable state at all.
func (r *Registry) Pause(ctx context.Context, sessionID, userID string) (*matchdto.SessionView, error) {
	var view *matchdto.SessionView
	err := r.withSession(ctx, sessionID, func(s *session) error {
		g := s.g
		if g.Status.Terminal() {
			return fmt.Errorf("%w: session already %s", ErrInvalidStateTransition, g.Status)
		}
		if _, ok := g.PlayerColor(userID); !ok {
			return ErrUnauthorized
		}
		if g.Mode == ModeRated {
			return fmt.Errorf("%w: rated sessions cannot pause", ErrRatedModeViolation)
		}
		if r.checkFlagLocked(s) {
			return fmt.Errorf("%w: session finished on time", ErrInvalidStateTransition)
		}
		if g.Status != StatusActive {
			return fmt.Errorf("%w: pause requires an active session", ErrInvalidStateTransition)
		}
		r.pauseLocked(s)
		view = r.viewOf(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// pauseLocked performs active→paused. Caller holds the lock and has
// validated mode and status.
func (r *Registry) pauseLocked(s *session) {
	g := s.g
	r.clock.Pause(g)
	g.Status = StatusPaused
	g.UpdatedAt = r.opts.Now()
	obslog.L().Info("session_pause", zap.String("session_id", g.ID))
	ev := r.eventBase(g, broadcast.EventSessionPaused)
	ev.Clock = r.clockPayload(g)
	r.enqueueLocked(s, []string{broadcast.SessionChannel(g.ID)}, ev)
	r.snapshotLocked(s)
}

// Run drives the periodic sweep: flag-fall detection, display clock sync,
// request expiry, snapshot checkpoints, and retention eviction.
func (r *Registry) Run(ctx context.Context) {
	t := time.NewTicker(r.opts.ClockSyncInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.sweepOnce()
		}
	}
}

func (r *Registry) sweepOnce() {
	r.mu.RLock()
	list := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	now := r.opts.Now()
	var evict []string
	for _, s := range list {
		s.mu.Lock()
		g := s.g
		switch {
		case g.Status.Terminal():
			if !g.FinishedAt.IsZero() && now.Sub(g.FinishedAt) > r.opts.Retention {
				evict = append(evict, g.ID)
			}
		case g.Status == StatusActive:
			if !r.checkFlagLocked(s) {
				r.expirePendingLocked(g)
				ev := r.eventBase(g, broadcast.EventClockSync)
				ev.Clock = r.clockPayload(g)
				r.enqueueLocked(s, []string{broadcast.SessionChannel(g.ID)}, ev)
				if now.Sub(s.lastSnapshot) >= r.opts.SnapshotInterval {
					r.snapshotLocked(s)
				}
			}
		default:
			r.expirePendingLocked(g)
		}
		s.mu.Unlock()
	}

	for _, id := range evict {
		r.evict(id)
	}
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	for c, t := range s.grace {
		t.Stop()
		delete(s.grace, c)
	}
	s.mu.Unlock()
	s.closeOutbox()
	obslog.L().Info("session_evict", zap.String("session_id", id))
}

// Close drains outboxes and waits for in-flight async I/O. Used at shutdown
// and by tests that need deterministic event observation.
func (r *Registry) Close() {
	r.mu.Lock()
	for _, s := range r.sessions {
		s.closeOutbox()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// outboxLoop publishes committed events in order. A slow transport delays
// only this session's fan-out, never its mutations.
func (r *Registry) outboxLoop(s *session) {
	defer r.wg.Done()
	for ob := range s.out {
		for _, ch := range ob.channels {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.caster.Publish(ctx, ch, ob.ev); err != nil {
				obslog.L().Warn("event_publish_error",
					zap.String("session_id", ob.ev.SessionID),
					zap.String("channel", ch),
					zap.String("type", string(ob.ev.Type)),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}

// enqueueLocked appends an event to the session outbox in commit order.
// Under backpressure the oldest queued event is evicted rather than the one
// being committed, so later events (the terminal one included) always land
// and what remains is still in commit order.
func (r *Registry) enqueueLocked(s *session, channels []string, ev broadcast.Event) {
	for {
		select {
		case s.out <- outbound{channels: channels, ev: ev}:
			return
		default:
		}
		select {
		case old := <-s.out:
			obslog.L().Warn("event_outbox_overflow",
				zap.String("session_id", ev.SessionID),
				zap.String("dropped_type", string(old.ev.Type)),
			)
		default:
		}
	}
}

func (r *Registry) eventBase(g *GameSession, t broadcast.EventType) broadcast.Event {
	return broadcast.Event{
		Type:      t,
		SessionID: g.ID,
		At:        r.opts.Now(),
	}
}

func (r *Registry) clockPayload(g *GameSession) *broadcast.ClockPayload {
	return &broadcast.ClockPayload{
		WhiteMs: r.clock.Remaining(g, White),
		BlackMs: r.clock.Remaining(g, Black),
		Running: string(g.Clock.Running),
	}
}

// snapshotLocked checkpoints the session asynchronously.
func (r *Registry) snapshotLocked(s *session) {
	s.lastSnapshot = r.opts.Now()
	r.snapshotAsync(s.g.Clone())
}

func (r *Registry) snapshotAsync(cp *GameSession) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.gateway.SaveSnapshot(ctx, cp); err != nil {
			obslog.L().Warn("snapshot_save_error", zap.String("session_id", cp.ID), zap.Error(err))
		}
	}()
}

func (r *Registry) viewOf(g *GameSession) *matchdto.SessionView {
	v := &matchdto.SessionView{
		ID:        g.ID,
		WhiteID:   g.WhiteID,
		BlackID:   g.BlackID,
		Mode:      string(g.Mode),
		Status:    string(g.Status),
		Turn:      string(g.Turn),
		FEN:       g.FEN,
		MovesSAN:  append([]string(nil), g.MovesSAN...),
		MovesUCI:  append([]string(nil), g.MovesUCI...),
		MoveCount: g.MoveCount(),
		Clock: matchdto.ClockView{
			WhiteMs:     r.clock.Remaining(g, White),
			BlackMs:     r.clock.Remaining(g, Black),
			IncrementMs: g.Clock.IncrementMs,
			Running:     string(g.Clock.Running),
		},
		Winner:    g.Winner,
		EndReason: string(g.EndReason),
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
	if g.Pending != nil && g.Pending.Status == ReqPending {
		v.Pending = &matchdto.PendingView{
			Kind:      string(g.Pending.Kind),
			Initiator: string(g.Pending.Initiator),
			CreatedAt: g.Pending.CreatedAt,
			ExpiresAt: g.Pending.ExpiresAt,
		}
	}
	if g.UndoLeft != nil {
		v.UndoLeft = map[string]int{
			string(White): g.UndoLeft[White],
			string(Black): g.UndoLeft[Black],
		}
	}
	v.Conns = make(map[string]matchdto.ConnectionView, len(g.Connections))
	for c, pc := range g.Connections {
		v.Conns[string(c)] = matchdto.ConnectionView{
			Connected:       pc.Connected,
			LastHandshakeAt: pc.LastHandshakeAt,
		}
	}
	return v
}
