package match

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-coordinator/internal/broadcast"
)

// fakeNow is a hand-cranked clock shared by the registry and the test.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeNow() *fakeNow {
	return &fakeNow{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// fakeValidator is a scripted rules engine: any move not named "illegal" is
// accepted, and moves listed in outcomes end the game.
type fakeValidator struct {
	outcomes  map[string]MoveOutcome
	rewindErr error
}

func newFakeValidator() *fakeValidator {
	return &fakeValidator{outcomes: map[string]MoveOutcome{}}
}

func parityTurn(moveCount int) Color {
	if moveCount%2 == 0 {
		return White
	}
	return Black
}

func (v *fakeValidator) Apply(movesUCI []string, move string) (*MoveResult, error) {
	if move == "illegal" {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}
	count := len(movesUCI) + 1
	out := OutcomeNone
	if o, ok := v.outcomes[move]; ok {
		out = o
	}
	return &MoveResult{
		UCI:      move,
		SAN:      move,
		FEN:      fmt.Sprintf("fen-%d", count),
		NextTurn: parityTurn(count),
		Outcome:  out,
	}, nil
}

func (v *fakeValidator) Rewind(movesUCI []string) (*PositionInfo, error) {
	if v.rewindErr != nil {
		return nil, v.rewindErr
	}
	return &PositionInfo{
		FEN:  fmt.Sprintf("fen-%d", len(movesUCI)),
		Turn: parityTurn(len(movesUCI)),
	}, nil
}

// memGateway keeps snapshots and results in memory.
type memGateway struct {
	mu      sync.Mutex
	snaps   map[string]*GameSession
	results []*GameSession
}

func newMemGateway() *memGateway {
	return &memGateway{snaps: map[string]*GameSession{}}
}

func (g *memGateway) SaveSnapshot(_ context.Context, s *GameSession) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snaps[s.ID] = s.Clone()
	return nil
}

func (g *memGateway) LoadSnapshot(_ context.Context, id string) (*GameSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.snaps[id]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (g *memGateway) SaveResult(_ context.Context, s *GameSession) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results = append(g.results, s.Clone())
	return nil
}

func (g *memGateway) resultCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.results)
}

// captureCaster records every published event in order.
type captureCaster struct {
	mu     sync.Mutex
	events []published
}

type published struct {
	channel string
	ev      broadcast.Event
}

func (c *captureCaster) Publish(_ context.Context, channel string, ev broadcast.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, published{channel: channel, ev: ev})
	return nil
}

func (c *captureCaster) byType(t broadcast.EventType) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, p := range c.events {
		if p.ev.Type == t {
			out = append(out, p)
		}
	}
	return out
}

type testEnv struct {
	reg    *Registry
	val    *fakeValidator
	gw     *memGateway
	caster *captureCaster
	now    *fakeNow
}

func newTestEnv(t *testing.T, mod func(*Options)) *testEnv {
	t.Helper()
	now := newFakeNow()
	val := newFakeValidator()
	gw := newMemGateway()
	caster := &captureCaster{}
	opts := Options{Now: now.Now}
	if mod != nil {
		mod(&opts)
	}
	reg := NewRegistry(val, gw, caster, opts)
	return &testEnv{reg: reg, val: val, gw: gw, caster: caster, now: now}
}

// startSession creates a session and connects both players so it is active.
func (e *testEnv) startSession(t *testing.T, p CreateParams) string {
	t.Helper()
	ctx := context.Background()
	view, err := e.reg.CreateSession(ctx, p)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := e.reg.Handshake(ctx, view.ID, p.WhiteID, "test"); err != nil {
		t.Fatalf("white handshake: %v", err)
	}
	v, err := e.reg.Handshake(ctx, view.ID, p.BlackID, "test")
	if err != nil {
		t.Fatalf("black handshake: %v", err)
	}
	if v.Status != string(StatusActive) {
		t.Fatalf("expected ACTIVE after both handshakes, got %s", v.Status)
	}
	return view.ID
}

func casualParams() CreateParams {
	return CreateParams{WhiteID: "alice", BlackID: "bob", Mode: ModeCasual, InitialMs: 60000, IncrementMs: 0}
}

func ratedParams() CreateParams {
	return CreateParams{WhiteID: "alice", BlackID: "bob", Mode: ModeRated, InitialMs: 60000, IncrementMs: 0}
}

// playMoves alternates alice/bob for n plies.
func (e *testEnv) playMoves(t *testing.T, id string, moves ...string) {
	t.Helper()
	ctx := context.Background()
	users := []string{"alice", "bob"}
	for i, m := range moves {
		if _, err := e.reg.SubmitMove(ctx, id, users[i%2], m); err != nil {
			t.Fatalf("move %d (%s): %v", i, m, err)
		}
	}
}
