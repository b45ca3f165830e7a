package httpapi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/park285/chess-coordinator/internal/broadcast"
	"github.com/park285/chess-coordinator/internal/match"
	"github.com/park285/chess-coordinator/internal/msgcat"
	"github.com/park285/chess-coordinator/internal/rules"
	"github.com/park285/chess-coordinator/pkg/matchdto"
)

type nopGateway struct{}

func (nopGateway) SaveSnapshot(context.Context, *match.GameSession) error { return nil }
func (nopGateway) LoadSnapshot(context.Context, string) (*match.GameSession, error) {
	return nil, nil
}
func (nopGateway) SaveResult(context.Context, *match.GameSession) error { return nil }

func newTestServer(t *testing.T) (*Server, *match.Registry) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	reg := match.NewRegistry(rules.NewValidator(), nopGateway{}, broadcast.NewRedisBroadcaster(nil), match.Options{})
	t.Cleanup(reg.Close)
	return NewServer(reg, cat), reg
}

func post(t *testing.T, s *Server, path string, body any) (*fasthttp.RequestCtx, matchdto.ActionResponse) {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetRequestURI(path)
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx.Request.SetBody(raw)
	s.Route(ctx)

	var resp matchdto.ActionResponse
	if len(ctx.Response.Body()) > 0 {
		if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
			t.Fatalf("decode %s response: %v (%s)", path, err, ctx.Response.Body())
		}
	}
	return ctx, resp
}

func activeGame(t *testing.T, s *Server) string {
	t.Helper()
	_, resp := post(t, s, "/session", matchdto.CreateSessionRequest{
		WhiteID: "alice", BlackID: "bob", Mode: "casual", InitialMs: 60000,
	})
	if !resp.OK || resp.Session == nil {
		t.Fatalf("create failed: %+v", resp)
	}
	id := resp.Session.ID
	post(t, s, "/handshake", matchdto.HandshakeRequest{SessionID: id, UserID: "alice", Transport: "test"})
	_, resp = post(t, s, "/handshake", matchdto.HandshakeRequest{SessionID: id, UserID: "bob", Transport: "test"})
	if resp.Session == nil || resp.Session.Status != "ACTIVE" {
		t.Fatalf("session not active after handshakes: %+v", resp.Session)
	}
	return id
}

func TestCreateAndMoveEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	id := activeGame(t, s)

	ctx, resp := post(t, s, "/move", matchdto.MoveRequest{SessionID: id, UserID: "alice", Move: "e2e4"})
	if ctx.Response.StatusCode() != fasthttp.StatusOK || !resp.OK {
		t.Fatalf("move failed: %d %+v", ctx.Response.StatusCode(), resp)
	}
	if resp.Session.MoveCount != 1 || resp.Session.Turn != "black" {
		t.Fatalf("unexpected session after move: %+v", resp.Session)
	}
}

func TestErrorMapping(t *testing.T) {
	s, _ := newTestServer(t)
	id := activeGame(t, s)

	cases := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"wrong turn", "/move", matchdto.MoveRequest{SessionID: id, UserID: "bob", Move: "e7e5"},
			fasthttp.StatusBadRequest, "not_your_turn"},
		{"illegal move", "/move", matchdto.MoveRequest{SessionID: id, UserID: "alice", Move: "e2e5"},
			fasthttp.StatusBadRequest, "illegal_move"},
		{"stranger", "/resign", matchdto.ActionRequest{SessionID: id, UserID: "mallory"},
			fasthttp.StatusForbidden, "unauthorized"},
		{"missing session", "/resign", matchdto.ActionRequest{SessionID: "nope", UserID: "alice"},
			fasthttp.StatusNotFound, "session_not_found"},
		{"no pending", "/draw/accept", matchdto.ActionRequest{SessionID: id, UserID: "bob"},
			fasthttp.StatusNotFound, "not_found"},
		{"resume while active", "/resume/request", matchdto.ActionRequest{SessionID: id, UserID: "alice"},
			fasthttp.StatusConflict, "invalid_state_transition"},
	}
	for _, tc := range cases {
		ctx, resp := post(t, s, tc.path, tc.body)
		if ctx.Response.StatusCode() != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, ctx.Response.StatusCode(), tc.status)
		}
		if resp.Error == nil || resp.Error.Code != tc.code {
			t.Fatalf("%s: error = %+v, want code %s", tc.name, resp.Error, tc.code)
		}
		if resp.Error.Message == "" || resp.Error.Message == "error."+tc.code {
			t.Fatalf("%s: expected a catalog message, got %q", tc.name, resp.Error.Message)
		}
	}
}

func TestConsentEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	id := activeGame(t, s)

	post(t, s, "/move", matchdto.MoveRequest{SessionID: id, UserID: "alice", Move: "e2e4"})
	post(t, s, "/move", matchdto.MoveRequest{SessionID: id, UserID: "bob", Move: "e7e5"})

	_, resp := post(t, s, "/draw/offer", matchdto.ActionRequest{SessionID: id, UserID: "alice"})
	if !resp.OK || resp.Session.Pending == nil || resp.Session.Pending.Kind != "draw" {
		t.Fatalf("draw offer failed: %+v", resp)
	}

	_, resp = post(t, s, "/draw/accept", matchdto.ActionRequest{SessionID: id, UserID: "bob"})
	if !resp.OK || resp.Session.Status != "FINISHED" || resp.Session.EndReason != "draw_agreed" {
		t.Fatalf("draw accept failed: %+v", resp.Session)
	}
}

func TestSessionQuery(t *testing.T) {
	s, _ := newTestServer(t)
	id := activeGame(t, s)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	ctx.Request.SetRequestURI("/session/" + id)
	s.Route(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	var resp matchdto.ActionResponse
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session == nil || resp.Session.ID != id {
		t.Fatalf("unexpected session body: %+v", resp.Session)
	}
}

func TestBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetRequestURI("/move")
	ctx.Request.SetBodyString("{not json")
	s.Route(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("invalid JSON: status = %d", ctx.Response.StatusCode())
	}

	ctx = &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetRequestURI("/unknown")
	ctx.Request.SetBodyString("{}")
	s.Route(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("unknown path: status = %d", ctx.Response.StatusCode())
	}

	ctx = &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPut)
	ctx.Request.SetRequestURI("/move")
	s.Route(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("bad method: status = %d", ctx.Response.StatusCode())
	}
}
