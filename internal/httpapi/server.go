package httpapi

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-coordinator/internal/match"
	"github.com/park285/chess-coordinator/internal/msgcat"
	"github.com/park285/chess-coordinator/internal/obslog"
	"github.com/park285/chess-coordinator/pkg/matchdto"
)

// Server exposes one POST endpoint per coordinator verb. Failed attempts are
// answered only to the caller; successful transitions reach the other
// participants through the broadcast channel, not through this API.
type Server struct {
	reg     *match.Registry
	cat     *msgcat.Catalog
	srv     *fasthttp.Server
	actions map[string]actionFunc
}

type actionFunc func(ctx context.Context, sessionID, userID string) (*matchdto.SessionView, error)

func NewServer(reg *match.Registry, cat *msgcat.Catalog) *Server {
	s := &Server{reg: reg, cat: cat}
	s.actions = map[string]actionFunc{
		"/pause":          reg.Pause,
		"/resume/request": submit(reg, match.KindResume),
		"/resume/accept":  respond(reg, match.KindResume, true),
		"/resume/decline": respond(reg, match.KindResume, false),
		"/draw/offer":     submit(reg, match.KindDraw),
		"/draw/accept":    respond(reg, match.KindDraw, true),
		"/draw/decline":   respond(reg, match.KindDraw, false),
		"/undo/request":   submit(reg, match.KindUndo),
		"/undo/accept":    respond(reg, match.KindUndo, true),
		"/undo/decline":   respond(reg, match.KindUndo, false),
		"/resign":         reg.Resign,
		"/forfeit":        reg.Forfeit,
		"/abort":          reg.Abort,
	}
	return s
}

func submit(reg *match.Registry, kind match.RequestKind) actionFunc {
	return func(ctx context.Context, sessionID, userID string) (*matchdto.SessionView, error) {
		return reg.SubmitRequest(ctx, sessionID, userID, kind)
	}
}

func respond(reg *match.Registry, kind match.RequestKind, accept bool) actionFunc {
	return func(ctx context.Context, sessionID, userID string) (*matchdto.SessionView, error) {
		return reg.RespondRequest(ctx, sessionID, userID, kind, accept)
	}
}

func (s *Server) ListenAndServe(addr string) error {
	s.srv = &fasthttp.Server{
		Handler:          s.Route,
		Name:             "chess-coordinator",
		DisableKeepalive: false,
	}
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown()
}

// Route dispatches by method and path. Exported so tests can drive it with a
// bare RequestCtx.
func (s *Server) Route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())

	if ctx.IsGet() {
		if id, ok := strings.CutPrefix(path, "/session/"); ok {
			view, err := s.reg.View(ctx, id)
			s.respondView(ctx, view, err)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}

	switch path {
	case "/session":
		s.handleCreate(ctx)
	case "/handshake":
		s.handleHandshake(ctx)
	case "/disconnect":
		s.handleDisconnect(ctx)
	case "/move":
		s.handleMove(ctx)
	default:
		fn, ok := s.actions[path]
		if !ok {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		var req matchdto.ActionRequest
		if !s.decode(ctx, &req) {
			return
		}
		view, err := fn(ctx, req.SessionID, req.UserID)
		s.respondView(ctx, view, err)
	}
}

func (s *Server) handleCreate(ctx *fasthttp.RequestCtx) {
	var req matchdto.CreateSessionRequest
	if !s.decode(ctx, &req) {
		return
	}
	view, err := s.reg.CreateSession(ctx, match.CreateParams{
		WhiteID:     req.WhiteID,
		BlackID:     req.BlackID,
		Mode:        match.Mode(strings.ToLower(strings.TrimSpace(req.Mode))),
		InitialMs:   req.InitialMs,
		IncrementMs: req.IncrementMs,
	})
	s.respondView(ctx, view, err)
}

func (s *Server) handleHandshake(ctx *fasthttp.RequestCtx) {
	var req matchdto.HandshakeRequest
	if !s.decode(ctx, &req) {
		return
	}
	view, err := s.reg.Handshake(ctx, req.SessionID, req.UserID, req.Transport)
	s.respondView(ctx, view, err)
}

func (s *Server) handleDisconnect(ctx *fasthttp.RequestCtx) {
	var req matchdto.ActionRequest
	if !s.decode(ctx, &req) {
		return
	}
	err := s.reg.Disconnect(ctx, req.SessionID, req.UserID)
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchdto.ActionResponse{OK: true})
}

func (s *Server) handleMove(ctx *fasthttp.RequestCtx) {
	var req matchdto.MoveRequest
	if !s.decode(ctx, &req) {
		return
	}
	view, err := s.reg.SubmitMove(ctx, req.SessionID, req.UserID, req.Move)
	s.respondView(ctx, view, err)
}

func (s *Server) decode(ctx *fasthttp.RequestCtx, dst any) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, matchdto.ActionResponse{
			Error: &matchdto.DomainError{Code: "bad_request", Message: "invalid JSON body"},
		})
		return false
	}
	return true
}

func (s *Server) respondView(ctx *fasthttp.RequestCtx, view *matchdto.SessionView, err error) {
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchdto.ActionResponse{OK: true, Session: view})
}

func (s *Server) respondErr(ctx *fasthttp.RequestCtx, err error) {
	code := match.ErrCode(err)
	if code == "internal" {
		obslog.L().Error("action_internal_error", zap.String("path", string(ctx.Path())), zap.Error(err))
	}
	writeJSON(ctx, statusFor(code), matchdto.ActionResponse{
		Error: &matchdto.DomainError{
			Code:      code,
			Message:   s.cat.Get("error." + code),
			Retryable: code == "already_pending" || code == "internal",
		},
	})
}

func statusFor(code string) int {
	switch code {
	case "session_not_found", "not_found":
		return fasthttp.StatusNotFound
	case "unauthorized":
		return fasthttp.StatusForbidden
	case "already_pending", "invalid_state_transition":
		return fasthttp.StatusConflict
	case "expired":
		return fasthttp.StatusGone
	case "internal":
		return fasthttp.StatusInternalServerError
	default:
		return fasthttp.StatusBadRequest
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(raw)
}
