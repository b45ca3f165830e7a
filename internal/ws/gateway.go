package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-coordinator/internal/broadcast"
	"github.com/park285/chess-coordinator/internal/match"
	"github.com/park285/chess-coordinator/internal/obslog"
	"github.com/park285/chess-coordinator/pkg/matchdto"
)

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 3 * time.Second
	writeTimeout = 5 * time.Second
)

// Gateway accepts player websocket connections and relays session events from
// Redis pub/sub. Each accepted socket performs a registry handshake; dropping
// the socket reports a disconnect so the grace machinery can engage.
type Gateway struct {
	reg    *match.Registry
	caster *broadcast.RedisBroadcaster
	srv    *http.Server

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewGateway(reg *match.Registry, caster *broadcast.RedisBroadcaster) *Gateway {
	return &Gateway{
		reg:    reg,
		caster: caster,
		stopCh: make(chan struct{}),
	}
}

func (g *Gateway) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	g.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := g.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	g.stopOnce.Do(func() { close(g.stopCh) })
	var err error
	if g.srv != nil {
		err = g.srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return err
	}
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if sessionID == "" || userID == "" {
		http.Error(w, "session_id and user_id are required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}

	view, err := g.reg.Handshake(r.Context(), sessionID, userID, "websocket")
	if err != nil {
		_ = wsjson.Write(r.Context(), conn, matchdto.ActionResponse{
			Error: &matchdto.DomainError{Code: match.ErrCode(err), Message: err.Error()},
		})
		conn.Close(websocket.StatusPolicyViolation, match.ErrCode(err))
		return
	}

	obslog.L().Info("ws_connected",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
	)

	g.wg.Add(1)
	go g.serve(conn, sessionID, userID, view)
}

// serve owns one socket: a pub/sub relay, a ping loop, and a read loop that
// only exists to observe the peer going away.
func (g *Gateway) serve(conn *websocket.Conn, sessionID, userID string, view *matchdto.SessionView) {
	defer g.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := g.caster.Subscribe(ctx,
		broadcast.SessionChannel(sessionID),
		broadcast.UserChannel(userID),
	)
	defer sub.Close()

	// Initial full snapshot so a reconnecting client resyncs before the
	// first delta arrives.
	if err := g.write(ctx, conn, matchdto.ActionResponse{OK: true, Session: view}); err != nil {
		g.drop(ctx, conn, sessionID, userID, "handshake write failed")
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-g.stopCh:
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case <-readDone:
			g.drop(ctx, conn, sessionID, userID, "peer closed")
			return
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				g.drop(ctx, conn, sessionID, userID, "ping failure")
				return
			}
		case msg, ok := <-ch:
			if !ok {
				g.drop(ctx, conn, sessionID, userID, "subscription closed")
				return
			}
			var ev broadcast.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				obslog.L().Warn("ws_event_decode_error", zap.Error(err))
				continue
			}
			if err := g.write(ctx, conn, ev); err != nil {
				g.drop(ctx, conn, sessionID, userID, "write failure")
				return
			}
		}
	}
}

func (g *Gateway) write(ctx context.Context, conn *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, v)
}

func (g *Gateway) drop(ctx context.Context, conn *websocket.Conn, sessionID, userID, why string) {
	conn.Close(websocket.StatusGoingAway, why)
	dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.reg.Disconnect(dctx, sessionID, userID); err != nil {
		obslog.L().Warn("ws_disconnect_error",
			zap.String("session_id", sessionID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}
	obslog.L().Info("ws_disconnected",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("why", why),
	)
}
