package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/chess-coordinator/internal/match"
)

// Repository archives finalized matches in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts the finalized record for a terminal session.
func (r *Repository) SaveResult(ctx context.Context, g *match.GameSession) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	if !g.Status.Terminal() {
		return nil
	}

	result := resultToken(g)
	pgn := buildPGN(g, mapResultToPGN(result))

	movesUCIRaw, _ := json.Marshal(g.MovesUCI)
	movesSANRaw, _ := json.Marshal(g.MovesSAN)
	duration := g.FinishedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO match_games (
        game_id, white_id, black_id, mode,
        result, end_reason, moves_uci, moves_san, pgn,
        white_remaining_ms, black_remaining_ms,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
      ) ON CONFLICT (game_id) DO UPDATE SET
        result=EXCLUDED.result,
        end_reason=EXCLUDED.end_reason,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        white_remaining_ms=EXCLUDED.white_remaining_ms,
        black_remaining_ms=EXCLUDED.black_remaining_ms,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.ID, g.WhiteID, g.BlackID, string(g.Mode),
		result, string(g.EndReason), string(movesUCIRaw), string(movesSANRaw), pgn,
		g.Clock.WhiteMs, g.Clock.BlackMs,
		g.CreatedAt, g.FinishedAt, duration,
	)
	return err
}

// resultToken maps the terminal state to "white" / "black" / "draw" / "aborted".
func resultToken(g *match.GameSession) string {
	if g.Status == match.StatusAborted {
		return "aborted"
	}
	switch g.Winner {
	case "":
		return "draw"
	case g.WhiteID:
		return "white"
	default:
		return "black"
	}
}

func mapResultToPGN(result string) string {
	switch result {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(g *match.GameSession, pgnResult string) string {
	if g == nil {
		return ""
	}
	var b strings.Builder
	date := g.FinishedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Coordinated Match\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(g.WhiteID)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(g.BlackID)))
	b.WriteString(fmt.Sprintf("[TimeControl \"%d+%d\"]\n",
		g.Clock.InitialMs/1000, g.Clock.IncrementMs/1000))
	if g.EndReason != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(string(g.EndReason))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(g.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(g.MovesSAN[i])))
		if i+1 < len(g.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
