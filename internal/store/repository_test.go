package store

import (
	"strings"
	"testing"
	"time"

	"github.com/park285/chess-coordinator/internal/match"
)

func finishedSession() *match.GameSession {
	g := sampleSession()
	g.Status = match.StatusFinished
	g.EndReason = match.EndCheckmate
	g.Winner = "alice"
	g.MovesUCI = []string{"f2f3", "e7e5", "g2g4", "d8h4"}
	g.MovesSAN = []string{"f3", "e5", "g4", "Qh4#"}
	g.Clock.IncrementMs = 2000
	g.FinishedAt = g.CreatedAt.Add(90 * time.Second)
	return g
}

func TestResultToken(t *testing.T) {
	g := finishedSession()
	if got := resultToken(g); got != "white" {
		t.Fatalf("resultToken = %q, want white", got)
	}

	g.Winner = "bob"
	if got := resultToken(g); got != "black" {
		t.Fatalf("resultToken = %q, want black", got)
	}

	g.Winner = ""
	if got := resultToken(g); got != "draw" {
		t.Fatalf("resultToken = %q, want draw", got)
	}

	g.Status = match.StatusAborted
	if got := resultToken(g); got != "aborted" {
		t.Fatalf("resultToken = %q, want aborted", got)
	}
}

func TestMapResultToPGN(t *testing.T) {
	cases := map[string]string{
		"white":   "1-0",
		"black":   "0-1",
		"draw":    "1/2-1/2",
		"aborted": "*",
	}
	for in, want := range cases {
		if got := mapResultToPGN(in); got != want {
			t.Fatalf("mapResultToPGN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildPGN(t *testing.T) {
	g := finishedSession()
	pgn := buildPGN(g, "1-0")

	for _, want := range []string{
		`[White "alice"]`,
		`[Black "bob"]`,
		`[TimeControl "300+2"]`,
		`[Termination "checkmate"]`,
		`[Result "1-0"]`,
		"1. f3 e5 2. g4 Qh4# 1-0",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("PGN missing %q:\n%s", want, pgn)
		}
	}
}

func TestBuildPGNOddPlyCount(t *testing.T) {
	g := finishedSession()
	g.MovesSAN = []string{"e4", "e5", "Nf3"}
	pgn := buildPGN(g, "1/2-1/2")
	if !strings.Contains(pgn, "2. Nf3 1/2-1/2") {
		t.Fatalf("odd ply PGN wrong:\n%s", pgn)
	}
}

func TestSanitizePGN(t *testing.T) {
	if got := sanitizePGN(`a"b\c `); got != "a'b c" {
		t.Fatalf("sanitizePGN = %q", got)
	}
}
