package store

import (
	"context"

	"github.com/park285/chess-coordinator/internal/match"
)

// Gateway combines the Redis snapshot store with the Postgres archive into
// the single persistence capability the registry consumes. The repository is
// optional: without a database the coordinator still checkpoints to Redis.
type Gateway struct {
	snap *SnapshotStore
	repo *Repository
}

func NewGateway(snap *SnapshotStore, repo *Repository) *Gateway {
	return &Gateway{snap: snap, repo: repo}
}

var _ match.PersistenceGateway = (*Gateway)(nil)

func (g *Gateway) SaveSnapshot(ctx context.Context, s *match.GameSession) error {
	return g.snap.SaveSnapshot(ctx, s)
}

func (g *Gateway) LoadSnapshot(ctx context.Context, id string) (*match.GameSession, error) {
	return g.snap.LoadSnapshot(ctx, id)
}

func (g *Gateway) SaveResult(ctx context.Context, s *match.GameSession) error {
	if g.repo == nil {
		return nil
	}
	return g.repo.SaveResult(ctx, s)
}
