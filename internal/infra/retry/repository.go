package retry

import (
	"context"

	"reward_cycle_bot/internal/domain/rewardcycle"
)

// Repository decorates a rewardcycle.Repository so that writes are retried.
// Reads go straight to the wrapped repository.
type Repository struct {
	rewardcycle.Repository
	cfg *config
}

var _ rewardcycle.Repository = (*Repository)(nil)

func NewRepository(inner rewardcycle.Repository, options ...Option) (*Repository, error) {
	cfg, err := newConfig(options)
	if err != nil {
		return nil, err
	}
	return &Repository{Repository: inner, cfg: cfg}, nil
}

func (r *Repository) Upsert(ctx context.Context, c *rewardcycle.Cycle) error {
	return r.cfg.run(ctx, func(ctx context.Context) error {
		return r.Repository.Upsert(ctx, c)
	})
}

func (r *Repository) UpsertUnpublished(ctx context.Context, c *rewardcycle.Cycle) error {
	return r.cfg.run(ctx, func(ctx context.Context) error {
		return r.Repository.UpsertUnpublished(ctx, c)
	})
}
