// internal/domain/rewardcycle/repository.go
package rewardcycle

import "context"

// Repository defines persistence operations for reward cycles.
type Repository interface {
	// ListUnpublished returns every cycle the scheduler has to evaluate:
	// unpublished and not superseded by a rollover.
	ListUnpublished(ctx context.Context) ([]*Cycle, error)
	// Upsert inserts the cycle or replaces the row with the same team and cycle id.
	Upsert(ctx context.Context, c *Cycle) error
	// UpsertUnpublished is Upsert that leaves a stored Published row untouched and
	// returns ErrCyclePublished instead.
	UpsertUnpublished(ctx context.Context, c *Cycle) error

	// GetCurrent returns the team's live cycle (see Cycle.IsCurrent), newest first
	// if several match. ErrCycleNotFound if there is none.
	GetCurrent(ctx context.Context, teamID string) (*Cycle, error)
	// GetLatestPublished returns the team's most recently published cycle.
	GetLatestPublished(ctx context.Context, teamID string) (*Cycle, error)
	GetByID(ctx context.Context, teamID, cycleID string) (*Cycle, error)
}
