package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"reward_cycle_bot/internal/domain/rewardcycle"
	"reward_cycle_bot/internal/infra/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepository is an in-memory rewardcycle.Repository for tests.
type memoryRepository struct {
	mu      sync.Mutex
	rows    map[string]rewardcycle.Cycle
	listErr error
	// failUpsert returns an error for rows that must not be stored.
	failUpsert func(c *rewardcycle.Cycle) error
	// extra rows returned by ListUnpublished regardless of filters.
	extra   []*rewardcycle.Cycle
	upserts int
}

func newMemoryRepository(cycles ...*rewardcycle.Cycle) *memoryRepository {
	r := &memoryRepository{rows: map[string]rewardcycle.Cycle{}}
	for _, c := range cycles {
		r.rows[c.TeamID+"/"+c.CycleID] = c.Clone()
	}
	return r
}

func (r *memoryRepository) ListUnpublished(_ context.Context) ([]*rewardcycle.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*rewardcycle.Cycle
	for _, c := range r.rows {
		if c.IsSchedulable() {
			cp := c.Clone()
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CycleID < out[j].CycleID })
	return append(out, r.extra...), nil
}

func (r *memoryRepository) Upsert(_ context.Context, c *rewardcycle.Cycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsert != nil {
		if err := r.failUpsert(c); err != nil {
			return err
		}
	}
	r.upserts++
	r.rows[c.TeamID+"/"+c.CycleID] = c.Clone()
	return nil
}

func (r *memoryRepository) UpsertUnpublished(_ context.Context, c *rewardcycle.Cycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsert != nil {
		if err := r.failUpsert(c); err != nil {
			return err
		}
	}
	key := c.TeamID + "/" + c.CycleID
	if stored, ok := r.rows[key]; ok && stored.ResultPublished == rewardcycle.Published {
		return rewardcycle.ErrCyclePublished
	}
	r.upserts++
	r.rows[key] = c.Clone()
	return nil
}

// publish marks a stored row published without going through the service.
func (r *memoryRepository) publish(teamID, cycleID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := teamID + "/" + cycleID
	published, err := rewardcycle.Publish(r.rows[key], at)
	if err == nil {
		r.rows[key] = published
	}
}

func (r *memoryRepository) GetCurrent(_ context.Context, teamID string) (*rewardcycle.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *rewardcycle.Cycle
	for _, c := range r.rows {
		if c.TeamID != teamID || !c.IsCurrent() {
			continue
		}
		if best == nil || c.CreatedOn.After(best.CreatedOn) {
			cp := c.Clone()
			best = &cp
		}
	}
	if best == nil {
		return nil, rewardcycle.ErrCycleNotFound
	}
	return best, nil
}

func (r *memoryRepository) GetLatestPublished(_ context.Context, teamID string) (*rewardcycle.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *rewardcycle.Cycle
	for _, c := range r.rows {
		if c.TeamID != teamID || c.ResultPublished != rewardcycle.Published {
			continue
		}
		if best == nil || c.ResultPublishedOn.After(*best.ResultPublishedOn) {
			cp := c.Clone()
			best = &cp
		}
	}
	if best == nil {
		return nil, rewardcycle.ErrCycleNotFound
	}
	return best, nil
}

func (r *memoryRepository) GetByID(_ context.Context, teamID, cycleID string) (*rewardcycle.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[teamID+"/"+cycleID]
	if !ok {
		return nil, rewardcycle.ErrCycleNotFound
	}
	cp := c.Clone()
	return &cp, nil
}

func (r *memoryRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// listHookRepository runs afterList once the pass has listed its working set.
type listHookRepository struct {
	*memoryRepository
	afterList func()
}

func (r *listHookRepository) ListUnpublished(ctx context.Context) ([]*rewardcycle.Cycle, error) {
	cycles, err := r.memoryRepository.ListUnpublished(ctx)
	if err == nil && r.afterList != nil {
		r.afterList()
	}
	return cycles, err
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newService(repo rewardcycle.Repository, now time.Time) *CycleServiceImpl {
	return NewCycleServiceImpl(repo, logger.Discard()).WithClock(fixedClock(now))
}

func weekCycle(team, id string, start time.Time) *rewardcycle.Cycle {
	return &rewardcycle.Cycle{
		CycleID:   id,
		TeamID:    team,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 7),
		State:     rewardcycle.StateActive,
		CreatedOn: start,
	}
}

func Test_UpdateCycleStatuses_MixedRecords(t *testing.T) {
	now := day(2023, 1, 20)

	inWindow := weekCycle("team-a", "a-in-window", day(2023, 1, 18))
	inWindow.State = rewardcycle.StateInactive

	expired := weekCycle("team-b", "b-expired", day(2023, 1, 1))
	expired.IsRecurring = true
	expired.RangeOfOccurrence = rewardcycle.OccurrenceNoEndDate

	broken := &rewardcycle.Cycle{CycleID: "c-broken", TeamID: "team-c", EndDate: day(2023, 1, 8)}

	misconfigured := weekCycle("team-d", "d-misconfigured", day(2023, 1, 1))
	misconfigured.IsRecurring = true
	misconfigured.RangeOfOccurrence = rewardcycle.OccurrenceType(7)

	finished := weekCycle("team-e", "e-finished", day(2023, 1, 1))

	repo := newMemoryRepository(inWindow, expired, broken, misconfigured, finished)
	published := weekCycle("team-f", "f-published", day(2023, 1, 1))
	published.ResultPublished = rewardcycle.Published
	repo.extra = []*rewardcycle.Cycle{published}

	report, err := newService(repo, now).UpdateCycleStatuses(context.Background())
	require.NoError(t, err)

	assert.Equal(t, TickReport{
		Evaluated:     4,
		Active:        1,
		Inactive:      2, // misconfigured and finished
		RolledOver:    1,
		Misconfigured: 1,
		Skipped:       2, // broken and published
	}, report)

	got, err := repo.GetByID(context.Background(), "team-a", "a-in-window")
	require.NoError(t, err)
	assert.Equal(t, rewardcycle.StateActive, got.State)

	got, err = repo.GetByID(context.Background(), "team-d", "d-misconfigured")
	require.NoError(t, err)
	assert.Equal(t, rewardcycle.StateInactive, got.State)

	got, err = repo.GetByID(context.Background(), "team-c", "c-broken")
	require.NoError(t, err)
	assert.True(t, got.StartDate.IsZero(), "skipped record must not be rewritten")
}

func Test_UpdateCycleStatuses_RolloverPersistence(t *testing.T) {
	now := day(2023, 1, 10)
	ctx := context.Background()

	c := weekCycle("team-1", "cycle-1", day(2023, 1, 1))
	c.IsRecurring = true
	c.RangeOfOccurrence = rewardcycle.OccurrenceEndAfter
	c.NumberOfOccurrences = 2
	repo := newMemoryRepository(c)
	svc := newService(repo, now)

	report, err := svc.UpdateCycleStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RolledOver)
	assert.Equal(t, 2, repo.count())

	old, err := repo.GetByID(ctx, "team-1", "cycle-1")
	require.NoError(t, err)
	assert.Equal(t, rewardcycle.StateInactive, old.State)
	nextID := rewardcycle.RolloverID("team-1", "cycle-1", now)
	assert.Equal(t, nextID, old.SupersededBy)

	current, err := svc.GetCurrentCycle(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, nextID, current.CycleID)
	assert.Equal(t, 1, current.NumberOfOccurrences)
	assert.Equal(t, now, current.StartDate)
	assert.Equal(t, day(2023, 1, 17), current.EndDate)

	// A second pass on the same day neither re-rolls the old row nor creates another one.
	report, err = svc.UpdateCycleStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickReport{Evaluated: 1, Active: 1}, report)
	assert.Equal(t, 2, repo.count())
}

func Test_UpdateCycleStatuses_PartialFailure(t *testing.T) {
	now := day(2023, 1, 20)
	ctx := context.Background()

	first := weekCycle("team-1", "cycle-1", day(2023, 1, 18))
	second := weekCycle("team-2", "cycle-2", day(2023, 1, 18))
	third := weekCycle("team-3", "cycle-3", day(2023, 1, 18))
	repo := newMemoryRepository(first, second, third)

	errDown := errors.New("storage unavailable")
	repo.failUpsert = func(c *rewardcycle.Cycle) error {
		if c.CycleID == "cycle-2" {
			return errDown
		}
		return nil
	}

	report, err := newService(repo, now).UpdateCycleStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Evaluated)
	assert.Equal(t, 2, report.Active)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, repo.upserts)
}

func Test_UpdateCycleStatuses_InterruptedRollover(t *testing.T) {
	now := day(2023, 1, 10)
	ctx := context.Background()
	nextID := rewardcycle.RolloverID("team-1", "cycle-1", now)

	tests := []struct {
		name      string
		failingID string
	}{
		{name: "successor write fails", failingID: nextID},
		{name: "closing write fails", failingID: "cycle-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := weekCycle("team-1", "cycle-1", day(2023, 1, 1))
			c.IsRecurring = true
			repo := newMemoryRepository(c)
			failing := true
			repo.failUpsert = func(c *rewardcycle.Cycle) error {
				if failing && c.CycleID == tt.failingID {
					return errors.New("write timeout")
				}
				return nil
			}
			svc := newService(repo, now)

			report, err := svc.UpdateCycleStatuses(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Failed)
			assert.Zero(t, report.RolledOver)

			old, err := repo.GetByID(ctx, "team-1", "cycle-1")
			require.NoError(t, err)
			assert.Empty(t, old.SupersededBy, "old row must stay in the working set")

			failing = false
			report, err = svc.UpdateCycleStatuses(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, report.RolledOver)
			assert.Equal(t, 2, repo.count())

			current, err := svc.GetCurrentCycle(ctx, "team-1")
			require.NoError(t, err)
			assert.Equal(t, nextID, current.CycleID)
		})
	}
}

func Test_UpdateCycleStatuses_ListFailureAborts(t *testing.T) {
	repo := newMemoryRepository()
	repo.listErr = errors.New("connection refused")

	_, err := newService(repo, day(2023, 1, 1)).UpdateCycleStatuses(context.Background())
	assert.ErrorIs(t, err, repo.listErr)
}

func Test_UpdateCycleStatuses_CanceledContext(t *testing.T) {
	repo := newMemoryRepository(weekCycle("team-1", "cycle-1", day(2023, 1, 1)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newService(repo, day(2023, 1, 2)).UpdateCycleStatuses(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Evaluated)
}

func Test_UpdateCycleStatuses_PublishedAfterListing(t *testing.T) {
	ctx := context.Background()
	now := day(2023, 6, 9)

	tests := []struct {
		name  string
		start time.Time
	}{
		{name: "in-place state update", start: day(2023, 6, 5)},
		{name: "rollover", start: day(2023, 6, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := weekCycle("team-1", "cycle-1", tt.start)
			c.IsRecurring = true
			c.RangeOfOccurrence = rewardcycle.OccurrenceNoEndDate
			c.State = rewardcycle.StateInactive
			mem := newMemoryRepository(c)
			repo := &listHookRepository{memoryRepository: mem, afterList: func() {
				mem.publish("team-1", "cycle-1", now)
			}}

			report, err := newService(repo, now).UpdateCycleStatuses(ctx)
			require.NoError(t, err)
			assert.Equal(t, TickReport{Skipped: 1}, report)

			got, err := mem.GetByID(ctx, "team-1", "cycle-1")
			require.NoError(t, err)
			assert.Equal(t, rewardcycle.Published, got.ResultPublished)
			assert.Equal(t, rewardcycle.StateInactive, got.State)
			assert.Empty(t, got.SupersededBy)
			assert.Equal(t, 1, mem.count(), "no successor for a published cycle")
		})
	}
}

func Test_UpdateCycleStatuses_PublishedSuccessorIsKept(t *testing.T) {
	ctx := context.Background()
	now := day(2023, 1, 10)
	nextID := rewardcycle.RolloverID("team-1", "cycle-1", now)

	c := weekCycle("team-1", "cycle-1", day(2023, 1, 1))
	c.IsRecurring = true
	repo := newMemoryRepository(c)
	closing := errors.New("write timeout")
	repo.failUpsert = func(c *rewardcycle.Cycle) error {
		if c.CycleID == "cycle-1" && closing != nil {
			return closing
		}
		return nil
	}
	svc := newService(repo, now)

	report, err := svc.UpdateCycleStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	repo.publish("team-1", nextID, now)
	closing = nil

	report, err = svc.UpdateCycleStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RolledOver)

	next, err := repo.GetByID(ctx, "team-1", nextID)
	require.NoError(t, err)
	assert.Equal(t, rewardcycle.Published, next.ResultPublished)

	old, err := repo.GetByID(ctx, "team-1", "cycle-1")
	require.NoError(t, err)
	assert.Equal(t, nextID, old.SupersededBy)
}

func Test_PublishResults_WaitsForRunningPass(t *testing.T) {
	ctx := context.Background()
	now := day(2023, 6, 9)

	c := weekCycle("team-1", "cycle-1", day(2023, 6, 5))
	c.State = rewardcycle.StateInactive
	mem := newMemoryRepository(c)
	repo := &listHookRepository{memoryRepository: mem}
	svc := newService(repo, now)

	published := make(chan error, 1)
	repo.afterList = func() {
		go func() {
			_, err := svc.PublishResults(ctx, "team-1")
			published <- err
		}()
		time.Sleep(20 * time.Millisecond)
	}

	report, err := svc.UpdateCycleStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Active)
	require.NoError(t, <-published)

	got, err := mem.GetByID(ctx, "team-1", "cycle-1")
	require.NoError(t, err)
	assert.Equal(t, rewardcycle.Published, got.ResultPublished)
	assert.Equal(t, rewardcycle.StateActive, got.State)
}

func setInput(team string, start, end time.Time) rewardcycle.SetCycleInput {
	return rewardcycle.SetCycleInput{
		TeamID:                 team,
		StartDate:              start,
		EndDate:                end,
		CreatedByObjectID:      "obj-1",
		CreatedByPrincipalName: "admin@example.com",
	}
}

func Test_SetCycle(t *testing.T) {
	ctx := context.Background()
	now := day(2023, 1, 5)

	t.Run("creates the first cycle", func(t *testing.T) {
		repo := newMemoryRepository()
		created, err := newService(repo, now).SetCycle(ctx, setInput("team-1", day(2023, 1, 1), day(2023, 1, 8)))
		require.NoError(t, err)

		assert.NotEmpty(t, created.CycleID)
		assert.Equal(t, rewardcycle.StateActive, created.State)
		assert.Equal(t, now, created.CreatedOn)
		assert.Equal(t, 1, repo.count())
	})

	t.Run("edits the current cycle in place", func(t *testing.T) {
		existing := weekCycle("team-1", "cycle-1", day(2023, 1, 1))
		repo := newMemoryRepository(existing)

		in := setInput("team-1", day(2023, 2, 1), day(2023, 2, 14))
		in.IsRecurring = true
		in.RangeOfOccurrence = rewardcycle.OccurrenceEndAfter
		in.NumberOfOccurrences = 3

		updated, err := newService(repo, now).SetCycle(ctx, in)
		require.NoError(t, err)

		assert.Equal(t, "cycle-1", updated.CycleID)
		assert.Equal(t, rewardcycle.StateInactive, updated.State)
		assert.Equal(t, 3, updated.NumberOfOccurrences)
		assert.Equal(t, 1, repo.count())
	})

	t.Run("closes a published cycle and starts a new one", func(t *testing.T) {
		existing := weekCycle("team-1", "cycle-1", day(2023, 1, 1))
		existing.ResultPublished = rewardcycle.Published
		publishedOn := day(2023, 1, 4)
		existing.ResultPublishedOn = &publishedOn
		repo := newMemoryRepository(existing)

		created, err := newService(repo, now).SetCycle(ctx, setInput("team-1", day(2023, 1, 5), day(2023, 1, 12)))
		require.NoError(t, err)

		assert.NotEqual(t, "cycle-1", created.CycleID)
		assert.Equal(t, 2, repo.count())

		old, err := repo.GetByID(ctx, "team-1", "cycle-1")
		require.NoError(t, err)
		assert.Equal(t, rewardcycle.StateInactive, old.State)
		assert.Equal(t, rewardcycle.Published, old.ResultPublished)
	})

	t.Run("invalid input is rejected before storage", func(t *testing.T) {
		repo := newMemoryRepository()
		_, err := newService(repo, now).SetCycle(ctx, setInput("team-1", day(2023, 1, 8), day(2023, 1, 1)))
		assert.ErrorIs(t, err, rewardcycle.ErrEndBeforeStart)
		assert.Zero(t, repo.count())
	})
}

func Test_PublishResults(t *testing.T) {
	ctx := context.Background()
	now := day(2023, 1, 9)
	repo := newMemoryRepository(weekCycle("team-1", "cycle-1", day(2023, 1, 1)))
	svc := newService(repo, now)

	published, err := svc.PublishResults(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, rewardcycle.Published, published.ResultPublished)
	require.NotNil(t, published.ResultPublishedOn)
	assert.Equal(t, now, *published.ResultPublishedOn)

	got, err := svc.GetPublishedCycle(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", got.CycleID)

	_, err = svc.PublishResults(ctx, "team-1")
	assert.ErrorIs(t, err, rewardcycle.ErrCyclePublished)

	// the pass ignores published cycles
	report, err := svc.UpdateCycleStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickReport{}, report)

	_, err = svc.PublishResults(ctx, "team-2")
	assert.ErrorIs(t, err, rewardcycle.ErrCycleNotFound)
}

func Test_AdminService_Authorization(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository(weekCycle("team-1", "cycle-1", day(2023, 1, 1)))
	admin := NewAdminService(newService(repo, day(2023, 1, 2)), 42)

	_, err := admin.CurrentCycle(ctx, 7, "team-1")
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = admin.PublishResults(ctx, 7, "team-1")
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = admin.SetCycle(ctx, 7, setInput("team-1", day(2023, 1, 1), day(2023, 1, 8)))
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)

	c, err := admin.CurrentCycle(ctx, 42, "team-1")
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", c.CycleID)
}
