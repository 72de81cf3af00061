package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"reward_cycle_bot/internal/domain/rewardcycle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset by peer")

func fastOptions() []Option {
	return []Option{WithBaseDelay(time.Millisecond), WithJitterFactor(0)}
}

func Test_WithExponentialBackoff_Success_NoRetries(t *testing.T) {
	callCount := 0
	err := WithExponentialBackoff(context.Background(), func(_ context.Context) error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func Test_WithExponentialBackoff_RetriesTransientErrors(t *testing.T) {
	callCount := 0
	var retried []int

	opts := append(fastOptions(), WithOnRetry(func(attempt int, err error) {
		retried = append(retried, attempt)
		assert.ErrorIs(t, err, errTransient)
	}))
	err := WithExponentialBackoff(context.Background(), func(_ context.Context) error {
		callCount++
		if callCount < 3 {
			return errTransient
		}
		return nil
	}, opts...)

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, []int{1, 2}, retried)
}

func Test_WithExponentialBackoff_GivesUpAfterMaxAttempts(t *testing.T) {
	callCount := 0
	err := WithExponentialBackoff(context.Background(), func(_ context.Context) error {
		callCount++
		return errTransient
	}, append(fastOptions(), WithMaxAttempts(2))...)

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, callCount)
}

func Test_WithExponentialBackoff_PermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "not found", err: rewardcycle.ErrCycleNotFound},
		{name: "published", err: rewardcycle.ErrCyclePublished},
		{name: "canceled", err: context.Canceled},
		{name: "deadline", err: context.DeadlineExceeded},
		{name: "data integrity", err: &rewardcycle.DataIntegrityError{Field: "start date"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callCount := 0
			err := WithExponentialBackoff(context.Background(), func(_ context.Context) error {
				callCount++
				return tt.err
			}, fastOptions()...)

			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, callCount)
		})
	}
}

func Test_WithExponentialBackoff_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	err := WithExponentialBackoff(ctx, func(_ context.Context) error {
		callCount++
		cancel()
		return errTransient
	}, WithBaseDelay(time.Second))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func Test_WithExponentialBackoff_InvalidOptions(t *testing.T) {
	fn := func(_ context.Context) error { return nil }

	assert.ErrorIs(t, WithExponentialBackoff(context.Background(), fn, WithMaxAttempts(0)), ErrInvalidMaxAttempts)
	assert.ErrorIs(t, WithExponentialBackoff(context.Background(), fn, WithBaseDelay(-time.Second)), ErrNegativeBaseDelay)
	assert.ErrorIs(t, WithExponentialBackoff(context.Background(), fn, WithJitterFactor(1.5)), ErrInvalidJitterFactor)
}

type flakyRepository struct {
	rewardcycle.Repository
	failures int
	upserts  int
}

func (f *flakyRepository) Upsert(_ context.Context, _ *rewardcycle.Cycle) error {
	f.upserts++
	if f.upserts <= f.failures {
		return errTransient
	}
	return nil
}

func (f *flakyRepository) UpsertUnpublished(ctx context.Context, c *rewardcycle.Cycle) error {
	if err := f.Upsert(ctx, c); err != nil {
		return err
	}
	return rewardcycle.ErrCyclePublished
}

func (f *flakyRepository) GetCurrent(_ context.Context, _ string) (*rewardcycle.Cycle, error) {
	return nil, errTransient
}

func Test_Repository_RetriesUpsertOnly(t *testing.T) {
	inner := &flakyRepository{failures: 2}
	repo, err := NewRepository(inner, fastOptions()...)
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(context.Background(), &rewardcycle.Cycle{CycleID: "c"}))
	assert.Equal(t, 3, inner.upserts)

	_, err = repo.GetCurrent(context.Background(), "team-1")
	assert.ErrorIs(t, err, errTransient)
}

func Test_Repository_UpsertUnpublishedStopsOnPublished(t *testing.T) {
	inner := &flakyRepository{failures: 1}
	repo, err := NewRepository(inner, fastOptions()...)
	require.NoError(t, err)

	err = repo.UpsertUnpublished(context.Background(), &rewardcycle.Cycle{CycleID: "c"})
	assert.ErrorIs(t, err, rewardcycle.ErrCyclePublished)
	assert.Equal(t, 2, inner.upserts)
}

func Test_NewRepository_InvalidOption(t *testing.T) {
	_, err := NewRepository(&flakyRepository{}, WithMaxAttempts(-1))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}
