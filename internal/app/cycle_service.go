// internal/app/cycle_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reward_cycle_bot/internal/domain/rewardcycle"

	"github.com/sirupsen/logrus"
)

// CycleService defines the reward cycle use cases.
type CycleService interface {
	// UpdateCycleStatuses evaluates every unpublished cycle once and persists the result.
	UpdateCycleStatuses(ctx context.Context) (TickReport, error)
	SetCycle(ctx context.Context, in rewardcycle.SetCycleInput) (*rewardcycle.Cycle, error)
	GetCurrentCycle(ctx context.Context, teamID string) (*rewardcycle.Cycle, error)
	GetPublishedCycle(ctx context.Context, teamID string) (*rewardcycle.Cycle, error)
	PublishResults(ctx context.Context, teamID string) (*rewardcycle.Cycle, error)
}

// TickReport summarises one evaluation pass.
type TickReport struct {
	Evaluated     int `json:"evaluated"`
	Active        int `json:"active"`
	Inactive      int `json:"inactive"`
	RolledOver    int `json:"rolledOver"`
	Misconfigured int `json:"misconfigured"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

// CycleServiceImpl implements CycleService.
type CycleServiceImpl struct {
	repo   rewardcycle.Repository
	logger *logrus.Entry
	now    func() time.Time

	// mu serialises the pass with the admin writes (SetCycle, PublishResults).
	mu sync.Mutex
}

var _ CycleService = (*CycleServiceImpl)(nil)

func NewCycleServiceImpl(repo rewardcycle.Repository, logger *logrus.Entry) *CycleServiceImpl {
	return &CycleServiceImpl{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the wall clock. Used by tests and by callers replaying a date.
func (s *CycleServiceImpl) WithClock(now func() time.Time) *CycleServiceImpl {
	s.now = now
	return s
}

// UpdateCycleStatuses runs one pass over the unpublished cycles. A single "now" is
// captured up front so every record is judged against the same instant. Records
// that cannot be evaluated or stored are logged and counted; only a failure to
// list the cycles aborts the pass.
//
// Existing rows are written with UpsertUnpublished, so a row published by another
// process after the listing is left alone and counted as skipped.
func (s *CycleServiceImpl) UpdateCycleStatuses(ctx context.Context) (TickReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report TickReport
	now := s.now()

	cycles, err := s.repo.ListUnpublished(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list unpublished reward cycles")
		return report, fmt.Errorf("failed to list unpublished reward cycles: %w", err)
	}
	s.logger.Debugf("Evaluating %d reward cycles at %s", len(cycles), now.Format(time.RFC3339))

	for _, c := range cycles {
		if err := ctx.Err(); err != nil {
			s.logger.WithError(err).Warnf("Cycle status pass interrupted after %d of %d cycles", report.Evaluated+report.Skipped, len(cycles))
			return report, err
		}
		s.evaluateOne(ctx, c, now, &report)
	}

	s.logger.WithFields(logrus.Fields{
		"evaluated":     report.Evaluated,
		"active":        report.Active,
		"inactive":      report.Inactive,
		"rolled_over":   report.RolledOver,
		"misconfigured": report.Misconfigured,
		"skipped":       report.Skipped,
		"failed":        report.Failed,
	}).Info("Reward cycle status pass finished")

	return report, nil
}

func (s *CycleServiceImpl) evaluateOne(ctx context.Context, c *rewardcycle.Cycle, now time.Time, report *TickReport) {
	log := s.logger.WithFields(logrus.Fields{
		"team_id":  c.TeamID,
		"cycle_id": c.CycleID,
		"policy":   c.RangeOfOccurrence.String(),
	})

	out, err := rewardcycle.Evaluate(*c, now)
	if err != nil {
		var integrity *rewardcycle.DataIntegrityError
		switch {
		case errors.As(err, &integrity):
			log.WithError(err).Error("Skipping reward cycle with missing data")
		case errors.Is(err, rewardcycle.ErrCyclePublished):
			log.Debug("Skipping published reward cycle")
		default:
			log.WithError(err).Error("Skipping reward cycle that could not be evaluated")
		}
		report.Skipped++
		return
	}
	report.Evaluated++

	if out.Misconfigured {
		report.Misconfigured++
		log.Warnf("Unknown range of occurrence %d, cycle forced inactive", int(c.RangeOfOccurrence))
	}

	current := out.Current
	if !out.RolledOver() {
		if err := s.repo.UpsertUnpublished(ctx, &current); err != nil {
			if errors.Is(err, rewardcycle.ErrCyclePublished) {
				s.skipPublishedMeanwhile(log, report, out)
				return
			}
			report.Failed++
			log.WithError(err).Error("Failed to store evaluated reward cycle")
			return
		}
		if current.State == rewardcycle.StateActive {
			report.Active++
		} else {
			report.Inactive++
		}
		if current.State != c.State {
			log.Infof("Reward cycle state changed: %s -> %s", c.State, current.State)
		}
		return
	}

	// Re-read before creating a successor: a row published since the listing
	// must not get one.
	stored, err := s.repo.GetByID(ctx, c.TeamID, c.CycleID)
	if err != nil {
		report.Failed++
		log.WithError(err).Error("Failed to re-read reward cycle before rollover")
		return
	}
	if !stored.IsSchedulable() {
		s.skipPublishedMeanwhile(log, report, out)
		return
	}

	// Successor first. The old row stays in the working set until it is closed,
	// and the successor id depends only on the team, the old id and the date.
	// A successor already published by an earlier, interrupted pass is kept.
	nextLog := log.WithField("next_cycle_id", out.Next.CycleID)
	if err := s.repo.UpsertUnpublished(ctx, out.Next); err != nil && !errors.Is(err, rewardcycle.ErrCyclePublished) {
		report.Failed++
		nextLog.WithError(err).Error("Failed to store rolled over reward cycle")
		return
	}
	if err := s.repo.UpsertUnpublished(ctx, &current); err != nil {
		if errors.Is(err, rewardcycle.ErrCyclePublished) {
			s.skipPublishedMeanwhile(nextLog, report, out)
			return
		}
		report.Failed++
		nextLog.WithError(err).Error("Failed to close superseded reward cycle")
		return
	}
	report.RolledOver++
	nextLog.WithFields(logrus.Fields{
		"start_date": out.Next.StartDate.Format("2006-01-02"),
		"end_date":   out.Next.EndDate.Format("2006-01-02"),
	}).Info("Reward cycle rolled over")
}

func (s *CycleServiceImpl) skipPublishedMeanwhile(log *logrus.Entry, report *TickReport, out rewardcycle.Outcome) {
	report.Evaluated--
	if out.Misconfigured {
		report.Misconfigured--
	}
	report.Skipped++
	log.Info("Reward cycle was published during the pass, leaving it untouched")
}

// SetCycle configures the team's cycle. The current unpublished cycle is edited in
// place. A published current cycle is closed and a new one is created next to it,
// as is a cycle for a team that has none.
func (s *CycleServiceImpl) SetCycle(ctx context.Context, in rewardcycle.SetCycleInput) (*rewardcycle.Cycle, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	log := s.logger.WithField("team_id", in.TeamID)

	current, err := s.repo.GetCurrent(ctx, in.TeamID)
	switch {
	case errors.Is(err, rewardcycle.ErrCycleNotFound):
		current = nil
	case err != nil:
		return nil, fmt.Errorf("failed to get current reward cycle: %w", err)
	}

	if current != nil && current.ResultPublished == rewardcycle.Unpublished {
		if err := current.Apply(in, now); err != nil {
			return nil, err
		}
		if err := s.repo.Upsert(ctx, current); err != nil {
			return nil, fmt.Errorf("failed to update reward cycle: %w", err)
		}
		log.WithField("cycle_id", current.CycleID).Info("Reward cycle updated")
		return current, nil
	}

	if current != nil {
		current.State = rewardcycle.StateInactive
		if err := s.repo.Upsert(ctx, current); err != nil {
			return nil, fmt.Errorf("failed to close published reward cycle: %w", err)
		}
		log.WithField("cycle_id", current.CycleID).Info("Published reward cycle closed")
	}

	created, err := rewardcycle.NewCycle(in, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, &created); err != nil {
		return nil, fmt.Errorf("failed to create reward cycle: %w", err)
	}
	log.WithField("cycle_id", created.CycleID).Info("Reward cycle created")
	return &created, nil
}

func (s *CycleServiceImpl) GetCurrentCycle(ctx context.Context, teamID string) (*rewardcycle.Cycle, error) {
	if teamID == "" {
		return nil, rewardcycle.ErrTeamIDRequired
	}
	c, err := s.repo.GetCurrent(ctx, teamID)
	if err != nil {
		if errors.Is(err, rewardcycle.ErrCycleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get current reward cycle: %w", err)
	}
	return c, nil
}

func (s *CycleServiceImpl) GetPublishedCycle(ctx context.Context, teamID string) (*rewardcycle.Cycle, error) {
	if teamID == "" {
		return nil, rewardcycle.ErrTeamIDRequired
	}
	c, err := s.repo.GetLatestPublished(ctx, teamID)
	if err != nil {
		if errors.Is(err, rewardcycle.ErrCycleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get published reward cycle: %w", err)
	}
	return c, nil
}

// PublishResults marks the team's current cycle as published. The periodic pass
// no longer touches it afterwards.
func (s *CycleServiceImpl) PublishResults(ctx context.Context, teamID string) (*rewardcycle.Cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.GetCurrentCycle(ctx, teamID)
	if err != nil {
		return nil, err
	}
	published, err := rewardcycle.Publish(*current, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, &published); err != nil {
		return nil, fmt.Errorf("failed to publish reward cycle: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"team_id":  published.TeamID,
		"cycle_id": published.CycleID,
	}).Info("Reward cycle results published")
	return &published, nil
}
