package app

import (
	"context"
	"errors"

	"reward_cycle_bot/internal/domain/rewardcycle"
)

// ErrAdminNotAuthorized is returned when a chat user other than the configured admin
// tries to manage cycles.
var ErrAdminNotAuthorized = errors.New("performing user is not authorized as an admin")

// AdminService exposes the cycle use cases to the Telegram admin.
type AdminService struct {
	cycles          CycleService
	adminTelegramID int64
}

func NewAdminService(cycles CycleService, adminID int64) *AdminService {
	return &AdminService{
		cycles:          cycles,
		adminTelegramID: adminID,
	}
}

// Authorize checks that performingAdminID is the configured admin.
func (s *AdminService) Authorize(performingAdminID int64) error {
	if performingAdminID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	return nil
}

func (s *AdminService) CurrentCycle(ctx context.Context, performingAdminID int64, teamID string) (*rewardcycle.Cycle, error) {
	if err := s.Authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.cycles.GetCurrentCycle(ctx, teamID)
}

func (s *AdminService) PublishedCycle(ctx context.Context, performingAdminID int64, teamID string) (*rewardcycle.Cycle, error) {
	if err := s.Authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.cycles.GetPublishedCycle(ctx, teamID)
}

// SetCycle configures a team's cycle on behalf of the admin.
func (s *AdminService) SetCycle(ctx context.Context, performingAdminID int64, in rewardcycle.SetCycleInput) (*rewardcycle.Cycle, error) {
	if err := s.Authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.cycles.SetCycle(ctx, in)
}

func (s *AdminService) PublishResults(ctx context.Context, performingAdminID int64, teamID string) (*rewardcycle.Cycle, error) {
	if err := s.Authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.cycles.PublishResults(ctx, teamID)
}
