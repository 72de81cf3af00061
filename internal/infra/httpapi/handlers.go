package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"reward_cycle_bot/internal/domain/rewardcycle"

	"github.com/go-chi/chi/v5"
)

// FlexTime accepts YYYY-MM-DD as sent by date pickers, or RFC3339.
type FlexTime struct {
	time.Time
}

func (ft *FlexTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		ft.Time = t
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		ft.Time = t.UTC()
		return nil
	}
	return errors.New("invalid date/time format")
}

func (ft *FlexTime) ToTimePtr() *time.Time {
	if ft == nil || ft.Time.IsZero() {
		return nil
	}
	t := ft.Time
	return &t
}

type setCycleRequest struct {
	RewardCycleStartDate     FlexTime  `json:"rewardCycleStartDate"`
	RewardCycleEndDate       FlexTime  `json:"rewardCycleEndDate"`
	IsRecurring              bool      `json:"isRecurring"`
	RangeOfOccurrence        int       `json:"rangeOfOccurrence"`
	RangeOfOccurrenceEndDate *FlexTime `json:"rangeOfOccurrenceEndDate"`
	NumberOfOccurrences      int       `json:"numberOfOccurrences"`
	CreatedByObjectID        string    `json:"createdByObjectId"`
	CreatedByPrincipalName   string    `json:"createdByPrincipalName"`
}

func (req setCycleRequest) toInput(teamID string) rewardcycle.SetCycleInput {
	return rewardcycle.SetCycleInput{
		TeamID:                   teamID,
		StartDate:                req.RewardCycleStartDate.Time,
		EndDate:                  req.RewardCycleEndDate.Time,
		IsRecurring:              req.IsRecurring,
		RangeOfOccurrence:        rewardcycle.OccurrenceType(req.RangeOfOccurrence),
		RangeOfOccurrenceEndDate: req.RangeOfOccurrenceEndDate.ToTimePtr(),
		NumberOfOccurrences:      req.NumberOfOccurrences,
		CreatedByObjectID:        req.CreatedByObjectID,
		CreatedByPrincipalName:   req.CreatedByPrincipalName,
	}
}

type cycleResponse struct {
	CycleID                  string     `json:"cycleId"`
	TeamID                   string     `json:"teamId"`
	RewardCycleStartDate     time.Time  `json:"rewardCycleStartDate"`
	RewardCycleEndDate       time.Time  `json:"rewardCycleEndDate"`
	IsRecurring              bool       `json:"isRecurring"`
	RangeOfOccurrence        int        `json:"rangeOfOccurrence"`
	RangeOfOccurrenceEndDate *time.Time `json:"rangeOfOccurrenceEndDate,omitempty"`
	NumberOfOccurrences      int        `json:"numberOfOccurrences"`
	RewardCycleState         int        `json:"rewardCycleState"`
	ResultPublished          int        `json:"resultPublished"`
	ResultPublishedOn        *time.Time `json:"resultPublishedOn,omitempty"`
	CreatedOn                time.Time  `json:"createdOn"`
	CreatedByObjectID        string     `json:"createdByObjectId,omitempty"`
	CreatedByPrincipalName   string     `json:"createdByPrincipalName,omitempty"`
}

func toCycleResponse(c *rewardcycle.Cycle) cycleResponse {
	return cycleResponse{
		CycleID:                  c.CycleID,
		TeamID:                   c.TeamID,
		RewardCycleStartDate:     c.StartDate,
		RewardCycleEndDate:       c.EndDate,
		IsRecurring:              c.IsRecurring,
		RangeOfOccurrence:        int(c.RangeOfOccurrence),
		RangeOfOccurrenceEndDate: c.RangeOfOccurrenceEndDate,
		NumberOfOccurrences:      c.NumberOfOccurrences,
		RewardCycleState:         int(c.State),
		ResultPublished:          int(c.ResultPublished),
		ResultPublishedOn:        c.ResultPublishedOn,
		CreatedOn:                c.CreatedOn,
		CreatedByObjectID:        c.CreatedByObjectID,
		CreatedByPrincipalName:   c.CreatedByPrincipalName,
	}
}

// writeCycleError maps service errors to responses.
func (a *API) writeCycleError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var integrity *rewardcycle.DataIntegrityError
	switch {
	case errors.Is(err, rewardcycle.ErrCycleNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Reward cycle not found")
	case errors.Is(err, rewardcycle.ErrCyclePublished):
		writeError(w, http.StatusConflict, "ALREADY_PUBLISHED", "Reward cycle results are already published")
	case errors.Is(err, rewardcycle.ErrTeamIDRequired),
		errors.Is(err, rewardcycle.ErrDatesRequired),
		errors.Is(err, rewardcycle.ErrEndBeforeStart),
		errors.Is(err, rewardcycle.ErrDateOutOfRange),
		errors.Is(err, rewardcycle.ErrInvalidOccurrences),
		errors.Is(err, rewardcycle.ErrEndByDateRequired),
		errors.Is(err, rewardcycle.ErrUnknownOccurrence):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.As(err, &integrity):
		writeError(w, http.StatusUnprocessableEntity, "DATA_INTEGRITY", err.Error())
	default:
		a.Logger.WithError(err).WithField("path", r.URL.Path).Errorf("Failed to %s", action)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to "+action)
	}
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleGetCurrentCycle(w http.ResponseWriter, r *http.Request) {
	c, err := a.Cycles.GetCurrentCycle(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		a.writeCycleError(w, r, err, "get reward cycle")
		return
	}
	writeJSON(w, http.StatusOK, toCycleResponse(c))
}

func (a *API) handleGetPublishedCycle(w http.ResponseWriter, r *http.Request) {
	c, err := a.Cycles.GetPublishedCycle(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		a.writeCycleError(w, r, err, "get published reward cycle")
		return
	}
	writeJSON(w, http.StatusOK, toCycleResponse(c))
}

func (a *API) handleSetCycle(w http.ResponseWriter, r *http.Request) {
	var req setCycleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := a.Cycles.SetCycle(r.Context(), req.toInput(chi.URLParam(r, "teamID")))
	if err != nil {
		a.writeCycleError(w, r, err, "set reward cycle")
		return
	}
	writeJSON(w, http.StatusOK, toCycleResponse(c))
}

func (a *API) handlePublish(w http.ResponseWriter, r *http.Request) {
	c, err := a.Cycles.PublishResults(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		a.writeCycleError(w, r, err, "publish reward cycle")
		return
	}
	writeJSON(w, http.StatusOK, toCycleResponse(c))
}

func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	report, ran, err := a.Runner.RunNow(r.Context())
	if !ran {
		writeError(w, http.StatusConflict, "PASS_IN_PROGRESS", "A cycle status pass is already running")
		return
	}
	if err != nil {
		a.Logger.WithError(err).Error("Forced cycle status pass failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Cycle status pass failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
