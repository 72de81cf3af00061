// internal/infra/database/postgres_cycle_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reward_cycle_bot/internal/domain/rewardcycle"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jmoiron/sqlx"
)

const (
	defaultCycleTableName = "reward_cycles"
	dialectPostgres       = "postgres"

	colTeamID                   = "team_id"
	colCycleID                  = "cycle_id"
	colStartDate                = "reward_cycle_start_date"
	colEndDate                  = "reward_cycle_end_date"
	colIsRecurring              = "is_recurring"
	colRangeOfOccurrence        = "range_of_occurrence"
	colRangeOfOccurrenceEndDate = "range_of_occurrence_end_date"
	colNumberOfOccurrences      = "number_of_occurrences"
	colState                    = "reward_cycle_state"
	colResultPublished          = "result_published"
	colResultPublishedOn        = "result_published_on"
	colSupersededBy             = "superseded_by"
	colCreatedOn                = "created_on"
	colCreatedByObjectID        = "created_by_object_id"
	colCreatedByPrincipalName   = "created_by_principal_name"
)

var cycleColumns = []interface{}{
	colTeamID, colCycleID, colStartDate, colEndDate, colIsRecurring, colRangeOfOccurrence,
	colRangeOfOccurrenceEndDate, colNumberOfOccurrences, colState, colResultPublished,
	colResultPublishedOn, colSupersededBy, colCreatedOn, colCreatedByObjectID, colCreatedByPrincipalName,
}

// cycleRow mirrors one row of the reward cycle table.
type cycleRow struct {
	TeamID                   string         `db:"team_id"`
	CycleID                  string         `db:"cycle_id"`
	StartDate                sql.NullTime   `db:"reward_cycle_start_date"`
	EndDate                  sql.NullTime   `db:"reward_cycle_end_date"`
	IsRecurring              int16          `db:"is_recurring"`
	RangeOfOccurrence        int16          `db:"range_of_occurrence"`
	RangeOfOccurrenceEndDate sql.NullTime   `db:"range_of_occurrence_end_date"`
	NumberOfOccurrences      int            `db:"number_of_occurrences"`
	State                    int16          `db:"reward_cycle_state"`
	ResultPublished          int16          `db:"result_published"`
	ResultPublishedOn        sql.NullTime   `db:"result_published_on"`
	SupersededBy             sql.NullString `db:"superseded_by"`
	CreatedOn                time.Time      `db:"created_on"`
	CreatedByObjectID        string         `db:"created_by_object_id"`
	CreatedByPrincipalName   string         `db:"created_by_principal_name"`
}

func (r cycleRow) toDomain() *rewardcycle.Cycle {
	c := &rewardcycle.Cycle{
		CycleID:                r.CycleID,
		TeamID:                 r.TeamID,
		IsRecurring:            r.IsRecurring != 0,
		RangeOfOccurrence:      rewardcycle.OccurrenceType(r.RangeOfOccurrence),
		NumberOfOccurrences:    r.NumberOfOccurrences,
		State:                  rewardcycle.CycleState(r.State),
		ResultPublished:        rewardcycle.PublishState(r.ResultPublished),
		SupersededBy:           r.SupersededBy.String,
		CreatedOn:              r.CreatedOn.UTC(),
		CreatedByObjectID:      r.CreatedByObjectID,
		CreatedByPrincipalName: r.CreatedByPrincipalName,
	}
	// NULL dates stay zero; Evaluate reports them as a data integrity problem.
	if r.StartDate.Valid {
		c.StartDate = r.StartDate.Time.UTC()
	}
	if r.EndDate.Valid {
		c.EndDate = r.EndDate.Time.UTC()
	}
	if r.RangeOfOccurrenceEndDate.Valid {
		d := r.RangeOfOccurrenceEndDate.Time.UTC()
		c.RangeOfOccurrenceEndDate = &d
	}
	if r.ResultPublishedOn.Valid {
		d := r.ResultPublishedOn.Time.UTC()
		c.ResultPublishedOn = &d
	}
	return c
}

func cycleRecord(c *rewardcycle.Cycle) goqu.Record {
	isRecurring := 0
	if c.IsRecurring {
		isRecurring = 1
	}
	return goqu.Record{
		colTeamID:                   c.TeamID,
		colCycleID:                  c.CycleID,
		colStartDate:                nullableTime(c.StartDate),
		colEndDate:                  nullableTime(c.EndDate),
		colIsRecurring:              isRecurring,
		colRangeOfOccurrence:        int(c.RangeOfOccurrence),
		colRangeOfOccurrenceEndDate: nullableTimePtr(c.RangeOfOccurrenceEndDate),
		colNumberOfOccurrences:      c.NumberOfOccurrences,
		colState:                    int(c.State),
		colResultPublished:          int(c.ResultPublished),
		colResultPublishedOn:        nullableTimePtr(c.ResultPublishedOn),
		colSupersededBy:             nullableString(c.SupersededBy),
		colCreatedOn:                c.CreatedOn.UTC(),
		colCreatedByObjectID:        c.CreatedByObjectID,
		colCreatedByPrincipalName:   c.CreatedByPrincipalName,
	}
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullableTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return nullableTime(*t)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// PostgresCycleRepository stores reward cycles in PostgreSQL.
type PostgresCycleRepository struct {
	db        *sqlx.DB
	tableName string
}

// Option configures a PostgresCycleRepository.
type Option func(*PostgresCycleRepository)

// WithTableName overrides the default "reward_cycles" table.
func WithTableName(name string) Option {
	return func(r *PostgresCycleRepository) {
		if name != "" {
			r.tableName = name
		}
	}
}

func NewPostgresCycleRepository(db *sqlx.DB, opts ...Option) *PostgresCycleRepository {
	r := &PostgresCycleRepository{db: db, tableName: defaultCycleTableName}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *PostgresCycleRepository) selectCycles() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(r.tableName).
		Select(cycleColumns...).
		Prepared(true)
}

func (r *PostgresCycleRepository) listUnpublishedQuery() (string, []interface{}, error) {
	return r.selectCycles().
		Where(
			goqu.C(colResultPublished).Eq(int(rewardcycle.Unpublished)),
			goqu.C(colSupersededBy).IsNull(),
		).
		Order(goqu.C(colTeamID).Asc(), goqu.C(colCreatedOn).Asc()).
		ToSQL()
}

func (r *PostgresCycleRepository) currentQuery(teamID string) (string, []interface{}, error) {
	return r.selectCycles().
		Where(
			goqu.C(colTeamID).Eq(teamID),
			goqu.C(colSupersededBy).IsNull(),
			goqu.Or(
				goqu.C(colState).Eq(int(rewardcycle.StateActive)),
				goqu.And(
					goqu.C(colState).Eq(int(rewardcycle.StateInactive)),
					goqu.C(colResultPublished).Eq(int(rewardcycle.Unpublished)),
				),
			),
		).
		Order(goqu.C(colCreatedOn).Desc()).
		Limit(1).
		ToSQL()
}

func (r *PostgresCycleRepository) latestPublishedQuery(teamID string) (string, []interface{}, error) {
	return r.selectCycles().
		Where(
			goqu.C(colTeamID).Eq(teamID),
			goqu.C(colResultPublished).Eq(int(rewardcycle.Published)),
		).
		Order(goqu.C(colResultPublishedOn).Desc().NullsLast()).
		Limit(1).
		ToSQL()
}

func (r *PostgresCycleRepository) byIDQuery(teamID, cycleID string) (string, []interface{}, error) {
	return r.selectCycles().
		Where(goqu.C(colTeamID).Eq(teamID), goqu.C(colCycleID).Eq(cycleID)).
		ToSQL()
}

// upsertQuery builds the insert-or-replace statement. With onlyUnpublished the
// conflict update is limited to rows that are still unpublished.
func (r *PostgresCycleRepository) upsertQuery(c *rewardcycle.Cycle, onlyUnpublished bool) (string, []interface{}, error) {
	update := goqu.Record{}
	for _, col := range cycleColumns {
		name := col.(string)
		if name == colTeamID || name == colCycleID {
			continue
		}
		update[name] = goqu.L("EXCLUDED." + name)
	}
	conflict := goqu.DoUpdate(colTeamID+", "+colCycleID, update)
	if onlyUnpublished {
		conflict = conflict.Where(goqu.T(r.tableName).Col(colResultPublished).Eq(int(rewardcycle.Unpublished)))
	}
	return goqu.Dialect(dialectPostgres).
		Insert(r.tableName).
		Rows(cycleRecord(c)).
		OnConflict(conflict).
		Prepared(true).
		ToSQL()
}

func (r *PostgresCycleRepository) ListUnpublished(ctx context.Context) ([]*rewardcycle.Cycle, error) {
	query, args, err := r.listUnpublishedQuery()
	if err != nil {
		return nil, fmt.Errorf("error building unpublished cycles query: %w", err)
	}
	var rows []cycleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error listing unpublished reward cycles: %w", err)
	}
	cycles := make([]*rewardcycle.Cycle, 0, len(rows))
	for _, row := range rows {
		cycles = append(cycles, row.toDomain())
	}
	return cycles, nil
}

func (r *PostgresCycleRepository) Upsert(ctx context.Context, c *rewardcycle.Cycle) error {
	query, args, err := r.upsertQuery(c, false)
	if err != nil {
		return fmt.Errorf("error building upsert for reward cycle %s: %w", c.CycleID, err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error upserting reward cycle %s (team %s): %w", c.CycleID, c.TeamID, err)
	}
	return nil
}

// UpsertUnpublished skips the conflict update when the stored row is published,
// which shows up as zero affected rows.
func (r *PostgresCycleRepository) UpsertUnpublished(ctx context.Context, c *rewardcycle.Cycle) error {
	query, args, err := r.upsertQuery(c, true)
	if err != nil {
		return fmt.Errorf("error building upsert for reward cycle %s: %w", c.CycleID, err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error upserting reward cycle %s (team %s): %w", c.CycleID, c.TeamID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading upsert result for reward cycle %s: %w", c.CycleID, err)
	}
	if n == 0 {
		return rewardcycle.ErrCyclePublished
	}
	return nil
}

func (r *PostgresCycleRepository) GetCurrent(ctx context.Context, teamID string) (*rewardcycle.Cycle, error) {
	query, args, err := r.currentQuery(teamID)
	if err != nil {
		return nil, fmt.Errorf("error building current cycle query: %w", err)
	}
	return r.getOne(ctx, "current reward cycle", query, args)
}

func (r *PostgresCycleRepository) GetLatestPublished(ctx context.Context, teamID string) (*rewardcycle.Cycle, error) {
	query, args, err := r.latestPublishedQuery(teamID)
	if err != nil {
		return nil, fmt.Errorf("error building published cycle query: %w", err)
	}
	return r.getOne(ctx, "published reward cycle", query, args)
}

func (r *PostgresCycleRepository) GetByID(ctx context.Context, teamID, cycleID string) (*rewardcycle.Cycle, error) {
	query, args, err := r.byIDQuery(teamID, cycleID)
	if err != nil {
		return nil, fmt.Errorf("error building cycle by id query: %w", err)
	}
	return r.getOne(ctx, "reward cycle by id", query, args)
}

func (r *PostgresCycleRepository) getOne(ctx context.Context, what, query string, args []interface{}) (*rewardcycle.Cycle, error) {
	var row cycleRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rewardcycle.ErrCycleNotFound
		}
		return nil, fmt.Errorf("error getting %s: %w", what, err)
	}
	return row.toDomain(), nil
}
