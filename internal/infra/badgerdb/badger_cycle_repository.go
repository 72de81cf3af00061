// Package badgerdb keeps reward cycles in an embedded BadgerDB store, for
// single-node deployments without PostgreSQL.
package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"reward_cycle_bot/internal/domain/rewardcycle"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const cyclePrefix = "cycle/"

// cycleRecord is the stored form of a cycle.
type cycleRecord struct {
	CycleID                  string     `json:"cycleId"`
	TeamID                   string     `json:"teamId"`
	StartDate                *time.Time `json:"rewardCycleStartDate,omitempty"`
	EndDate                  *time.Time `json:"rewardCycleEndDate,omitempty"`
	IsRecurring              bool       `json:"isRecurring"`
	RangeOfOccurrence        int        `json:"rangeOfOccurrence"`
	RangeOfOccurrenceEndDate *time.Time `json:"rangeOfOccurrenceEndDate,omitempty"`
	NumberOfOccurrences      int        `json:"numberOfOccurrences"`
	State                    int        `json:"rewardCycleState"`
	ResultPublished          int        `json:"resultPublished"`
	ResultPublishedOn        *time.Time `json:"resultPublishedOn,omitempty"`
	SupersededBy             string     `json:"supersededBy,omitempty"`
	CreatedOn                time.Time  `json:"createdOn"`
	CreatedByObjectID        string     `json:"createdByObjectId,omitempty"`
	CreatedByPrincipalName   string     `json:"createdByPrincipalName,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromDomain(c *rewardcycle.Cycle) cycleRecord {
	cp := c.Clone()
	return cycleRecord{
		CycleID:                  cp.CycleID,
		TeamID:                   cp.TeamID,
		StartDate:                optionalTime(cp.StartDate),
		EndDate:                  optionalTime(cp.EndDate),
		IsRecurring:              cp.IsRecurring,
		RangeOfOccurrence:        int(cp.RangeOfOccurrence),
		RangeOfOccurrenceEndDate: cp.RangeOfOccurrenceEndDate,
		NumberOfOccurrences:      cp.NumberOfOccurrences,
		State:                    int(cp.State),
		ResultPublished:          int(cp.ResultPublished),
		ResultPublishedOn:        cp.ResultPublishedOn,
		SupersededBy:             cp.SupersededBy,
		CreatedOn:                cp.CreatedOn.UTC(),
		CreatedByObjectID:        cp.CreatedByObjectID,
		CreatedByPrincipalName:   cp.CreatedByPrincipalName,
	}
}

func (r cycleRecord) toDomain() *rewardcycle.Cycle {
	c := &rewardcycle.Cycle{
		CycleID:                  r.CycleID,
		TeamID:                   r.TeamID,
		IsRecurring:              r.IsRecurring,
		RangeOfOccurrence:        rewardcycle.OccurrenceType(r.RangeOfOccurrence),
		RangeOfOccurrenceEndDate: r.RangeOfOccurrenceEndDate,
		NumberOfOccurrences:      r.NumberOfOccurrences,
		State:                    rewardcycle.CycleState(r.State),
		ResultPublished:          rewardcycle.PublishState(r.ResultPublished),
		ResultPublishedOn:        r.ResultPublishedOn,
		SupersededBy:             r.SupersededBy,
		CreatedOn:                r.CreatedOn,
		CreatedByObjectID:        r.CreatedByObjectID,
		CreatedByPrincipalName:   r.CreatedByPrincipalName,
	}
	if r.StartDate != nil {
		c.StartDate = *r.StartDate
	}
	if r.EndDate != nil {
		c.EndDate = *r.EndDate
	}
	return c
}

// CycleRepository implements rewardcycle.Repository on top of BadgerDB.
// Keys are cycle/<team>/<cycle>; values are JSON.
type CycleRepository struct {
	db *badger.DB
}

// Open opens (or creates) the store at path. An empty path gives an in-memory store.
func Open(path string) (*CycleRepository, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &CycleRepository{db: db}, nil
}

func (s *CycleRepository) Close() error {
	return s.db.Close()
}

// Key segments are path-escaped so a team id containing "/" cannot share
// another team's prefix.
func cycleKey(teamID, cycleID string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", cyclePrefix, url.PathEscape(teamID), url.PathEscape(cycleID)))
}

func teamPrefix(teamID string) []byte {
	return []byte(fmt.Sprintf("%s%s/", cyclePrefix, url.PathEscape(teamID)))
}

func (s *CycleRepository) scan(ctx context.Context, prefix []byte, keep func(*rewardcycle.Cycle) bool) ([]*rewardcycle.Cycle, error) {
	var out []*rewardcycle.Cycle
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var rec cycleRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("failed to unmarshal cycle %s: %w", it.Item().Key(), err)
				}
				if c := rec.toDomain(); keep(c) {
					out = append(out, c)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *CycleRepository) ListUnpublished(ctx context.Context) ([]*rewardcycle.Cycle, error) {
	cycles, err := s.scan(ctx, []byte(cyclePrefix), func(c *rewardcycle.Cycle) bool {
		return c.IsSchedulable()
	})
	if err != nil {
		return nil, fmt.Errorf("error listing unpublished reward cycles: %w", err)
	}
	return cycles, nil
}

func (s *CycleRepository) Upsert(ctx context.Context, c *rewardcycle.Cycle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(fromDomain(c))
	if err != nil {
		return fmt.Errorf("failed to marshal cycle %s: %w", c.CycleID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cycleKey(c.TeamID, c.CycleID), data)
	})
	if err != nil {
		return fmt.Errorf("error upserting reward cycle %s (team %s): %w", c.CycleID, c.TeamID, err)
	}
	return nil
}

func (s *CycleRepository) UpsertUnpublished(ctx context.Context, c *rewardcycle.Cycle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(fromDomain(c))
	if err != nil {
		return fmt.Errorf("failed to marshal cycle %s: %w", c.CycleID, err)
	}
	key := cycleKey(c.TeamID, c.CycleID)
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			var stored cycleRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}
			if stored.toDomain().ResultPublished == rewardcycle.Published {
				return rewardcycle.ErrCyclePublished
			}
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, rewardcycle.ErrCyclePublished) {
		return err
	}
	if err != nil {
		return fmt.Errorf("error upserting reward cycle %s (team %s): %w", c.CycleID, c.TeamID, err)
	}
	return nil
}

func (s *CycleRepository) GetCurrent(ctx context.Context, teamID string) (*rewardcycle.Cycle, error) {
	cycles, err := s.scan(ctx, teamPrefix(teamID), func(c *rewardcycle.Cycle) bool {
		return c.IsCurrent()
	})
	if err != nil {
		return nil, fmt.Errorf("error getting current reward cycle: %w", err)
	}
	if len(cycles) == 0 {
		return nil, rewardcycle.ErrCycleNotFound
	}
	sort.SliceStable(cycles, func(i, j int) bool {
		return cycles[i].CreatedOn.After(cycles[j].CreatedOn)
	})
	return cycles[0], nil
}

func (s *CycleRepository) GetLatestPublished(ctx context.Context, teamID string) (*rewardcycle.Cycle, error) {
	cycles, err := s.scan(ctx, teamPrefix(teamID), func(c *rewardcycle.Cycle) bool {
		return c.ResultPublished == rewardcycle.Published
	})
	if err != nil {
		return nil, fmt.Errorf("error getting published reward cycle: %w", err)
	}
	if len(cycles) == 0 {
		return nil, rewardcycle.ErrCycleNotFound
	}
	sort.SliceStable(cycles, func(i, j int) bool {
		return publishedAt(cycles[i]).After(publishedAt(cycles[j]))
	})
	return cycles[0], nil
}

func publishedAt(c *rewardcycle.Cycle) time.Time {
	if c.ResultPublishedOn == nil {
		return time.Time{}
	}
	return *c.ResultPublishedOn
}

func (s *CycleRepository) GetByID(ctx context.Context, teamID, cycleID string) (*rewardcycle.Cycle, error) {
	var rec cycleRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cycleKey(teamID, cycleID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, rewardcycle.ErrCycleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting reward cycle %s: %w", cycleID, err)
	}
	return rec.toDomain(), nil
}
