// Package report answers read-side questions over the persisted trends:
// trending movers, per-team rosters, run history, and the maintenance
// operations the CLI exposes.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/rosterwatch/internal/store"
	"github.com/hazyhaar/rosterwatch/roster"
)

// Service wraps the store with the read-side queries.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a Service.
func New(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// Direction selects which movers Trending returns.
type Direction string

const (
	Rising  Direction = "rising"
	Falling Direction = "falling"
)

// Trending returns the players whose rostered percentage moved the most,
// computed over the most recent record per player. Players without a
// reported delta are excluded rather than treated as zero movement.
func (s *Service) Trending(ctx context.Context, dir Direction, limit int) ([]roster.Record, error) {
	if limit <= 0 {
		limit = 10
	}

	latest, err := s.store.LatestByPlayer(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("report: trending: %w", err)
	}

	movers := make([]roster.Record, 0, len(latest))
	for _, rec := range latest {
		if rec.PctRosteredDelta != nil {
			movers = append(movers, rec)
		}
	}

	sort.Slice(movers, func(i, j int) bool {
		a, b := *movers[i].PctRosteredDelta, *movers[j].PctRosteredDelta
		if a != b {
			if dir == Falling {
				return a < b
			}
			return a > b
		}
		return movers[i].Name < movers[j].Name
	})

	if len(movers) > limit {
		movers = movers[:limit]
	}
	return movers, nil
}

// TeamPlayers returns the most recent record per player on a team, ordered
// by rostered percentage descending, unreported last.
func (s *Service) TeamPlayers(ctx context.Context, team string) ([]roster.Record, error) {
	latest, err := s.store.LatestByPlayer(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("report: team players: %w", err)
	}

	var out []roster.Record
	for _, rec := range latest {
		if strings.EqualFold(rec.Team, team) {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].PctRostered, out[j].PctRostered
		switch {
		case a == nil && b == nil:
			return out[i].Name < out[j].Name
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// WeekStats summarises the table per week.
func (s *Service) WeekStats(ctx context.Context) ([]store.WeekStat, error) {
	return s.store.WeekStats(ctx)
}

// DBStats is the snapshot returned by the stats surfaces.
type DBStats struct {
	TotalRecords int64              `json:"total_records"`
	LatestStamp  *time.Time         `json:"latest_stamp,omitempty"`
	RecentRuns   []store.StampCount `json:"recent_runs"`
	Weeks        []store.WeekStat   `json:"weeks"`
}

// DBStats aggregates the table's shape for the stats command and endpoint.
func (s *Service) DBStats(ctx context.Context) (*DBStats, error) {
	total, err := s.store.TotalRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: stats: %w", err)
	}
	stats := &DBStats{TotalRecords: total}

	if stamp, ok, err := s.store.LatestStamp(ctx); err != nil {
		return nil, fmt.Errorf("report: stats: %w", err)
	} else if ok {
		stats.LatestStamp = &stamp
	}

	if stats.RecentRuns, err = s.store.RecentStamps(ctx, 5); err != nil {
		return nil, fmt.Errorf("report: stats: %w", err)
	}
	if stats.Weeks, err = s.store.WeekStats(ctx); err != nil {
		return nil, fmt.Errorf("report: stats: %w", err)
	}
	return stats, nil
}

// LastRun describes the most recent persisted run.
type LastRun struct {
	Stamp   time.Time       `json:"stamp"`
	Week    int             `json:"week"`
	Records []roster.Record `json:"records"`
}

// LastRun returns the records of the most recent run, nil when the table is
// empty.
func (s *Service) LastRun(ctx context.Context) (*LastRun, error) {
	stamp, ok, err := s.store.LatestStamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: last run: %w", err)
	}
	if !ok {
		return nil, nil
	}

	recs, err := s.store.RecordsAt(ctx, stamp)
	if err != nil {
		return nil, fmt.Errorf("report: last run: %w", err)
	}

	last := &LastRun{Stamp: stamp, Records: recs}
	if len(recs) > 0 {
		last.Week = recs[0].Week
	}
	return last, nil
}

// CleanRecent deletes the n most recently created rows. Maintenance command
// for backing out a bad run.
func (s *Service) CleanRecent(ctx context.Context, n int) (int, error) {
	ids, err := s.store.RecentIDs(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("report: clean recent: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := s.store.BatchDelete(ctx, ids)
	if err != nil {
		return deleted, fmt.Errorf("report: clean recent: %w", err)
	}
	s.logger.Info("report: recent rows deleted", "requested", n, "deleted", deleted)
	return deleted, nil
}
