package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/rosterwatch/roster"
)

const selectColumns = `id, player_id, player_name, position, team, opponent,
	pct_rostered, pct_rostered_delta, pct_started, pct_started_delta,
	adds, drops, scraped_at, week, created_at`

// LatestByPlayer returns the most recent record per player id, ties broken
// by stamp then storage id descending. week > 0 scopes the scan to that
// week; week <= 0 scans full history. Records without a player id are
// skipped: they can never serve as a baseline.
//
// The scan is range-paginated so a full-history read never materialises the
// whole table in one query.
func (s *Store) LatestByPlayer(ctx context.Context, week int) (map[string]roster.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM roster_trends
		WHERE player_id != ''`
	var args []any
	if week > 0 {
		query += ` AND week = ?`
		args = append(args, week)
	}
	query += ` ORDER BY scraped_at DESC, id DESC LIMIT ? OFFSET ?`

	latest := make(map[string]roster.Record)
	for offset := 0; ; offset += readPage {
		pageArgs := append(append([]any{}, args...), readPage, offset)
		rows, err := s.db.QueryContext(ctx, query, pageArgs...)
		if err != nil {
			return nil, fmt.Errorf("store: latest by player: %w", err)
		}

		n := 0
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			n++
			if _, seen := latest[rec.PlayerID]; !seen {
				// Rows arrive newest first, so the first hit per
				// player is its most recent record.
				latest[rec.PlayerID] = rec
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: latest by player scan: %w", err)
		}
		rows.Close()

		if n < readPage {
			break
		}
	}

	return latest, nil
}

// LatestStamp returns the most recent run timestamp, ok=false on an empty
// table.
func (s *Store) LatestStamp(ctx context.Context) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT scraped_at FROM roster_trends ORDER BY scraped_at DESC LIMIT 1`,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: latest stamp: %w", err)
	}
	t, err := ParseStamp(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// RecordsAt returns every record of one run, range-paginated, ordered by
// storage id ascending (page order then row order within the run).
func (s *Store) RecordsAt(ctx context.Context, stamp time.Time) ([]roster.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM roster_trends
		WHERE scraped_at = ? ORDER BY id ASC LIMIT ? OFFSET ?`

	var recs []roster.Record
	for offset := 0; ; offset += readPage {
		rows, err := s.db.QueryContext(ctx, query, FormatStamp(stamp), readPage, offset)
		if err != nil {
			return nil, fmt.Errorf("store: records at stamp: %w", err)
		}

		n := 0
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			recs = append(recs, rec)
			n++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: records at stamp scan: %w", err)
		}
		rows.Close()

		if n < readPage {
			break
		}
	}
	return recs, nil
}

// TotalRecords counts all rows.
func (s *Store) TotalRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roster_trends`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: total records: %w", err)
	}
	return n, nil
}

// StampCount is a (run timestamp, record count) pair.
type StampCount struct {
	Stamp time.Time `json:"stamp"`
	Count int64     `json:"count"`
}

// RecentStamps returns the newest run timestamps with their record counts.
func (s *Store) RecentStamps(ctx context.Context, limit int) ([]StampCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scraped_at, COUNT(*) FROM roster_trends
		GROUP BY scraped_at ORDER BY scraped_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent stamps: %w", err)
	}
	defer rows.Close()

	var out []StampCount
	for rows.Next() {
		var raw string
		var sc StampCount
		if err := rows.Scan(&raw, &sc.Count); err != nil {
			return nil, fmt.Errorf("store: recent stamps scan: %w", err)
		}
		if sc.Stamp, err = ParseStamp(raw); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// RecentIDs returns the ids of the n most recently created rows, newest
// first. Feeds maintenance deletion.
func (s *Store) RecentIDs(ctx context.Context, n int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM roster_trends ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: recent ids scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WeekStat aggregates one week's contents.
type WeekStat struct {
	Week     int   `json:"week"`
	Records  int64 `json:"records"`
	Players  int64 `json:"unique_players"`
	Sessions int64 `json:"scraping_sessions"`
}

// WeekStats summarises the table per week, ascending.
func (s *Store) WeekStats(ctx context.Context) ([]WeekStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT week, COUNT(*),
			COUNT(DISTINCT CASE WHEN player_id != '' THEN player_id END),
			COUNT(DISTINCT scraped_at)
		FROM roster_trends GROUP BY week ORDER BY week ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: week stats: %w", err)
	}
	defer rows.Close()

	var out []WeekStat
	for rows.Next() {
		var ws WeekStat
		if err := rows.Scan(&ws.Week, &ws.Records, &ws.Players, &ws.Sessions); err != nil {
			return nil, fmt.Errorf("store: week stats scan: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// scanRecord reads one selectColumns row.
func scanRecord(rows *sql.Rows) (roster.Record, error) {
	var (
		rec                    roster.Record
		pr, prd, ps, psd       sql.NullFloat64
		adds, drops            sql.NullInt64
		scrapedRaw, createdRaw string
	)
	err := rows.Scan(&rec.ID, &rec.PlayerID, &rec.Name, &rec.Position, &rec.Team,
		&rec.Opponent, &pr, &prd, &ps, &psd, &adds, &drops,
		&scrapedRaw, &rec.Week, &createdRaw)
	if err != nil {
		return roster.Record{}, fmt.Errorf("store: scan record: %w", err)
	}

	if pr.Valid {
		rec.PctRostered = &pr.Float64
	}
	if prd.Valid {
		rec.PctRosteredDelta = &prd.Float64
	}
	if ps.Valid {
		rec.PctStarted = &ps.Float64
	}
	if psd.Valid {
		rec.PctStartedDelta = &psd.Float64
	}
	if adds.Valid {
		rec.Adds = &adds.Int64
	}
	if drops.Valid {
		rec.Drops = &drops.Int64
	}

	if rec.ScrapedAt, err = ParseStamp(scrapedRaw); err != nil {
		return roster.Record{}, err
	}
	// created_at is produced by SQLite's strftime, millisecond precision.
	if t, err := time.Parse("2006-01-02T15:04:05.999Z", createdRaw); err == nil {
		rec.CreatedAt = t
	}

	return rec, nil
}
