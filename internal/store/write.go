package store

import (
	"context"
	"fmt"

	"github.com/hazyhaar/rosterwatch/roster"
)

// WriteMode selects the insert statement used by BatchWrite.
type WriteMode string

const (
	// ModeInsert is a plain append.
	ModeInsert WriteMode = "insert"

	// ModeMerge replaces an existing row for the same (player, run) pair,
	// via the partial unique index on (player_id, scraped_at).
	ModeMerge WriteMode = "merge"
)

const insertColumns = `(player_id, player_name, position, team, opponent,
	pct_rostered, pct_rostered_delta, pct_started, pct_started_delta,
	adds, drops, scraped_at, week)`

// BatchWrite persists records in one transaction and returns the number of
// rows the backend acknowledged. The caller is responsible for splitting
// large runs into sub-batches and for stamping every record beforehand.
func (s *Store) BatchWrite(ctx context.Context, recs []roster.Record, mode WriteMode) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	verb := "INSERT"
	if mode == ModeMerge {
		verb = "INSERT OR REPLACE"
	}
	query := verb + ` INTO roster_trends ` + insertColumns +
		` VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("store: prepare %s: %w", mode, err)
	}
	defer stmt.Close()

	written := 0
	for _, r := range recs {
		res, err := stmt.ExecContext(ctx,
			r.PlayerID, r.Name, r.Position, r.Team, r.Opponent,
			nullFloat(r.PctRostered), nullFloat(r.PctRosteredDelta),
			nullFloat(r.PctStarted), nullFloat(r.PctStartedDelta),
			nullInt(r.Adds), nullInt(r.Drops),
			FormatStamp(r.ScrapedAt), r.Week,
		)
		if err != nil {
			return 0, fmt.Errorf("store: %s %q: %w", mode, r.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit write: %w", err)
	}

	s.logger.Debug("store: batch written", "mode", mode, "records", len(recs), "acked", written)
	return written, nil
}

// BatchDelete removes rows by id in sub-batches of 100 and returns the number
// deleted. Maintenance only; the pipeline never deletes.
func (s *Store) BatchDelete(ctx context.Context, ids []int64) (int, error) {
	const batch = 100

	deleted := 0
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		chunk := ids[start:end]

		query := "DELETE FROM roster_trends WHERE id IN (" + placeholders(len(chunk)) + ")"
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return deleted, fmt.Errorf("store: delete batch at %d: %w", start, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += int(n)
		}
	}

	s.logger.Info("store: batch deleted", "requested", len(ids), "deleted", deleted)
	return deleted, nil
}

func placeholders(n int) string {
	buf := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}
	return string(buf)
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
