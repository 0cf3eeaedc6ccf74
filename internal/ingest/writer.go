package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/rosterwatch/internal/store"
	"github.com/hazyhaar/rosterwatch/roster"
)

// BatchWriter is the slice of the storage backend the writer needs.
type BatchWriter interface {
	BatchWrite(ctx context.Context, recs []roster.Record, mode store.WriteMode) (int, error)
}

// WriteStrategy is the retry policy for one sub-batch, made explicit so it
// is testable apart from batching: attempt a merge write, on failure retry
// once as a plain insert, on failure propagate.
type WriteStrategy struct {
	Target BatchWriter
	Logger *slog.Logger
}

// WriteBatch applies the strategy to one sub-batch and returns the number of
// acknowledged rows.
func (ws *WriteStrategy) WriteBatch(ctx context.Context, recs []roster.Record) (int, error) {
	log := ws.Logger
	if log == nil {
		log = slog.Default()
	}

	n, err := ws.Target.BatchWrite(ctx, recs, store.ModeMerge)
	if err == nil {
		return n, nil
	}
	log.Warn("ingest: merge write failed, retrying as insert", "records", len(recs), "error", err)

	n, err = ws.Target.BatchWrite(ctx, recs, store.ModeInsert)
	if err != nil {
		return 0, fmt.Errorf("ingest: insert fallback: %w", err)
	}
	return n, nil
}

// Writer persists a run's snapshots in fixed-size sub-batches, stamping
// every record with the single run timestamp and week computed at run start.
// That shared stamp is what lets a later baseline read treat "all records at
// stamp X" as one atomic prior run.
type Writer struct {
	Strategy *WriteStrategy

	// BatchSize bounds one write operation. Default 100.
	BatchSize int

	Logger *slog.Logger
}

// Write stamps and persists snaps. On a sub-batch failure the already
// written sub-batches stay persisted: the guarantee is at-least-once, and
// the error reports how far the write got.
//
// A sub-batch that succeeds but acknowledges zero rows is a tentative
// success: it is logged and counted, and consistency is re-validated by the
// next run's baseline read instead of blocking ingestion.
func (w *Writer) Write(ctx context.Context, snaps []roster.Snapshot, stamp time.Time, weekNum int) (int, error) {
	log := w.Logger
	if log == nil {
		log = slog.Default()
	}
	batchSize := w.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	recs := make([]roster.Record, 0, len(snaps))
	for _, s := range snaps {
		if s.Name == "" {
			// Not persistable; the assembler should have rejected it.
			log.Warn("ingest: dropping snapshot without a name", "player_id", s.PlayerID)
			continue
		}
		recs = append(recs, roster.Record{Snapshot: s, ScrapedAt: stamp, Week: weekNum})
	}

	written := 0
	for start := 0; start < len(recs); start += batchSize {
		end := min(start+batchSize, len(recs))
		chunk := recs[start:end]

		n, err := w.Strategy.WriteBatch(ctx, chunk)
		if err != nil {
			return written, fmt.Errorf("ingest: sub-batch at %d: %w", start, err)
		}
		if n == 0 {
			log.Warn("ingest: sub-batch acknowledged zero rows, assuming tentative success",
				"offset", start, "records", len(chunk))
			n = len(chunk)
		}
		written += n
		log.Info("ingest: sub-batch written", "offset", start, "records", len(chunk), "acked", n)
	}

	return written, nil
}
