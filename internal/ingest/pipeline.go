// Package ingest orchestrates one run: wait for the source to be ready, walk
// the paginated listing, resolve the week, diff against the baseline, and
// persist what changed. One run produces exactly one timestamp and one week;
// every record written by the run carries both.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/rosterwatch/internal/diff"
	"github.com/hazyhaar/rosterwatch/internal/pagewalk"
	"github.com/hazyhaar/rosterwatch/internal/week"
	"github.com/hazyhaar/rosterwatch/roster"
)

// Source is the rendered listing the pipeline harvests. internal/browser
// implements it on a live tab; tests script it.
type Source interface {
	pagewalk.Renderer

	// Ready navigates to the listing and blocks until the content
	// container renders. Failure here is fatal for the run.
	Ready(ctx context.Context) error

	// WeekSignal returns markup that may carry the current week indicator.
	WeekSignal(ctx context.Context) (string, error)
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	diff.BaselineSource
	BatchWriter
}

// Config tunes a pipeline.
type Config struct {
	Walk pagewalk.Config

	// BatchSize bounds one write operation. Default 100.
	BatchSize int

	// Anchor is the first day of week 1; Weeks the season length.
	Anchor time.Time
	Weeks  int

	Logger *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Pipeline runs the scrape-diff-write cycle.
type Pipeline struct {
	src    Source
	parser pagewalk.Parser
	store  Store
	cfg    Config
}

// New creates a Pipeline. A nil store degrades runs to scrape-only mode:
// snapshots are collected and counted but nothing is compared or written.
func New(src Source, parser pagewalk.Parser, st Store, cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Pipeline{src: src, parser: parser, store: st, cfg: cfg}
}

// Run executes one ingestion run. The returned RunResult is populated as far
// as the run got, even on error; Terminal carries either a successful
// traversal reason or "fatal:<stage>".
func (p *Pipeline) Run(ctx context.Context) (roster.RunResult, error) {
	res := roster.RunResult{RunID: newRunID()}
	log := p.cfg.Logger.With("run_id", res.RunID)
	log.Info("ingest: run starting")

	if err := p.src.Ready(ctx); err != nil {
		res.Terminal = roster.FatalTerminal("ready")
		return res, fmt.Errorf("ingest: source ready: %w", err)
	}

	walkCfg := p.cfg.Walk
	if walkCfg.Logger == nil {
		walkCfg.Logger = log
	}
	snaps, term, err := pagewalk.New(p.src, p.parser, walkCfg).Walk(ctx)
	res.Terminal = term
	if err != nil {
		return res, fmt.Errorf("ingest: walk: %w", err)
	}
	res.Scraped = len(snaps)

	// One timestamp and one week for the whole run, resolved after the
	// walk while the page is still live for the week signal.
	res.ScrapedAt = p.cfg.Now().UTC()
	resolver := &week.Resolver{
		Anchor: p.cfg.Anchor,
		Weeks:  p.cfg.Weeks,
		Signal: p.src.WeekSignal,
		Now:    p.cfg.Now,
		Logger: log,
	}
	res.Week = resolver.Resolve(ctx)

	if p.store == nil {
		log.Info("ingest: scrape-only run complete",
			"scraped", res.Scraped, "week", res.Week, "terminal", res.Terminal)
		return res, nil
	}

	baseline, err := diff.SelectBaseline(ctx, p.store, res.Week, log)
	if err != nil {
		res.Terminal = roster.FatalTerminal("baseline")
		return res, fmt.Errorf("ingest: %w", err)
	}

	toWrite := make([]roster.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		d := diff.Decide(baseline, s)
		switch d.Reason {
		case roster.ReasonNew:
			res.New++
		case roster.ReasonChanged:
			res.Changed++
			log.Debug("ingest: player changed",
				"player_id", s.PlayerID, "name", s.Name, "fields", d.ChangedFields)
		case roster.ReasonUnchanged:
			res.Unchanged++
		}
		if d.Write {
			toWrite = append(toWrite, s)
		}
	}

	p.advisory(log, &res, len(baseline))

	writer := &Writer{
		Strategy:  &WriteStrategy{Target: p.store, Logger: log},
		BatchSize: p.cfg.BatchSize,
		Logger:    log,
	}
	written, err := writer.Write(ctx, toWrite, res.ScrapedAt, res.Week)
	res.Written = written
	if err != nil {
		res.Terminal = roster.FatalTerminal("write")
		return res, err
	}

	log.Info("ingest: run complete",
		"scraped", res.Scraped, "written", res.Written,
		"new", res.New, "changed", res.Changed, "unchanged", res.Unchanged,
		"week", res.Week, "terminal", res.Terminal)
	return res, nil
}

// advisory flags a run where nearly everything would be written. Against a
// populated baseline that usually means the source drifted and the
// fingerprint fields moved, not that every player actually changed. Advisory
// only: the write proceeds either way.
func (p *Pipeline) advisory(log *slog.Logger, res *roster.RunResult, baselineSize int) {
	writing := res.New + res.Changed
	if res.Scraped == 0 || writing*100 < res.Scraped*90 {
		return
	}
	if baselineSize*10 < res.Scraped*3 {
		// A baseline under 30% of the scrape is a young store; a mass
		// write is the expected shape.
		log.Info("ingest: high write ratio against a small baseline",
			"writing", writing, "scraped", res.Scraped, "baseline", baselineSize)
		return
	}
	log.Warn("ingest: over 90% of snapshots flagged for write, possible source format drift",
		"writing", writing, "scraped", res.Scraped, "baseline", baselineSize)
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
