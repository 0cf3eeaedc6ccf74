// Package diff implements baseline selection and change detection: given the
// current week, it rebuilds the per-player baseline map from storage and
// decides, per fresh snapshot, whether a write is warranted.
package diff

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/rosterwatch/roster"
)

// BaselineSource is the slice of the storage backend the selector needs.
type BaselineSource interface {
	// LatestByPlayer returns the most recent record per player id,
	// scoped to week when week > 0, unscoped otherwise.
	LatestByPlayer(ctx context.Context, week int) (map[string]roster.Record, error)
}

// SelectBaseline builds the comparison map for a run at the given week.
//
// week > 1 compares against the prior week; an empty prior week (fresh
// store, or the week just rolled over) degrades to unscoped full history.
// week 1 has no prior week and goes straight to full history. An empty
// result is a legitimate first-run state, not an error.
func SelectBaseline(ctx context.Context, src BaselineSource, week int, logger *slog.Logger) (map[string]roster.Record, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if week > 1 {
		prior := week - 1
		baseline, err := src.LatestByPlayer(ctx, prior)
		if err != nil {
			return nil, fmt.Errorf("diff: baseline week %d: %w", prior, err)
		}
		if len(baseline) > 0 {
			logger.Info("diff: baseline selected", "scope", "week", "week", prior, "players", len(baseline))
			return baseline, nil
		}
		logger.Info("diff: prior week empty, falling back to full history", "week", prior)
	}

	baseline, err := src.LatestByPlayer(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("diff: baseline full history: %w", err)
	}
	logger.Info("diff: baseline selected", "scope", "history", "players", len(baseline))
	return baseline, nil
}

// compareFields is the fixed fingerprint. Adds and drops are deliberately
// excluded: they fluctuate independently of ownership state, and comparing
// them makes nearly every snapshot look changed on every run.
var compareFields = []struct {
	name string
	get  func(*roster.Snapshot) *float64
}{
	{"pct_rostered", func(s *roster.Snapshot) *float64 { return s.PctRostered }},
	{"pct_rostered_delta", func(s *roster.Snapshot) *float64 { return s.PctRosteredDelta }},
	{"pct_started", func(s *roster.Snapshot) *float64 { return s.PctStarted }},
	{"pct_started_delta", func(s *roster.Snapshot) *float64 { return s.PctStartedDelta }},
}

// Decide compares a fresh snapshot against the baseline map. Pure: for a
// fixed baseline and snapshot the decision is always the same.
//
// A snapshot without a player id, or whose id is absent from the baseline,
// is new and written. Otherwise each fingerprint field is compared with
// strict inequality, nil being a distinct comparable value (nil != 0).
func Decide(baseline map[string]roster.Record, snap roster.Snapshot) roster.Decision {
	if snap.PlayerID == "" {
		return roster.Decision{Write: true, Reason: roster.ReasonNew}
	}
	prev, ok := baseline[snap.PlayerID]
	if !ok {
		return roster.Decision{Write: true, Reason: roster.ReasonNew}
	}

	var changed []string
	for _, f := range compareFields {
		if !floatEqual(f.get(&prev.Snapshot), f.get(&snap)) {
			changed = append(changed, f.name)
		}
	}

	if len(changed) > 0 {
		return roster.Decision{Write: true, Reason: roster.ReasonChanged, ChangedFields: changed}
	}
	return roster.Decision{Write: false, Reason: roster.ReasonUnchanged}
}

// floatEqual treats nil as its own value: nil equals only nil.
func floatEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
