// Package week resolves the current comparison week for a run. The week is
// resolved exactly once per run and stamped onto every record written by it;
// re-resolving mid-run would break run atomicity.
//
// Resolution is a fallback chain, first success wins:
//
//  1. a live page signal (markup scraped from the listing's week indicator),
//     accepted only when it parses to an integer within [1, Weeks];
//  2. wall-clock date relative to the season anchor.
package week

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"time"
)

var weekPattern = regexp.MustCompile(`(?i)week\s*(\d+)`)

// SignalFunc returns markup that may contain a week indicator. Implemented
// by the browser tab; a nil SignalFunc skips straight to date computation.
type SignalFunc func(ctx context.Context) (string, error)

// Resolver computes the current week.
type Resolver struct {
	// Anchor is the first day of week 1. Zero time means "date unknown";
	// resolution then degrades to week 1 when no signal is available.
	Anchor time.Time

	// Weeks is the number of weeks in the season. Default 18.
	Weeks int

	// Signal is the optional live page source.
	Signal SignalFunc

	// Now overrides the clock in tests.
	Now func() time.Time

	Logger *slog.Logger
}

func (r *Resolver) defaults() {
	if r.Weeks <= 0 {
		r.Weeks = 18
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
}

// Resolve returns the current week in [1, Weeks]. It never fails: signal
// errors and unparsable indicators fall through to the date computation.
func (r *Resolver) Resolve(ctx context.Context) int {
	r.defaults()

	if r.Signal != nil {
		markup, err := r.Signal(ctx)
		if err != nil {
			r.Logger.Warn("week: live signal failed, falling back to date", "error", err)
		} else if w, ok := Parse(markup, r.Weeks); ok {
			r.Logger.Info("week: resolved from live signal", "week", w)
			return w
		} else {
			r.Logger.Debug("week: no usable indicator in signal markup")
		}
	}

	w := r.FromDate(r.Now())
	r.Logger.Info("week: resolved from date", "week", w, "anchor", r.Anchor)
	return w
}

// Parse scans markup for a week indicator. ok is false when no indicator
// parses to an integer within [1, limit].
func Parse(markup string, limit int) (int, bool) {
	for _, m := range weekPattern.FindAllStringSubmatch(markup, -1) {
		w, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if w >= 1 && w <= limit {
			return w, true
		}
	}
	return 0, false
}

// FromDate computes the week from a date: days since the anchor divided by
// seven, plus one, clamped to [1, Weeks]. Before the anchor it is week 1.
func (r *Resolver) FromDate(today time.Time) int {
	r.defaults()

	if r.Anchor.IsZero() {
		return 1
	}
	days := int(today.Sub(r.Anchor).Hours() / 24)
	if days < 0 {
		return 1
	}
	w := days/7 + 1
	if w > r.Weeks {
		return r.Weeks
	}
	return w
}
