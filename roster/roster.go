// Package roster defines the domain types shared across the rosterwatch
// pipeline: the scraped player snapshot, its persisted record form, the
// per-player change decision, and the result of one ingestion run.
//
// Numeric snapshot fields are pointers. A nil pointer means the listing did
// not report the value; it is never collapsed to zero.
package roster

import "time"

// Snapshot is one scraped observation of one player within one run.
type Snapshot struct {
	// PlayerID is the stable identifier embedded in the player link.
	// It may be empty; such snapshots can never match a baseline and
	// are always treated as new.
	PlayerID string `json:"player_id"`

	// Name must be non-empty for the snapshot to be persistable.
	Name string `json:"player_name"`

	Position string `json:"position"`
	Team     string `json:"team"`
	Opponent string `json:"opponent"`

	PctRostered      *float64 `json:"percent_rostered"`
	PctRosteredDelta *float64 `json:"percent_rostered_change"`
	PctStarted       *float64 `json:"percent_started"`
	PctStartedDelta  *float64 `json:"percent_started_change"`

	Adds  *int64 `json:"adds"`
	Drops *int64 `json:"drops"`
}

// Record is a Snapshot as persisted: stamped with the run instant and week,
// plus the storage-assigned identity and creation time.
type Record struct {
	Snapshot

	ID        int64     `json:"id"`
	ScrapedAt time.Time `json:"scraped_at"`
	Week      int       `json:"week"`
	CreatedAt time.Time `json:"created_at"`
}

// Reason classifies a change decision.
type Reason string

const (
	ReasonNew       Reason = "new"
	ReasonChanged   Reason = "changed"
	ReasonUnchanged Reason = "unchanged"
)

// Decision is the per-player output of change detection. Computed once per
// run, consumed immediately by the writer, never persisted.
type Decision struct {
	Write         bool     `json:"write"`
	Reason        Reason   `json:"reason"`
	ChangedFields []string `json:"changed_fields,omitempty"`
}

// Terminal is the reason a page traversal or run ended.
type Terminal string

const (
	// TerminalCompleted: no further pages (control absent or disabled).
	TerminalCompleted Terminal = "completed"

	// TerminalCompletedTimeout: the next-page wait timed out. Only emitted
	// when the walker is configured to distinguish it from "completed";
	// still a successful termination.
	TerminalCompletedTimeout Terminal = "completed_timeout"

	// TerminalBounded: the page cap was reached. Partial data is usable,
	// so this is a successful termination, not an error.
	TerminalBounded Terminal = "bounded"
)

// FatalTerminal marks a run that failed at the named stage.
func FatalTerminal(stage string) Terminal { return Terminal("fatal:" + stage) }

// RunResult summarises one ingestion run.
type RunResult struct {
	RunID     string    `json:"run_id"`
	ScrapedAt time.Time `json:"scraped_at"`
	Week      int       `json:"week"`

	Scraped   int `json:"entities_scraped"`
	Written   int `json:"entities_written"`
	New       int `json:"new"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`

	Terminal Terminal `json:"terminal_reason"`
}

// Float returns a pointer to v. Convenience for literals in callers and tests.
func Float(v float64) *float64 { return &v }

// Count returns a pointer to v.
func Count(v int64) *int64 { return &v }
