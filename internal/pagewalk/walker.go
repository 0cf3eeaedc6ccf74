// Package pagewalk drives the paginated traversal of the listing: fetch the
// current page's markup, parse rows into snapshots, locate and activate the
// next-page control, repeat until the sequence ends or a safety bound hits.
//
// The walker owns no storage and no browser internals; it talks to the
// renderer through the Renderer interface and returns one materialized
// snapshot slice owned by the calling run. Restart means re-invoking Walk
// from page one — there is no mid-sequence resume.
package pagewalk

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/rosterwatch/roster"
)

// Sentinel outcomes of the next-page search. The renderer reports them; the
// walker maps them to terminal reasons.
var (
	// ErrNoNextControl: no next-page control exists on the current page.
	ErrNoNextControl = errors.New("pagewalk: no next-page control")

	// ErrNextTimeout: the search for a next-page control timed out. By
	// default this is folded into normal completion; see
	// Config.DistinguishTimeout.
	ErrNextTimeout = errors.New("pagewalk: next-page wait timed out")

	// ErrPageUnchanged: the control was activated but the page content
	// did not change within the bounded wait.
	ErrPageUnchanged = errors.New("pagewalk: page unchanged after activation")
)

// Control is a located next-page control.
type Control struct {
	// Href of the underlying link, for logs.
	Href string

	// Disabled is set when the control's container carries a disabled
	// marker: the listing is on its last page.
	Disabled bool

	// Ref is a renderer-private handle passed back to Activate.
	Ref any
}

// Renderer is the navigation boundary the walker drives. Implemented by
// internal/browser; faked in tests.
type Renderer interface {
	// ContentMarkup returns the current markup of the listing container.
	ContentMarkup(ctx context.Context) (string, error)

	// NextControl locates the next-page control. It returns
	// ErrNoNextControl or ErrNextTimeout when there is nothing to
	// activate.
	NextControl(ctx context.Context) (*Control, error)

	// Activate clicks the control and waits for the page to change,
	// returning ErrPageUnchanged when it does not.
	Activate(ctx context.Context, ctrl *Control) error
}

// Parser turns one page's markup into snapshots. Implemented by
// internal/rowparse.
type Parser interface {
	Snapshots(markup string) ([]roster.Snapshot, error)
}

// Config tunes the walker.
type Config struct {
	// MaxPages caps page-fetch attempts. Reaching it is a successful
	// "bounded" termination: partial data is still usable. Default 50.
	MaxPages int

	// EmptyPageLimit ends the walk after this many consecutive zero-row
	// pages, on the assumption that the listing structure broke rather
	// than every remaining page being empty. 0 disables.
	EmptyPageLimit int

	// DistinguishTimeout reports a next-page search timeout as
	// "completed_timeout" instead of "completed", so a stalled render is
	// not mistaken for a genuine last page during diagnosis.
	DistinguishTimeout bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Walker traverses the listing.
type Walker struct {
	renderer Renderer
	parser   Parser
	cfg      Config
}

// New creates a Walker.
func New(renderer Renderer, parser Parser, cfg Config) *Walker {
	cfg.defaults()
	return &Walker{renderer: renderer, parser: parser, cfg: cfg}
}

// Walk traverses pages from the current position (callers navigate to page
// one first) and returns the accumulated snapshots in page order then row
// order, plus the terminal reason.
//
// A zero-row page is not an error: render delays are expected, so it is
// logged and traversal continues. An error fetching or parsing the first
// page is fatal — nothing has been collected; afterwards it degrades to a
// zero-row page.
func (w *Walker) Walk(ctx context.Context) ([]roster.Snapshot, roster.Terminal, error) {
	log := w.cfg.Logger

	var snaps []roster.Snapshot
	emptyStreak := 0

	for page := 1; ; page++ {
		pageSnaps, err := w.readPage(ctx, page)
		if err != nil {
			return nil, roster.FatalTerminal("content"), err
		}

		if len(pageSnaps) == 0 {
			emptyStreak++
			log.Warn("pagewalk: page yielded no rows", "page", page, "streak", emptyStreak)
			if w.cfg.EmptyPageLimit > 0 && emptyStreak >= w.cfg.EmptyPageLimit {
				log.Warn("pagewalk: consecutive empty pages, structural failure suspected",
					"pages", emptyStreak)
				return snaps, roster.TerminalCompleted, nil
			}
		} else {
			emptyStreak = 0
			snaps = append(snaps, pageSnaps...)
			log.Info("pagewalk: page extracted", "page", page, "rows", len(pageSnaps), "total", len(snaps))
		}

		if page >= w.cfg.MaxPages {
			log.Warn("pagewalk: page cap reached", "max_pages", w.cfg.MaxPages)
			return snaps, roster.TerminalBounded, nil
		}

		term, done := w.advance(ctx, page)
		if done {
			return snaps, term, nil
		}
	}
}

// readPage fetches and parses the current page. Errors are fatal only on
// page one; later pages degrade to an empty row set.
func (w *Walker) readPage(ctx context.Context, page int) ([]roster.Snapshot, error) {
	markup, err := w.renderer.ContentMarkup(ctx)
	if err != nil {
		if page == 1 {
			return nil, err
		}
		w.cfg.Logger.Warn("pagewalk: markup fetch failed mid-walk", "page", page, "error", err)
		return nil, nil
	}

	pageSnaps, err := w.parser.Snapshots(markup)
	if err != nil {
		if page == 1 {
			return nil, err
		}
		w.cfg.Logger.Warn("pagewalk: parse failed mid-walk", "page", page, "error", err)
		return nil, nil
	}
	return pageSnaps, nil
}

// advance locates and activates the next-page control. done=true carries
// the terminal reason for the walk.
func (w *Walker) advance(ctx context.Context, page int) (roster.Terminal, bool) {
	log := w.cfg.Logger

	ctrl, err := w.renderer.NextControl(ctx)
	switch {
	case errors.Is(err, ErrNoNextControl):
		log.Info("pagewalk: no next-page control, traversal complete", "pages", page)
		return roster.TerminalCompleted, true

	case errors.Is(err, ErrNextTimeout):
		if w.cfg.DistinguishTimeout {
			log.Warn("pagewalk: next-page wait timed out", "page", page)
			return roster.TerminalCompletedTimeout, true
		}
		log.Info("pagewalk: next-page wait timed out, treating as last page", "page", page)
		return roster.TerminalCompleted, true

	case err != nil:
		// Navigation failures mid-walk end traversal; the collected
		// pages are still usable.
		log.Warn("pagewalk: next-page search failed", "page", page, "error", err)
		return roster.TerminalCompleted, true
	}

	if ctrl.Disabled {
		log.Info("pagewalk: next-page control disabled, traversal complete", "pages", page)
		return roster.TerminalCompleted, true
	}

	if err := w.renderer.Activate(ctx, ctrl); err != nil {
		if errors.Is(err, ErrPageUnchanged) {
			log.Warn("pagewalk: activation did not change the page", "page", page)
		} else {
			log.Warn("pagewalk: activation failed", "page", page, "error", err)
		}
		return roster.TerminalCompleted, true
	}

	log.Debug("pagewalk: advanced", "from_page", page, "href", ctrl.Href)
	return "", false
}
