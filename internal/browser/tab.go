package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/rosterwatch/internal/pagewalk"
)

// nextSelectors is the ladder tried when locating the next-page control.
// The listing's pagination markup has changed shape before; the ladder keeps
// one markup change from breaking traversal.
var nextSelectors = []string{
	"li.next a",
	"a[rel='next']",
	".pagination a.next",
	".paginationNav a.next",
}

const pollInterval = 500 * time.Millisecond

// Options configures a listing tab.
type Options struct {
	// URL of the paginated listing.
	URL string

	// ContentSelector is the container whose markup holds the data table.
	ContentSelector string

	// ReadyTimeout bounds the initial content wait in Ready.
	ReadyTimeout time.Duration

	// SettleDelay is the pause after load and after each activation,
	// covering the listing script's render latency.
	SettleDelay time.Duration

	// NextTimeout bounds the next-page control search and the
	// post-activation change wait.
	NextTimeout time.Duration

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.ContentSelector == "" {
		o.ContentSelector = "#bd"
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 30 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 5 * time.Second
	}
	if o.NextTimeout <= 0 {
		o.NextTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Tab is one rendered listing page. It implements the ingestion pipeline's
// Source: readiness, markup extraction, and pagination.
type Tab struct {
	page *rod.Page
	opts Options
}

// OpenTab creates a stealth tab against the manager's current browser. The
// tab does not navigate until Ready is called.
func OpenTab(mgr *Manager, opts Options) (*Tab, error) {
	opts.defaults()

	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth == LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			opts.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	return &Tab{page: page, opts: opts}, nil
}

// Ready navigates to the listing and blocks until the content container
// renders, then lets the page settle. A timeout here means the listing never
// produced its container and the run cannot proceed.
func (t *Tab) Ready(ctx context.Context) error {
	log := t.opts.Logger

	navCtx, cancel := context.WithTimeout(ctx, t.opts.ReadyTimeout)
	defer cancel()

	if err := t.page.Context(navCtx).Navigate(t.opts.URL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", t.opts.URL, err)
	}
	if err := t.page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load timeout", "url", t.opts.URL, "error", err)
	}

	deadline := time.Now().Add(t.opts.ReadyTimeout)
	for {
		res, err := t.page.Context(ctx).Eval(`(sel) => !!document.querySelector(sel)`, t.opts.ContentSelector)
		if err == nil && res.Value.Bool() {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("browser: content %q not rendered within %s", t.opts.ContentSelector, t.opts.ReadyTimeout)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}

	log.Info("browser: listing ready", "url", t.opts.URL)
	return sleep(ctx, t.opts.SettleDelay)
}

// ContentMarkup returns the outer HTML of the content container.
func (t *Tab) ContentMarkup(ctx context.Context) (string, error) {
	res, err := t.page.Context(ctx).Eval(`(sel) => {
		const el = document.querySelector(sel);
		return el ? el.outerHTML : '';
	}`, t.opts.ContentSelector)
	if err != nil {
		return "", fmt.Errorf("browser: content markup: %w", err)
	}
	markup := res.Value.Str()
	if markup == "" {
		return "", fmt.Errorf("browser: content %q not found", t.opts.ContentSelector)
	}
	return markup, nil
}

// WeekSignal returns markup that may carry the listing's week indicator. The
// indicator lives inside the content container, so the container markup is
// the signal.
func (t *Tab) WeekSignal(ctx context.Context) (string, error) {
	return t.ContentMarkup(ctx)
}

// NextControl locates the next-page control via the selector ladder. The
// search polls until NextTimeout: a pagination block with no next anchor is
// a definitive last page (ErrNoNextControl), a page that never produces one
// is reported as ErrNextTimeout.
func (t *Tab) NextControl(ctx context.Context) (*pagewalk.Control, error) {
	deadline := time.Now().Add(t.opts.NextTimeout)
	for {
		res, err := t.page.Context(ctx).Eval(`(sels) => {
			for (const sel of sels) {
				const a = document.querySelector(sel);
				if (a) {
					const li = a.closest('li');
					const cls = (li ? li.className : '') + ' ' + a.className;
					return {
						state: 'found',
						selector: sel,
						href: a.getAttribute('href') || '',
						disabled: /disabled|last/.test(cls),
					};
				}
			}
			const block = document.querySelector('.pagination, ul.pagination, .paginationNav');
			return {state: block ? 'absent' : 'pending'};
		}`, nextSelectors)
		if err != nil {
			return nil, fmt.Errorf("browser: next-page search: %w", err)
		}

		switch res.Value.Get("state").Str() {
		case "found":
			return &pagewalk.Control{
				Href:     res.Value.Get("href").Str(),
				Disabled: res.Value.Get("disabled").Bool(),
				Ref:      res.Value.Get("selector").Str(),
			}, nil
		case "absent":
			return nil, pagewalk.ErrNoNextControl
		}

		if time.Now().After(deadline) {
			return nil, pagewalk.ErrNextTimeout
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

// Activate scrolls the control into view, clicks it, and waits for the
// content container to change, then lets the new page settle.
func (t *Tab) Activate(ctx context.Context, ctrl *pagewalk.Control) error {
	sel, _ := ctrl.Ref.(string)
	if sel == "" {
		sel = nextSelectors[0]
	}

	before, err := t.ContentMarkup(ctx)
	if err != nil {
		return err
	}

	res, err := t.page.Context(ctx).Eval(`(sel) => {
		const a = document.querySelector(sel);
		if (!a) return false;
		a.scrollIntoView({block: 'center'});
		a.click();
		return true;
	}`, sel)
	if err != nil {
		return fmt.Errorf("browser: activate next-page: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("browser: next-page control %q vanished before click", sel)
	}

	deadline := time.Now().Add(t.opts.NextTimeout)
	for {
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
		after, err := t.ContentMarkup(ctx)
		if err == nil && after != before {
			break
		}
		if time.Now().After(deadline) {
			return pagewalk.ErrPageUnchanged
		}
	}

	return sleep(ctx, t.opts.SettleDelay)
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.page != nil {
		return t.page.Close()
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
