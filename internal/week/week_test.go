package week

import (
	"context"
	"errors"
	"testing"
	"time"
)

var anchor = time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC)

func TestFromDate(t *testing.T) {
	cases := []struct {
		name  string
		today time.Time
		want  int
	}{
		{"before anchor", anchor.AddDate(0, 0, -3), 1},
		{"anchor day", anchor, 1},
		{"plus ten days", anchor.AddDate(0, 0, 10), 2},
		{"plus six days still week one", anchor.AddDate(0, 0, 6), 1},
		{"plus seven days", anchor.AddDate(0, 0, 7), 2},
		{"deep season", anchor.AddDate(0, 0, 9*7), 10},
		{"clamped at season end", anchor.AddDate(0, 0, 200), 18},
	}

	r := &Resolver{Anchor: anchor}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := r.FromDate(c.today); got != c.want {
				t.Errorf("FromDate(%v): got %d, want %d", c.today, got, c.want)
			}
		})
	}
}

func TestFromDate_NoAnchor(t *testing.T) {
	r := &Resolver{}
	if got := r.FromDate(time.Now()); got != 1 {
		t.Errorf("expected week 1 without an anchor, got %d", got)
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		markup string
		want   int
		ok     bool
	}{
		{`<span class="week">Week 7</span>`, 7, true},
		{`WEEK 18`, 18, true},
		{`week12`, 12, true},
		{`Week 0`, 0, false},
		{`Week 19`, 0, false},
		{`Week 99 ... Week 3`, 3, true}, // first in-range indicator wins
		{`no indicator here`, 0, false},
		{``, 0, false},
	}
	for _, c := range cases {
		got, ok := Parse(c.markup, 18)
		if ok != c.ok || got != c.want {
			t.Errorf("Parse(%q): got (%d, %v), want (%d, %v)", c.markup, got, ok, c.want, c.ok)
		}
	}
}

func TestResolve_SignalWins(t *testing.T) {
	r := &Resolver{
		Anchor: anchor,
		Signal: func(context.Context) (string, error) { return "Week 5", nil },
		Now:    func() time.Time { return anchor.AddDate(0, 0, 70) }, // date says 11
	}
	if got := r.Resolve(context.Background()); got != 5 {
		t.Errorf("expected signal week 5, got %d", got)
	}
}

func TestResolve_SignalErrorFallsBack(t *testing.T) {
	r := &Resolver{
		Anchor: anchor,
		Signal: func(context.Context) (string, error) { return "", errors.New("render stalled") },
		Now:    func() time.Time { return anchor.AddDate(0, 0, 10) },
	}
	if got := r.Resolve(context.Background()); got != 2 {
		t.Errorf("expected date fallback week 2, got %d", got)
	}
}

func TestResolve_UnparsableSignalFallsBack(t *testing.T) {
	r := &Resolver{
		Anchor: anchor,
		Signal: func(context.Context) (string, error) { return "Week 42", nil },
		Now:    func() time.Time { return anchor.AddDate(0, 0, 21) },
	}
	if got := r.Resolve(context.Background()); got != 4 {
		t.Errorf("expected date fallback week 4, got %d", got)
	}
}
