package diff

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/rosterwatch/roster"
)

func snap(id string, pctRostered *float64) roster.Snapshot {
	return roster.Snapshot{
		PlayerID:    id,
		Name:        "Player " + id,
		PctRostered: pctRostered,
	}
}

func asBaseline(snaps ...roster.Snapshot) map[string]roster.Record {
	m := make(map[string]roster.Record, len(snaps))
	for _, s := range snaps {
		m[s.PlayerID] = roster.Record{Snapshot: s}
	}
	return m
}

func TestDecide_UnchangedIsIdempotent(t *testing.T) {
	s := roster.Snapshot{
		PlayerID:         "1",
		Name:             "X",
		PctRostered:      roster.Float(95.5),
		PctRosteredDelta: roster.Float(-0.2),
		PctStarted:       roster.Float(80),
		PctStartedDelta:  nil,
		Adds:             roster.Count(12),
		Drops:            roster.Count(3),
	}

	d := Decide(asBaseline(s), s)
	if d.Write || d.Reason != roster.ReasonUnchanged {
		t.Fatalf("snapshot vs itself: %+v", d)
	}
	if len(d.ChangedFields) != 0 {
		t.Fatalf("expected no changed fields, got %v", d.ChangedFields)
	}
}

func TestDecide_MissingFromBaselineIsNew(t *testing.T) {
	d := Decide(asBaseline(snap("1", roster.Float(50))), snap("2", roster.Float(50)))
	if !d.Write || d.Reason != roster.ReasonNew {
		t.Fatalf("absent id: %+v", d)
	}
}

func TestDecide_NoPlayerIDIsAlwaysNew(t *testing.T) {
	baseline := asBaseline(snap("1", roster.Float(50)))
	d := Decide(baseline, snap("", roster.Float(50)))
	if !d.Write || d.Reason != roster.ReasonNew {
		t.Fatalf("id-less snapshot: %+v", d)
	}
}

func TestDecide_SingleFieldChange(t *testing.T) {
	baseline := asBaseline(snap("x", roster.Float(95.5)))
	d := Decide(baseline, snap("x", roster.Float(95.6)))
	if !d.Write || d.Reason != roster.ReasonChanged {
		t.Fatalf("expected changed: %+v", d)
	}
	if len(d.ChangedFields) != 1 || d.ChangedFields[0] != "pct_rostered" {
		t.Fatalf("changed fields: %v", d.ChangedFields)
	}
}

func TestDecide_ActivityFieldsExcluded(t *testing.T) {
	prev := roster.Snapshot{
		PlayerID:    "y",
		Name:        "Y",
		PctRostered: roster.Float(90),
		PctStarted:  roster.Float(80),
		Adds:        roster.Count(5),
		Drops:       roster.Count(1),
	}
	cur := prev
	cur.Adds = roster.Count(40)
	cur.Drops = nil

	d := Decide(asBaseline(prev), cur)
	if d.Write || d.Reason != roster.ReasonUnchanged {
		t.Fatalf("adds/drops only: %+v", d)
	}
}

func TestDecide_NilVsZeroIsAChange(t *testing.T) {
	baseline := asBaseline(snap("z", roster.Float(0)))
	d := Decide(baseline, snap("z", nil))
	if !d.Write || d.Reason != roster.ReasonChanged {
		t.Fatalf("nil vs 0 must differ: %+v", d)
	}

	// And the other direction.
	baseline = asBaseline(snap("z", nil))
	d = Decide(baseline, snap("z", roster.Float(0)))
	if !d.Write || d.Reason != roster.ReasonChanged {
		t.Fatalf("0 vs nil must differ: %+v", d)
	}
}

func TestDecide_NilVsNilIsEqual(t *testing.T) {
	d := Decide(asBaseline(snap("n", nil)), snap("n", nil))
	if d.Write {
		t.Fatalf("nil vs nil: %+v", d)
	}
}

func TestDecide_MultipleChangedFields(t *testing.T) {
	prev := roster.Snapshot{
		PlayerID:         "m",
		Name:             "M",
		PctRostered:      roster.Float(50),
		PctRosteredDelta: roster.Float(1),
		PctStarted:       roster.Float(40),
	}
	cur := prev
	cur.PctRostered = roster.Float(51)
	cur.PctStarted = roster.Float(42)

	d := Decide(asBaseline(prev), cur)
	if len(d.ChangedFields) != 2 {
		t.Fatalf("changed fields: %v", d.ChangedFields)
	}
}

type fakeSource struct {
	byWeek map[int]map[string]roster.Record
	all    map[string]roster.Record
	err    error
	calls  []int
}

func (f *fakeSource) LatestByPlayer(_ context.Context, week int) (map[string]roster.Record, error) {
	f.calls = append(f.calls, week)
	if f.err != nil {
		return nil, f.err
	}
	if week > 0 {
		return f.byWeek[week], nil
	}
	return f.all, nil
}

func TestSelectBaseline_PriorWeek(t *testing.T) {
	src := &fakeSource{
		byWeek: map[int]map[string]roster.Record{4: asBaseline(snap("1", roster.Float(10)))},
		all:    asBaseline(snap("2", roster.Float(20))),
	}
	b, err := SelectBaseline(context.Background(), src, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b["1"]; !ok {
		t.Fatalf("expected week-4 baseline, got %v", b)
	}
	if len(src.calls) != 1 || src.calls[0] != 4 {
		t.Fatalf("calls: %v", src.calls)
	}
}

func TestSelectBaseline_EmptyPriorFallsBackToHistory(t *testing.T) {
	src := &fakeSource{
		byWeek: map[int]map[string]roster.Record{},
		all:    asBaseline(snap("2", roster.Float(20))),
	}
	b, err := SelectBaseline(context.Background(), src, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b["2"]; !ok {
		t.Fatalf("expected history fallback, got %v", b)
	}
	if len(src.calls) != 2 || src.calls[1] != 0 {
		t.Fatalf("calls: %v", src.calls)
	}
}

func TestSelectBaseline_WeekOneGoesStraightToHistory(t *testing.T) {
	src := &fakeSource{all: asBaseline(snap("3", roster.Float(30)))}
	b, err := SelectBaseline(context.Background(), src, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b["3"]; !ok {
		t.Fatalf("expected history baseline, got %v", b)
	}
	if len(src.calls) != 1 || src.calls[0] != 0 {
		t.Fatalf("calls: %v", src.calls)
	}
}

func TestSelectBaseline_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("backend down")}
	if _, err := SelectBaseline(context.Background(), src, 3, nil); err == nil {
		t.Fatal("expected error")
	}
}
