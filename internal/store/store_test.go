package store

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/rosterwatch/roster"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(id, name string, week int, stamp time.Time, pctRostered float64) roster.Record {
	return roster.Record{
		Snapshot: roster.Snapshot{
			PlayerID:    id,
			Name:        name,
			Position:    "RB",
			Team:        "ATL",
			PctRostered: roster.Float(pctRostered),
		},
		ScrapedAt: stamp,
		Week:      week,
	}
}

var t0 = time.Date(2025, 9, 10, 6, 0, 0, 0, time.UTC)

func TestBatchWrite_Insert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	n, err := s.BatchWrite(ctx, []roster.Record{
		rec("1", "A", 1, t0, 50),
		rec("2", "B", 1, t0, 60),
		rec("", "No ID", 1, t0, 70),
	}, ModeInsert)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 acked, got %d", n)
	}

	total, err := s.TotalRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("expected 3 rows, got %d", total)
	}
}

func TestBatchWrite_MergeReplacesSameRunPlayer(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.BatchWrite(ctx, []roster.Record{rec("1", "A", 1, t0, 50)}, ModeMerge); err != nil {
		t.Fatal(err)
	}
	// Same player, same run stamp: merge replaces instead of duplicating.
	if _, err := s.BatchWrite(ctx, []roster.Record{rec("1", "A", 1, t0, 55)}, ModeMerge); err != nil {
		t.Fatal(err)
	}

	total, _ := s.TotalRecords(ctx)
	if total != 1 {
		t.Fatalf("expected 1 row after merge, got %d", total)
	}

	latest, err := s.LatestByPlayer(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := latest["1"].PctRostered; got == nil || *got != 55 {
		t.Fatalf("expected replaced value 55, got %v", got)
	}
}

func TestBatchWrite_NullsSurviveRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := rec("9", "Null Fields", 1, t0, 10)
	r.PctStarted = nil
	r.Adds = nil
	r.Drops = roster.Count(0)

	if _, err := s.BatchWrite(ctx, []roster.Record{r}, ModeInsert); err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestByPlayer(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := latest["9"]
	if got.PctStarted != nil {
		t.Errorf("expected nil pct_started, got %v", *got.PctStarted)
	}
	if got.Adds != nil {
		t.Errorf("expected nil adds, got %v", *got.Adds)
	}
	if got.Drops == nil || *got.Drops != 0 {
		t.Errorf("expected drops 0 (not nil), got %v", got.Drops)
	}
}

func TestLatestByPlayer_WeekScoped(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	older := t0.Add(-24 * time.Hour)
	newer := t0

	if _, err := s.BatchWrite(ctx, []roster.Record{
		rec("1", "A", 1, older, 40),
		rec("1", "A", 2, newer, 45),
		rec("2", "B", 1, older, 80),
	}, ModeInsert); err != nil {
		t.Fatal(err)
	}

	week1, err := s.LatestByPlayer(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(week1) != 2 {
		t.Fatalf("expected 2 week-1 players, got %d", len(week1))
	}
	if got := week1["1"].PctRostered; got == nil || *got != 40 {
		t.Fatalf("week-1 scope must see the week-1 record, got %v", got)
	}

	all, err := s.LatestByPlayer(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := all["1"].PctRostered; got == nil || *got != 45 {
		t.Fatalf("unscoped must see the newest record, got %v", got)
	}
}

func TestLatestByPlayer_MostRecentWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	stamps := []time.Time{t0, t0.Add(time.Hour), t0.Add(2 * time.Hour)}
	for i, st := range stamps {
		if _, err := s.BatchWrite(ctx, []roster.Record{
			rec("1", "A", 1, st, float64(10*(i+1))),
		}, ModeInsert); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := s.LatestByPlayer(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := latest["1"].PctRostered; got == nil || *got != 30 {
		t.Fatalf("expected most recent value 30, got %v", got)
	}
}

func TestRecordsAt_RunAtomicity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	recs := make([]roster.Record, 0, 7)
	for i := 0; i < 7; i++ {
		recs = append(recs, rec("", "P", 3, t0, float64(i)))
		recs[i].PlayerID = string(rune('a' + i))
	}
	if _, err := s.BatchWrite(ctx, recs, ModeInsert); err != nil {
		t.Fatal(err)
	}

	got, err := s.RecordsAt(ctx, t0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 7 {
		t.Fatalf("expected 7 records, got %d", len(got))
	}
	for _, r := range got {
		if !r.ScrapedAt.Equal(t0) || r.Week != 3 {
			t.Fatalf("record %q broke run atomicity: %v week %d", r.PlayerID, r.ScrapedAt, r.Week)
		}
	}
}

func TestLatestStamp(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, ok, err := s.LatestStamp(ctx); err != nil || ok {
		t.Fatalf("empty table: ok=%v err=%v", ok, err)
	}

	if _, err := s.BatchWrite(ctx, []roster.Record{rec("1", "A", 1, t0, 1)}, ModeInsert); err != nil {
		t.Fatal(err)
	}
	later := t0.Add(time.Hour)
	if _, err := s.BatchWrite(ctx, []roster.Record{rec("1", "A", 1, later, 2)}, ModeInsert); err != nil {
		t.Fatal(err)
	}

	stamp, ok, err := s.LatestStamp(ctx)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !stamp.Equal(later) {
		t.Fatalf("expected %v, got %v", later, stamp)
	}
}

func TestBatchDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var recs []roster.Record
	for i := 0; i < 250; i++ {
		r := rec("", "bulk", 1, t0, float64(i))
		recs = append(recs, r)
	}
	if _, err := s.BatchWrite(ctx, recs, ModeInsert); err != nil {
		t.Fatal(err)
	}

	ids, err := s.RecentIDs(ctx, 150)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 150 {
		t.Fatalf("expected 150 ids, got %d", len(ids))
	}

	deleted, err := s.BatchDelete(ctx, ids)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 150 {
		t.Fatalf("expected 150 deleted, got %d", deleted)
	}

	total, _ := s.TotalRecords(ctx)
	if total != 100 {
		t.Fatalf("expected 100 remaining, got %d", total)
	}
}

func TestWeekStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.BatchWrite(ctx, []roster.Record{
		rec("1", "A", 1, t0, 1),
		rec("2", "B", 1, t0, 2),
		rec("1", "A", 2, t0.Add(time.Hour), 3),
	}, ModeInsert); err != nil {
		t.Fatal(err)
	}

	stats, err := s.WeekStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 weeks, got %d", len(stats))
	}
	if stats[0].Week != 1 || stats[0].Records != 2 || stats[0].Players != 2 {
		t.Errorf("week 1 stats: %+v", stats[0])
	}
	if stats[1].Week != 2 || stats[1].Records != 1 {
		t.Errorf("week 2 stats: %+v", stats[1])
	}
}

func TestParseStamp_RoundTrip(t *testing.T) {
	in := time.Date(2025, 11, 2, 13, 45, 30, 123456789, time.UTC)
	out, err := ParseStamp(FormatStamp(in))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Equal(in) {
		t.Fatalf("round trip: %v != %v", out, in)
	}
}
