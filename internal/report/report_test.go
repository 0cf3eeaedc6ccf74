package report

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/rosterwatch/internal/store"
	"github.com/hazyhaar/rosterwatch/roster"
)

var t0 = time.Date(2025, 9, 10, 6, 0, 0, 0, time.UTC)

func testService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, nil), st
}

func seed(t *testing.T, st *store.Store, recs ...roster.Record) {
	t.Helper()
	if _, err := st.BatchWrite(context.Background(), recs, store.ModeInsert); err != nil {
		t.Fatal(err)
	}
}

func mover(id, name, team string, delta *float64, stamp time.Time) roster.Record {
	return roster.Record{
		Snapshot: roster.Snapshot{
			PlayerID:         id,
			Name:             name,
			Position:         "WR",
			Team:             team,
			PctRostered:      roster.Float(50),
			PctRosteredDelta: delta,
		},
		ScrapedAt: stamp,
		Week:      2,
	}
}

func TestTrending_RisingOrder(t *testing.T) {
	svc, st := testService(t)
	seed(t, st,
		mover("1", "A", "ATL", roster.Float(1.5), t0),
		mover("2", "B", "DAL", roster.Float(9.9), t0),
		mover("3", "C", "PHI", roster.Float(-3), t0),
		mover("4", "D", "NYG", nil, t0),
	)

	got, err := svc.Trending(context.Background(), Rising, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].PlayerID != "2" || got[1].PlayerID != "1" {
		t.Fatalf("rising: %+v", got)
	}
}

func TestTrending_FallingOrder(t *testing.T) {
	svc, st := testService(t)
	seed(t, st,
		mover("1", "A", "ATL", roster.Float(1.5), t0),
		mover("3", "C", "PHI", roster.Float(-3), t0),
	)

	got, err := svc.Trending(context.Background(), Falling, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].PlayerID != "3" {
		t.Fatalf("falling: %+v", got)
	}
}

func TestTrending_UsesMostRecentRecord(t *testing.T) {
	svc, st := testService(t)
	seed(t, st,
		mover("1", "A", "ATL", roster.Float(9), t0.Add(-time.Hour)),
		mover("1", "A", "ATL", roster.Float(0.5), t0),
		mover("2", "B", "DAL", roster.Float(2), t0),
	)

	got, err := svc.Trending(context.Background(), Rising, 1)
	if err != nil {
		t.Fatal(err)
	}
	// Player 1's stale 9.0 delta must not win over its current 0.5.
	if len(got) != 1 || got[0].PlayerID != "2" {
		t.Fatalf("stale record used: %+v", got)
	}
}

func TestTeamPlayers(t *testing.T) {
	svc, st := testService(t)
	low := mover("1", "A", "ATL", nil, t0)
	low.PctRostered = roster.Float(10)
	high := mover("2", "B", "atl", nil, t0)
	high.PctRostered = roster.Float(90)
	other := mover("3", "C", "DAL", nil, t0)
	unreported := mover("4", "D", "ATL", nil, t0)
	unreported.PctRostered = nil
	seed(t, st, low, high, other, unreported)

	got, err := svc.TeamPlayers(context.Background(), "ATL")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("team size: %d", len(got))
	}
	if got[0].PlayerID != "2" || got[1].PlayerID != "1" || got[2].PlayerID != "4" {
		t.Fatalf("order: %s %s %s", got[0].PlayerID, got[1].PlayerID, got[2].PlayerID)
	}
}

func TestDBStats(t *testing.T) {
	svc, st := testService(t)
	seed(t, st,
		mover("1", "A", "ATL", roster.Float(1), t0.Add(-time.Hour)),
		mover("1", "A", "ATL", roster.Float(2), t0),
		mover("2", "B", "DAL", roster.Float(3), t0),
	)

	stats, err := svc.DBStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRecords != 3 {
		t.Fatalf("total: %d", stats.TotalRecords)
	}
	if stats.LatestStamp == nil || !stats.LatestStamp.Equal(t0) {
		t.Fatalf("latest stamp: %v", stats.LatestStamp)
	}
	if len(stats.RecentRuns) != 2 {
		t.Fatalf("runs: %+v", stats.RecentRuns)
	}
	if len(stats.Weeks) != 1 || stats.Weeks[0].Players != 2 {
		t.Fatalf("weeks: %+v", stats.Weeks)
	}
}

func TestDBStats_EmptyStore(t *testing.T) {
	svc, _ := testService(t)
	stats, err := svc.DBStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRecords != 0 || stats.LatestStamp != nil {
		t.Fatalf("empty stats: %+v", stats)
	}
}

func TestLastRun(t *testing.T) {
	svc, st := testService(t)
	seed(t, st,
		mover("1", "A", "ATL", roster.Float(1), t0.Add(-time.Hour)),
		mover("2", "B", "DAL", roster.Float(2), t0),
		mover("3", "C", "PHI", roster.Float(3), t0),
	)

	last, err := svc.LastRun(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || !last.Stamp.Equal(t0) || last.Week != 2 {
		t.Fatalf("last: %+v", last)
	}
	if len(last.Records) != 2 {
		t.Fatalf("records: %d", len(last.Records))
	}
}

func TestLastRun_Empty(t *testing.T) {
	svc, _ := testService(t)
	last, err := svc.LastRun(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if last != nil {
		t.Fatalf("expected nil on empty store, got %+v", last)
	}
}

func TestCleanRecent(t *testing.T) {
	svc, st := testService(t)
	seed(t, st,
		mover("1", "A", "ATL", roster.Float(1), t0.Add(-time.Hour)),
		mover("2", "B", "DAL", roster.Float(2), t0),
		mover("3", "C", "PHI", roster.Float(3), t0),
	)

	deleted, err := svc.CleanRecent(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Fatalf("deleted: %d", deleted)
	}

	total, err := st.TotalRecords(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("remaining: %d", total)
	}
}
