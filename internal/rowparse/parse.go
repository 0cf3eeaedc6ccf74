// Package rowparse turns the rendered markup of one listing page into
// assembled roster snapshots. It is pure: no browser, no storage, no clock.
//
// The parser is deliberately permissive about table shape. Rows with fewer
// than three cells, header rows, and rows without a resolvable player name
// are skipped; every other row yields one snapshot, with unreported numeric
// cells left nil.
package rowparse

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/rosterwatch/roster"
)

var (
	playerIDPattern = regexp.MustCompile(`playerId=(\d+)`)
	posTeamPattern  = regexp.MustCompile(`(QB|RB|WR|TE|K|DEF)\s*-\s*([A-Z]{2,4})`)
)

// headerTokens are first-cell texts that mark a header row, not a data row.
var headerTokens = map[string]bool{
	"player":   true,
	"name":     true,
	"opp":      true,
	"opponent": true,
}

// Parser extracts snapshots from page markup.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Snapshots parses every table in the markup and assembles one snapshot per
// acceptable data row, in document order.
func (p *Parser) Snapshots(markup string) ([]roster.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("rowparse: parse markup: %w", err)
	}

	var snaps []roster.Snapshot

	tables := doc.Find("table")
	tables.Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tbody tr")
		if rows.Length() == 0 {
			rows = table.Find("tr")
		}

		rows.Each(func(_ int, row *goquery.Selection) {
			snap, ok := p.assemble(row)
			if ok {
				snaps = append(snaps, snap)
			}
		})
	})

	p.logger.Debug("rowparse: parsed page",
		"tables", tables.Length(), "snapshots", len(snaps))
	return snaps, nil
}

// assemble builds one snapshot from a table row. ok is false when the row is
// rejected: too few cells, a header row, or no resolvable player name.
func (p *Parser) assemble(row *goquery.Selection) (roster.Snapshot, bool) {
	cells := row.Find("td, th")
	if cells.Length() < 3 {
		return roster.Snapshot{}, false
	}

	first := strings.TrimSpace(cells.Eq(0).Text())
	if first == "" || headerTokens[strings.ToLower(first)] {
		return roster.Snapshot{}, false
	}

	var snap roster.Snapshot
	p.playerInfo(cells.Eq(0), &snap)
	if snap.Name == "" {
		return roster.Snapshot{}, false
	}

	snap.Opponent = strings.TrimSpace(cells.Eq(1).Text())

	// Statistic cells in fixed listing order.
	if cells.Length() > 2 {
		snap.PctRostered = Number(cells.Eq(2).Text())
	}
	if cells.Length() > 3 {
		snap.PctRosteredDelta = Number(cells.Eq(3).Text())
	}
	if cells.Length() > 4 {
		snap.PctStarted = Number(cells.Eq(4).Text())
	}
	if cells.Length() > 5 {
		snap.PctStartedDelta = Number(cells.Eq(5).Text())
	}
	if cells.Length() > 6 {
		snap.Adds = Count(cells.Eq(6).Text())
	}
	if cells.Length() > 7 {
		snap.Drops = Count(cells.Eq(7).Text())
	}

	return snap, true
}

// playerInfo fills name, id, position and team from the player cell.
func (p *Parser) playerInfo(cell *goquery.Selection, snap *roster.Snapshot) {
	link := cell.Find("a.playerName").First()
	if link.Length() == 0 {
		link = cell.Find("a").First()
	}
	if link.Length() > 0 {
		snap.Name = strings.TrimSpace(link.Text())
		if m := playerIDPattern.FindStringSubmatch(link.AttrOr("href", "")); m != nil {
			snap.PlayerID = m[1]
		}
	}

	// Position and team live in an <em> label of the form "TE - ATL".
	if em := cell.Find("em").First(); em.Length() > 0 {
		if m := posTeamPattern.FindStringSubmatch(strings.TrimSpace(em.Text())); m != nil {
			snap.Position = m[1]
			snap.Team = m[2]
		}
	}

	// Fallback: scan the whole cell text for a known position token next
	// to a 2-4 letter team code.
	if snap.Position == "" {
		if m := posTeamPattern.FindStringSubmatch(cell.Text()); m != nil {
			snap.Position = m[1]
			snap.Team = m[2]
		}
	}
}
