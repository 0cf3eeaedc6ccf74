// Command rosterwatch harvests a paginated player-ownership listing and
// persists the records that changed since the previous run. It runs either
// as a one-shot CLI or as a small HTTP service with a trigger endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/rosterwatch/internal/browser"
	"github.com/hazyhaar/rosterwatch/internal/config"
	"github.com/hazyhaar/rosterwatch/internal/httpapi"
	"github.com/hazyhaar/rosterwatch/internal/ingest"
	"github.com/hazyhaar/rosterwatch/internal/pagewalk"
	"github.com/hazyhaar/rosterwatch/internal/report"
	"github.com/hazyhaar/rosterwatch/internal/rowparse"
	"github.com/hazyhaar/rosterwatch/internal/store"
	"github.com/hazyhaar/rosterwatch/roster"
)

var (
	cfgPath    string
	scrapeOnly bool
)

func main() {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rosterwatch",
	Short: "rosterwatch tracks player ownership trends across scraping runs",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to the YAML configuration file")

	runCmd.Flags().BoolVar(&scrapeOnly, "scrape-only", false, "scrape and report without writing to the store")
	rootCmd.AddCommand(runCmd, serveCmd, statsCmd, trendingCmd, teamCmd, cleanCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one scrape-diff-write run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}

		mgr, err := startBrowser(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer mgr.Close()

		r := &runner{cfg: cfg, mgr: mgr, st: st}
		started := time.Now()
		res, err := r.Run(cmd.Context())
		if err != nil {
			return err
		}
		slog.Info("run finished",
			"run_id", res.RunID, "scraped", res.Scraped, "written", res.Written,
			"new", res.New, "changed", res.Changed, "unchanged", res.Unchanged,
			"week", res.Week, "terminal", res.Terminal, "duration", time.Since(started))
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the status API with a run trigger endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}

		mgr, err := startBrowser(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer mgr.Close()

		var reporter httpapi.Reporter
		if st != nil {
			reporter = report.New(st, slog.Default())
		}
		srv := httpapi.NewServer(&runner{cfg: cfg, mgr: mgr, st: st}, reporter, slog.Default())

		httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Router()}
		go func() {
			<-cmd.Context().Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutCtx)
		}()

		slog.Info("serving", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeStore, err := reportService()
		if err != nil {
			return err
		}
		defer closeStore()

		stats, err := svc.DBStats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("total records: %d\n", stats.TotalRecords)
		if stats.LatestStamp != nil {
			fmt.Printf("latest run:    %s\n", stats.LatestStamp.Format(time.RFC3339))
		}
		for _, run := range stats.RecentRuns {
			fmt.Printf("  run %s  %d records\n", run.Stamp.Format(time.RFC3339), run.Count)
		}
		for _, w := range stats.Weeks {
			fmt.Printf("week %2d: %d records, %d players, %d sessions\n",
				w.Week, w.Records, w.Players, w.Sessions)
		}
		return nil
	},
}

var (
	trendingDir   string
	trendingLimit int
)

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Show the biggest rostered-percentage movers",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeStore, err := reportService()
		if err != nil {
			return err
		}
		defer closeStore()

		movers, err := svc.Trending(cmd.Context(), report.Direction(trendingDir), trendingLimit)
		if err != nil {
			return err
		}
		printRecords(movers)
		return nil
	},
}

var teamCmd = &cobra.Command{
	Use:   "team <abbreviation>",
	Short: "Show the latest records for a team's players",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeStore, err := reportService()
		if err != nil {
			return err
		}
		defer closeStore()

		players, err := svc.TeamPlayers(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printRecords(players)
		return nil
	},
}

var cleanCount int

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete the most recently created records",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeStore, err := reportService()
		if err != nil {
			return err
		}
		defer closeStore()

		deleted, err := svc.CleanRecent(cmd.Context(), cleanCount)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d records\n", deleted)
		return nil
	},
}

func init() {
	trendingCmd.Flags().StringVar(&trendingDir, "dir", string(report.Rising), "rising | falling")
	trendingCmd.Flags().IntVar(&trendingLimit, "limit", 10, "number of players to show")
	cleanCmd.Flags().IntVar(&cleanCount, "count", 10, "number of records to delete")
}

// runner opens a fresh tab per run so a browser recycle between runs is
// invisible. Implements httpapi.Runner.
type runner struct {
	cfg *config.Config
	mgr *browser.Manager
	st  *store.Store
}

func (r *runner) Run(ctx context.Context) (roster.RunResult, error) {
	cfg := r.cfg

	tab, err := browser.OpenTab(r.mgr, browser.Options{
		URL:             cfg.Source.URL,
		ContentSelector: cfg.Source.ContentSelector,
		ReadyTimeout:    cfg.Source.ReadyTimeout,
		SettleDelay:     cfg.Source.SettleDelay,
		NextTimeout:     cfg.Walk.NextTimeout,
	})
	if err != nil {
		return roster.RunResult{Terminal: roster.FatalTerminal("browser")}, err
	}
	defer tab.Close()

	var st ingest.Store
	if r.st != nil {
		st = r.st
	}

	p := ingest.New(tab, rowparse.New(slog.Default()), st, ingest.Config{
		Walk: pagewalk.Config{
			MaxPages:           cfg.Walk.MaxPages,
			EmptyPageLimit:     cfg.EmptyPageLimit(),
			DistinguishTimeout: cfg.Walk.DistinguishTimeout,
		},
		BatchSize: cfg.Store.BatchSize,
		Anchor:    cfg.AnchorDate(),
		Weeks:     cfg.Season.Weeks,
	})
	return p.Run(ctx)
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	switch {
	case cfgPath != "":
		cfg, err = config.LoadFile(cfgPath)
	default:
		if _, statErr := os.Stat("rosterwatch.yaml"); statErr == nil {
			cfg, err = config.LoadFile("rosterwatch.yaml")
		} else {
			cfg = config.Default()
		}
	}
	if err != nil {
		return nil, err
	}

	if url := os.Getenv("ROSTER_URL"); url != "" {
		cfg.Source.URL = url
	}
	if cfg.Source.URL == "" {
		return nil, fmt.Errorf("no source url: set source.url in the config or ROSTER_URL")
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if scrapeOnly || !cfg.StoreEnabled() {
		slog.Info("store disabled, scrape-only mode")
		return nil, nil
	}
	if dir := filepath.Dir(cfg.Store.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store dir %s: %w", dir, err)
		}
	}
	return store.Open(cfg.Store.Path, slog.Default())
}

func startBrowser(ctx context.Context, cfg *config.Config) (*browser.Manager, error) {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Stealth:          browser.ParseStealth(cfg.Browser.Stealth),
		ResourceBlocking: []string{"images", "fonts", "media"},
	})
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	return mgr, nil
}

// reportService opens the store read-side for the query commands.
func reportService() (*report.Service, func(), error) {
	cfg, err := loadConfigForQueries()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Store.Path, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return report.New(st, slog.Default()), func() { st.Close() }, nil
}

// loadConfigForQueries is loadConfig without the source-url requirement:
// the query commands never touch the listing.
func loadConfigForQueries() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFile(cfgPath)
	}
	if _, err := os.Stat("rosterwatch.yaml"); err == nil {
		return config.LoadFile("rosterwatch.yaml")
	}
	return config.Default(), nil
}

func printRecords(recs []roster.Record) {
	for _, rec := range recs {
		delta := "  n/a"
		if rec.PctRosteredDelta != nil {
			delta = fmt.Sprintf("%+5.1f", *rec.PctRosteredDelta)
		}
		pct := "  n/a"
		if rec.PctRostered != nil {
			pct = fmt.Sprintf("%5.1f", *rec.PctRostered)
		}
		fmt.Printf("%-24s %-3s %-4s  rostered %s%%  delta %s%%\n",
			rec.Name, rec.Position, rec.Team, pct, delta)
	}
}

func setupLogging() {
	var lvl slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}
