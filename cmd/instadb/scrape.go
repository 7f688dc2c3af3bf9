package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"instadb/internal/app"
	"instadb/pkg/config"
	errs "instadb/pkg/errors"
	"instadb/pkg/instagram"
	"instadb/pkg/logger"
	"instadb/pkg/scraper"
	"instadb/pkg/ui"
	"instadb/pkg/ui/tui"
)

var (
	// Scrape command flags
	proxy       string
	rateLimit   int
	fileDelay   int
	minLikes    int
	onlyPhotos  bool
	onlyVideos  bool
	outputPath  string
	newOnly     bool
	tags        []string
	useStore    bool
	onlyStore   bool
	refresh     bool
	backfill    bool
	resume      bool
	interactive bool
	timezone    string
	storeDriver string
	useTUI      bool
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <account>",
	Short: "Record an account's posts and download their media",
	Long: `Page through the account's public media feed from the newest post backwards.

Every post is recorded in the account's store. Posts already in the store only
have their like count refreshed. Unless --only-db is given, the media of new
posts is downloaded into the output directory and tagged with exiftool.

An interrupted run keeps a checkpoint of the last cursor; --resume continues
from it.`,
	Example: `  # Record posts and download everything
  instadb scrape natgeo

  # Only fetch posts newer than the newest stored one
  instadb scrape natgeo --new

  # Keep the database current without downloading media
  instadb scrape natgeo --only-db

  # Photos with at least 1000 likes into a custom folder through a proxy
  instadb scrape natgeo --photos --likes 1000 --path ./best --proxy 10.0.0.1:8080`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	addScrapeFlags(scrapeCmd)
	addScrapeFlags(rootCmd)
}

func addScrapeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&proxy, "proxy", "", "proxy as address:port or socks5://host:port")
	f.IntVar(&rateLimit, "rate-limit", 1, "seconds to wait between feed pages")
	f.IntVar(&fileDelay, "file-delay", 1, "seconds to wait between media downloads")
	f.IntVar(&minLikes, "likes", 0, "only download posts with at least this many likes")
	f.BoolVar(&onlyPhotos, "photos", false, "only download photos")
	f.BoolVar(&onlyVideos, "videos", false, "only download videos")
	f.StringVar(&outputPath, "path", "", "download into this directory instead of <output>/<account>")
	f.BoolVar(&newOnly, "new", false, "stop at the first post already in the store")
	f.StringSliceVar(&tags, "tags", nil, "keywords written into each file (default: <account>,instagram)")
	f.BoolVar(&useStore, "db", true, "record posts in the local store")
	f.BoolVar(&onlyStore, "only-db", false, "record posts without downloading media")
	f.BoolVar(&refresh, "refresh", false, "download files again even when they exist")
	f.BoolVar(&backfill, "backfill", false, "also download media of posts already in the store")
	f.BoolVar(&resume, "resume", false, "resume from the last checkpoint")
	f.BoolVar(&interactive, "interactive", false, "ask for a new proxy when a request fails")
	f.StringVar(&timezone, "timezone", "", "render post dates in this zone (source, local or an IANA name)")
	f.StringVar(&storeDriver, "store", "", "store backend (sqlite, bolt, memory)")
	f.BoolVar(&useTUI, "tui", false, "show a live dashboard instead of line output")
}

// flagOverrides collects the flags the user actually set
func flagOverrides(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := func(name string, value interface{}) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			flags[name] = value
		}
	}

	set("proxy", proxy)
	set("rate-limit", rateLimit)
	set("file-delay", fileDelay)
	set("likes", minLikes)
	set("photos", onlyPhotos)
	set("videos", onlyVideos)
	set("path", outputPath)
	set("new", newOnly)
	set("tags", tags)
	set("db", useStore)
	set("only-db", onlyStore)
	set("refresh", refresh)
	set("backfill", backfill)
	set("interactive", interactive)
	set("timezone", timezone)
	set("store", storeDriver)

	level := logLevel
	if level == "" && quiet {
		level = "error"
	}
	if level != "" {
		flags["log-level"] = level
	}
	return flags
}

func runScrape(cmd *cobra.Command, args []string) error {
	account := instagram.SanitizeUsername(strings.TrimSpace(args[0]))
	if !instagram.IsValidUsername(account) {
		return errs.New(errs.ErrorTypeUnknown, "invalid account name "+args[0])
	}

	cfg, err := config.Load(configFile, flagOverrides(cmd))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTUI {
		return runDashboard(ctx, cfg, account)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("instadb starting")

	ui.PrintLogo()
	ui.PrintInfo("Account", instagram.ProfileURL(account))
	ui.PrintInfo("Output", cfg.OutputDir(account))

	var out io.Writer = os.Stdout
	if quiet {
		out = io.Discard
	}

	res, err := app.Run(ctx, cfg, account, app.RunOptions{
		Resume:   resume,
		Observer: ui.NewStatusTracker(out, account, verbose),
		Logger:   log,
		Stdin:    os.Stdin,
		Prompt:   os.Stderr,
	})
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err != nil {
		return err
	}

	if res.State == scraper.StateDone {
		ui.PrintSuccess("Archive is up to date")
	}
	return nil
}

// runDashboard scrapes behind the bubbletea dashboard. Console logging is
// silenced so it cannot tear the screen; logging.file still receives it.
func runDashboard(ctx context.Context, cfg *config.Config, account string) error {
	log, err := logger.NewWithWriter(&cfg.Logging, io.Discard)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dash := tui.NewTUI(account, cancel)
	dash.Start()

	res, runErr := app.Run(ctx, cfg, account, app.RunOptions{
		Resume:   resume,
		Observer: dash,
		Logger:   log,
	})
	if err := dash.Stop(res, runErr); err != nil {
		log.WithError(err).Warn("Dashboard failed")
	}
	if ctx.Err() != nil {
		return context.Canceled
	}
	return runErr
}
