// Package app assembles the fetcher, store, downloader and driver for one
// account from a loaded configuration.
package app

import (
	"context"
	"io"
	"os"

	"instadb/internal/downloader"
	"instadb/pkg/checkpoint"
	"instadb/pkg/config"
	"instadb/pkg/instagram"
	"instadb/pkg/logger"
	"instadb/pkg/metadata"
	"instadb/pkg/ratelimit"
	"instadb/pkg/scraper"
	"instadb/pkg/storage"
	"instadb/pkg/store"
)

// RunOptions carries the per-invocation choices that are not configuration
type RunOptions struct {
	// Resume continues from the account's checkpoint cursor
	Resume   bool
	Observer scraper.Observer
	Logger   logger.Logger

	// Stdin and Prompt back the interactive proxy prompt
	Stdin  *os.File
	Prompt io.Writer
}

// Run scrapes account until the feed is exhausted, the new-only cutoff is
// reached, or the run aborts. The store is closed before returning.
func Run(ctx context.Context, cfg *config.Config, account string, opts RunOptions) (scraper.Result, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Prompt == nil {
		opts.Prompt = os.Stderr
	}

	rotator := instagram.NewRotator(cfg.Network, opts.Stdin, opts.Prompt, log)
	client, err := instagram.NewClientFromConfig(cfg, account, rotator, log)
	if err != nil {
		return scraper.Result{}, err
	}

	st, err := store.Open(cfg, account, log)
	if err != nil {
		return scraper.Result{}, err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close store")
		}
	}()

	var media scraper.MediaDownloader
	if !cfg.Download.MetadataOnly {
		files, err := storage.NewManager(cfg.OutputDir(account), account)
		if err != nil {
			return scraper.Result{}, err
		}

		media = downloader.New(
			client,
			files,
			ratelimit.NewDelay(cfg.RateLimit.FileDelay, cfg.RateLimit.Jitter),
			metadata.FromConfig(cfg.Metadata, log),
			downloader.Options{
				Account:       account,
				MinLikes:      cfg.Download.MinLikes,
				OnlyPhotos:    cfg.Download.OnlyPhotos,
				OnlyVideos:    cfg.Download.OnlyVideos,
				Refresh:       cfg.Download.Refresh,
				Tags:          cfg.EffectiveTags(account),
				RetryAttempts: cfg.Download.RetryAttempts,
			},
			log,
		)
	}

	driver := scraper.NewDriver(
		client,
		st,
		media,
		ratelimit.NewDelay(cfg.RateLimit.RequestDelay, cfg.RateLimit.Jitter),
		scraper.Options{
			Account:      account,
			MetadataOnly: cfg.Download.MetadataOnly,
			NewOnly:      cfg.Download.NewOnly,
			NewFilesOnly: cfg.Download.NewOnly && !cfg.Store.Enabled,
			Backfill:     cfg.Download.Backfill,
			Resume:       opts.Resume,
		},
		log,
	).WithObserver(opts.Observer)

	checkpoints, err := checkpoint.NewManager(cfg.Output.CheckpointDir, account, log)
	if err != nil {
		log.WithError(err).Warn("Checkpoints disabled")
	} else {
		driver.WithCheckpoints(checkpoints)
	}

	return driver.Run(ctx)
}
