package scraper

import (
	"context"
	"fmt"

	"instadb/internal/downloader"
	"instadb/pkg/checkpoint"
	errs "instadb/pkg/errors"
	"instadb/pkg/instagram"
	"instadb/pkg/logger"
	"instadb/pkg/models"
	"instadb/pkg/ratelimit"
	"instadb/pkg/store"
)

// State is a step of the pagination state machine
type State string

const (
	StateStart       State = "start"
	StateFetchPage   State = "fetch_page"
	StateProcessPage State = "process_page"
	StateAdvance     State = "advance"
	StateDone        State = "done"
	StateAbort       State = "abort"
)

// Outcome is what reconciliation did with one post
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Options controls a single run
type Options struct {
	Account string
	// MetadataOnly records posts without downloading media
	MetadataOnly bool
	// NewOnly stops at the first post already in the store
	NewOnly bool
	// NewFilesOnly stops at the first post whose media is already on disk.
	// It stands in for NewOnly when no store is kept between runs.
	NewFilesOnly bool
	// Backfill also downloads media of posts already in the store
	Backfill bool
	// Resume starts from the saved checkpoint cursor
	Resume bool
}

// Result summarises a run
type Result struct {
	State      State
	Cursor     string
	Pages      int
	Processed  int
	Inserted   int
	Updated    int
	Downloaded int
}

// Driver runs the fetch, parse, reconcile and download loop for one account
type Driver struct {
	fetcher     PageFetcher
	store       store.Store
	media       MediaDownloader
	pacer       ratelimit.Limiter
	checkpoints *checkpoint.Manager
	observer    Observer
	opts        Options
	logger      logger.Logger
}

// NewDriver creates a Driver. media may be nil when no files are wanted.
func NewDriver(
	fetcher PageFetcher,
	st store.Store,
	media MediaDownloader,
	pacer ratelimit.Limiter,
	opts Options,
	log logger.Logger,
) *Driver {
	if log == nil {
		log = logger.GetLogger()
	}
	if pacer == nil {
		pacer = ratelimit.NewDelay(0, 0)
	}

	return &Driver{
		fetcher:  fetcher,
		store:    st,
		media:    media,
		pacer:    pacer,
		observer: nopObserver{},
		opts:     opts,
		logger:   log.WithField("account", opts.Account),
	}
}

// WithCheckpoints enables cursor checkpoints
func (d *Driver) WithCheckpoints(m *checkpoint.Manager) *Driver {
	d.checkpoints = m
	return d
}

// WithObserver registers a progress observer
func (d *Driver) WithObserver(o Observer) *Driver {
	if o == nil {
		o = nopObserver{}
	}
	d.observer = o
	return d
}

// Run pages through the feed until it is exhausted, the new-only cutoff is
// reached, or an error aborts the run.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	res := Result{State: StateStart}
	cp := d.startCheckpoint()
	if cp != nil && d.opts.Resume {
		res.Cursor = cp.Cursor
		res.Pages = cp.Page
		res.Processed = cp.Processed
	}

	d.logger.InfoWithFields("Starting scrape", map[string]interface{}{
		"cursor":        res.Cursor,
		"new_only":      d.opts.NewOnly,
		"metadata_only": d.opts.MetadataOnly,
	})

	for {
		res.State = StateFetchPage
		d.observer.PageStarted(res.Pages+1, res.Cursor)

		page, err := d.fetcher.FetchPage(ctx, res.Cursor)
		if err != nil {
			return d.abort(res, fmt.Errorf("fetching page %d: %w", res.Pages+1, err))
		}

		if page.IsPrivateOrEmpty(res.Cursor == "") {
			return d.abort(res, errs.New(errs.ErrorTypePrivate, fmt.Sprintf("%s is private or has no posts", d.opts.Account)))
		}
		if page.PostCount() == 0 {
			return d.done(res)
		}

		res.State = StateProcessPage
		res.Pages++
		prev := res.Cursor
		more, err := d.processPage(ctx, page, &res)
		if err != nil {
			return d.abort(res, err)
		}

		res.State = StateAdvance
		logger.LogPage(d.logger, d.opts.Account, res.Pages, res.Cursor, page.PostCount())
		d.saveCheckpoint(cp, res)

		if !more || !page.HasMorePages() {
			return d.done(res)
		}
		if next := page.NextCursor(); next == "" || next == prev {
			return d.abort(res, errs.New(errs.ErrorTypeMalformed,
				fmt.Sprintf("feed cursor did not advance past %q on page %d", prev, res.Pages)))
		}

		if err := d.pacer.Wait(ctx); err != nil {
			return d.abort(res, err)
		}
	}
}

// processPage reconciles every post in order. It returns false when the
// new-only cutoff was hit.
func (d *Driver) processPage(ctx context.Context, page *instagram.Page, res *Result) (bool, error) {
	for i := 0; i < page.PostCount(); i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		post, err := page.Post(i)
		if err != nil {
			return false, err
		}

		exists, err := d.store.Exists(ctx, post.Shortcode)
		if err != nil {
			return false, fmt.Errorf("checking %s: %w", post.Shortcode, err)
		}

		if !exists {
			if err := d.store.Insert(ctx, post); err != nil {
				return false, err
			}
			res.Inserted++
			d.observer.PostReconciled(post, OutcomeInserted)

			summary, err := d.downloadMedia(ctx, post, res)
			if err != nil {
				return false, err
			}
			if d.opts.NewFilesOnly && summary.Existing > 0 {
				res.Processed++
				res.Cursor = post.Cursor
				d.logger.InfoWithFields("Reached a downloaded post, stopping", map[string]interface{}{
					"shortcode": post.Shortcode,
				})
				return false, nil
			}
		} else {
			outcome, err := d.reconcileLikes(ctx, post)
			if err != nil {
				return false, err
			}
			if outcome == OutcomeUpdated {
				res.Updated++
			}
			d.observer.PostReconciled(post, outcome)

			if d.opts.Backfill {
				if _, err := d.downloadMedia(ctx, post, res); err != nil {
					return false, err
				}
			}
		}

		res.Processed++
		res.Cursor = post.Cursor

		if exists && d.opts.NewOnly {
			d.logger.InfoWithFields("Reached a known post, stopping", map[string]interface{}{
				"shortcode": post.Shortcode,
			})
			return false, nil
		}
	}

	return true, nil
}

func (d *Driver) reconcileLikes(ctx context.Context, post models.Post) (Outcome, error) {
	stored, err := d.store.Likes(ctx, post.Shortcode)
	if err != nil {
		return "", fmt.Errorf("reading likes of %s: %w", post.Shortcode, err)
	}
	if stored == post.Likes {
		return OutcomeUnchanged, nil
	}

	if err := d.store.UpdateLikes(ctx, post.Shortcode, post.Likes); err != nil {
		return "", err
	}

	d.logger.DebugWithFields("Likes changed", map[string]interface{}{
		"shortcode": post.Shortcode,
		"old":       stored,
		"new":       post.Likes,
	})
	return OutcomeUpdated, nil
}

func (d *Driver) downloadMedia(ctx context.Context, post models.Post, res *Result) (downloader.Summary, error) {
	if d.media == nil || d.opts.MetadataOnly {
		return downloader.Summary{}, nil
	}

	summary, err := d.media.DownloadPost(ctx, post)
	res.Downloaded += summary.Downloaded
	return summary, err
}

func (d *Driver) startCheckpoint() *checkpoint.Checkpoint {
	if d.checkpoints == nil {
		return nil
	}

	if d.opts.Resume {
		cp, err := d.checkpoints.Load()
		if err != nil {
			d.logger.WithError(err).Warn("Failed to load checkpoint, starting from the top")
		}
		if cp != nil {
			return cp
		}
	}

	cp, err := d.checkpoints.Create()
	if err != nil {
		d.logger.WithError(err).Warn("Failed to create checkpoint")
		return nil
	}
	return cp
}

func (d *Driver) saveCheckpoint(cp *checkpoint.Checkpoint, res Result) {
	if cp == nil {
		return
	}
	if err := d.checkpoints.UpdateProgress(cp, res.Cursor, res.Pages, res.Processed); err != nil {
		d.logger.WithError(err).Warn("Failed to update checkpoint progress")
	}
}

func (d *Driver) done(res Result) (Result, error) {
	res.State = StateDone

	if d.checkpoints != nil {
		if err := d.checkpoints.Delete(); err != nil {
			d.logger.WithError(err).Warn("Failed to delete checkpoint")
		}
	}

	d.logger.InfoWithFields("Scrape complete", map[string]interface{}{
		"pages":      res.Pages,
		"processed":  res.Processed,
		"inserted":   res.Inserted,
		"updated":    res.Updated,
		"downloaded": res.Downloaded,
	})
	d.observer.Finished(res)
	return res, nil
}

func (d *Driver) abort(res Result, err error) (Result, error) {
	res.State = StateAbort
	d.logger.WarnWithFields("Scrape aborted", map[string]interface{}{
		"pages":      res.Pages,
		"processed":  res.Processed,
		"error":      err.Error(),
		"error_type": string(errs.TypeOf(err)),
	})
	return res, err
}
