package downloader

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/h2non/filetype/types"
	errs "instadb/pkg/errors"
	"instadb/pkg/instagram"
	"instadb/pkg/logger"
	"instadb/pkg/metadata"
	"instadb/pkg/models"
	"instadb/pkg/ratelimit"
	"instadb/pkg/retry"
	"instadb/pkg/storage"
)

// MediaClient streams a media asset
type MediaClient interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// MediaStorage names and persists media files
type MediaStorage interface {
	Filename(shortcode string, slide int, ext string) string
	Path(name string) string
	Exists(name string) bool
	Save(r io.Reader, name string) (types.Type, error)
}

// Options controls which media of a post are fetched
type Options struct {
	Account    string
	MinLikes   int
	OnlyPhotos bool
	OnlyVideos bool
	// Refresh downloads files again even when they already exist
	Refresh bool
	Tags    []string
	// RetryAttempts is the number of extra attempts per file
	RetryAttempts int
	Backoff       retry.BackoffStrategy
}

// Job is one media file of a post
type Job struct {
	URL       string
	Shortcode string
	Filename  string
	Ext       string
}

// Summary counts the outcome of one post's media
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
	// Existing counts the skipped files that were already on disk
	Existing int
}

func (s *Summary) add(o Summary) {
	s.Downloaded += o.Downloaded
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.Existing += o.Existing
}

// Downloader runs the media step for one post at a time
type Downloader struct {
	client   MediaClient
	storage  MediaStorage
	pacer    ratelimit.Limiter
	embedder metadata.Embedder
	opts     Options
	logger   logger.Logger
}

// New creates a Downloader. A nil pacer or embedder disables that step.
func New(
	client MediaClient,
	store MediaStorage,
	pacer ratelimit.Limiter,
	embedder metadata.Embedder,
	opts Options,
	log logger.Logger,
) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	if pacer == nil {
		pacer = ratelimit.NewDelay(0, 0)
	}
	if embedder == nil {
		embedder = metadata.Nop{}
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.NewErrorTypeBackoff()
	}

	return &Downloader{
		client:   client,
		storage:  store,
		pacer:    pacer,
		embedder: embedder,
		opts:     opts,
		logger:   log,
	}
}

// Jobs lists the files of post, carousel slides numbered from 1. Slides
// removed by the type filters still take their number.
func (d *Downloader) Jobs(post models.Post) []Job {
	if post.Likes < d.opts.MinLikes {
		return nil
	}

	var jobs []Job
	for i, url := range post.MediaURLs {
		ext := storage.Extension(url)
		if d.opts.OnlyPhotos && ext != "jpg" {
			continue
		}
		if d.opts.OnlyVideos && ext != "mp4" {
			continue
		}

		slide := 0
		if post.Type == models.MediaTypeCarousel {
			slide = i + 1
		}

		jobs = append(jobs, Job{
			URL:       url,
			Shortcode: post.Shortcode,
			Filename:  d.storage.Filename(post.Shortcode, slide, ext),
			Ext:       ext,
		})
	}
	return jobs
}

// DownloadPost fetches every wanted file of post. Per-file failures are
// logged and counted; only cancellation is returned as an error.
func (d *Downloader) DownloadPost(ctx context.Context, post models.Post) (Summary, error) {
	var summary Summary

	jobs := d.Jobs(post)
	summary.Skipped = len(post.MediaURLs) - len(jobs)

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := d.process(ctx, post, job)
		summary.add(result)
		if err != nil {
			return summary, err
		}
	}

	return summary, nil
}

func (d *Downloader) process(ctx context.Context, post models.Post, job Job) (Summary, error) {
	if !d.opts.Refresh && d.storage.Exists(job.Filename) {
		d.logger.DebugWithFields("File already exists", map[string]interface{}{
			"file": job.Filename,
		})
		return Summary{Skipped: 1, Existing: 1}, nil
	}

	start := time.Now()
	err := retry.Do(ctx, func(ctx context.Context) error {
		return d.fetch(ctx, job)
	}, retry.Config{
		MaxAttempts: d.opts.RetryAttempts + 1,
		Backoff:     d.opts.Backoff,
		Logger:      d.logger.WithField("file", job.Filename),
	})

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Summary{}, err
		}
		logger.LogDownload(d.logger, job.Shortcode, job.Filename, err)
		return Summary{Failed: 1}, nil
	}

	logger.LogDownload(d.logger, job.Shortcode, job.Filename, nil)
	d.logger.DebugWithFields("Saved media", map[string]interface{}{
		"file":        job.Filename,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	d.embed(ctx, post, job)

	// the file delay follows every successful download
	if err := d.pacer.Wait(ctx); err != nil {
		return Summary{Downloaded: 1}, err
	}
	return Summary{Downloaded: 1}, nil
}

func (d *Downloader) fetch(ctx context.Context, job Job) error {
	body, err := d.client.Download(ctx, job.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	kind, err := d.storage.Save(body, job.Filename)
	if err != nil {
		return err
	}

	if kind.Extension != "" && kind.Extension != job.Ext {
		d.logger.WarnWithFields("Media content does not match its extension", map[string]interface{}{
			"file":    job.Filename,
			"sniffed": kind.Extension,
		})
	}
	return nil
}

func (d *Downloader) embed(ctx context.Context, post models.Post, job Job) {
	req := metadata.Request{
		Account:   d.opts.Account,
		Path:      d.storage.Path(job.Filename),
		Date:      post.Date,
		Shortcode: post.Shortcode,
		PostURL:   instagram.PostURL(post.Shortcode),
		Caption:   post.CaptionText(),
		Location:  post.LocationName(),
		Tags:      d.opts.Tags,
	}

	if err := d.embedder.Embed(ctx, req); err != nil {
		d.logger.WarnWithFields("Failed to embed metadata", map[string]interface{}{
			"file":  job.Filename,
			"error": err.Error(),
			"type":  string(errs.TypeOf(err)),
		})
	}
}
