package scraper

import (
	"context"

	"instadb/internal/downloader"
	"instadb/pkg/instagram"
	"instadb/pkg/models"
)

// PageFetcher retrieves one page of the media feed
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (*instagram.Page, error)
}

// PageFetcherFunc adapts a function to PageFetcher
type PageFetcherFunc func(ctx context.Context, cursor string) (*instagram.Page, error)

func (f PageFetcherFunc) FetchPage(ctx context.Context, cursor string) (*instagram.Page, error) {
	return f(ctx, cursor)
}

// MediaDownloader runs the media step for a single post
type MediaDownloader interface {
	DownloadPost(ctx context.Context, post models.Post) (downloader.Summary, error)
}

// Observer is told about progress as the driver runs
type Observer interface {
	PageStarted(page int, cursor string)
	PostReconciled(post models.Post, outcome Outcome)
	Finished(result Result)
}

type nopObserver struct{}

func (nopObserver) PageStarted(int, string)             {}
func (nopObserver) PostReconciled(models.Post, Outcome) {}
func (nopObserver) Finished(Result)                     {}
