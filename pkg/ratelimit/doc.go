// Package ratelimit paces requests to the feed and the media CDN.
//
// Pacing is a mandatory sleep between consecutive requests rather than a
// token budget: one delay between pages and another between media files.
//
//	pages := ratelimit.NewDelay(cfg.RateLimit.RequestDelay, cfg.RateLimit.Jitter)
//	if err := pages.Wait(ctx); err != nil {
//	    return err // interrupted
//	}
//
// Tests swap the sleep for a Recorder so no real time passes.
package ratelimit
