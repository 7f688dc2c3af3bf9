package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"instadb/pkg/models"
	"instadb/pkg/scraper"
)

// StatusTracker prints one line per page and a summary when the run ends.
// It implements scraper.Observer.
type StatusTracker struct {
	mu        sync.Mutex
	out       io.Writer
	account   string
	startTime time.Time
	page      int
	inserted  int
	updated   int
	unchanged int
	verbose   bool
}

// NewStatusTracker creates a tracker writing to out
func NewStatusTracker(out io.Writer, account string, verbose bool) *StatusTracker {
	return &StatusTracker{
		out:       out,
		account:   account,
		startTime: time.Now(),
		verbose:   verbose,
	}
}

func (st *StatusTracker) PageStarted(page int, cursor string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.page = page
	if cursor == "" {
		fmt.Fprintf(st.out, "%s %s page %d\n", Magenta("[SCANNING]"), st.account, page)
		return
	}
	fmt.Fprintf(st.out, "%s %s page %d %s\n", Magenta("[SCANNING]"), st.account, page, Dim("after "+cursor))
}

func (st *StatusTracker) PostReconciled(post models.Post, outcome scraper.Outcome) {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch outcome {
	case scraper.OutcomeInserted:
		st.inserted++
		fmt.Fprintf(st.out, "  %s %s %s\n", Green("+"), post.Shortcode, Dim(post.Date))
	case scraper.OutcomeUpdated:
		st.updated++
		fmt.Fprintf(st.out, "  %s %s likes=%d\n", Yellow("~"), post.Shortcode, post.Likes)
	default:
		st.unchanged++
		if st.verbose {
			fmt.Fprintf(st.out, "  %s %s\n", Dim("="), post.Shortcode)
		}
	}
}

func (st *StatusTracker) Finished(result scraper.Result) {
	st.mu.Lock()
	defer st.mu.Unlock()

	fmt.Fprintf(st.out, "%s %s: %d pages, %d posts (%d new, %d updated), %d files in %s\n",
		Green("[DONE]"),
		st.account,
		result.Pages,
		result.Processed,
		result.Inserted,
		result.Updated,
		result.Downloaded,
		st.elapsed().Round(time.Second))
}

func (st *StatusTracker) elapsed() time.Duration {
	return time.Since(st.startTime)
}

// Counts returns the inserted, updated and unchanged totals seen so far
func (st *StatusTracker) Counts() (inserted, updated, unchanged int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.inserted, st.updated, st.unchanged
}

// Rate returns processed posts per minute
func (st *StatusTracker) Rate() float64 {
	st.mu.Lock()
	defer st.mu.Unlock()

	minutes := st.elapsed().Minutes()
	if minutes == 0 {
		return 0
	}
	return float64(st.inserted+st.updated+st.unchanged) / minutes
}
