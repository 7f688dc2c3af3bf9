package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"instadb/pkg/models"
	"instadb/pkg/scraper"
)

// TUI runs the dashboard program and implements scraper.Observer
type TUI struct {
	program *tea.Program
	done    chan error
}

// NewTUI creates a dashboard for account. cancel stops the scrape when the user quits.
func NewTUI(account string, cancel func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(account, cancel)
	return &TUI{
		program: tea.NewProgram(model, opts...),
		done:    make(chan error, 1),
	}
}

// Start runs the program in the background
func (t *TUI) Start() {
	go func() {
		_, err := t.program.Run()
		t.done <- err
	}()
}

// Stop reports the final state and waits for the program to exit
func (t *TUI) Stop(result scraper.Result, err error) error {
	t.program.Send(FinishedMsg{Result: result, Err: err})
	return <-t.done
}

func (t *TUI) PageStarted(page int, cursor string) {
	t.program.Send(PageMsg{Page: page, Cursor: cursor})
}

func (t *TUI) PostReconciled(post models.Post, outcome scraper.Outcome) {
	t.program.Send(PostMsg{
		Shortcode: post.Shortcode,
		Date:      post.Date,
		Likes:     post.Likes,
		Outcome:   outcome,
	})
}

// Finished is a no-op; Stop delivers the result for every final state
func (t *TUI) Finished(scraper.Result) {}
