package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"instadb/pkg/scraper"
)

// PageMsg is sent when the driver starts fetching a page
type PageMsg struct {
	Page   int
	Cursor string
}

// PostMsg is sent after a post was reconciled against the store
type PostMsg struct {
	Shortcode string
	Date      string
	Likes     int
	Outcome   scraper.Outcome
}

// FinishedMsg is sent once the run reached its final state
type FinishedMsg struct {
	Result scraper.Result
	Err    error
}

// feedLine is one entry of the recent posts panel
type feedLine struct {
	at      time.Time
	post    PostMsg
	outcome string
}

// Model is the dashboard state for a single account run
type Model struct {
	account string
	cancel  func()
	spinner spinner.Model

	page      int
	cursor    string
	inserted  int
	updated   int
	unchanged int

	recent    []feedLine
	maxRecent int

	started  time.Time
	finished *FinishedMsg
	quitting bool
	width    int
}

// NewModel creates the dashboard. cancel is invoked when the user quits.
func NewModel(account string, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	return Model{
		account:   account,
		cancel:    cancel,
		spinner:   s,
		maxRecent: 12,
		started:   time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case PageMsg:
		m.page = msg.Page
		m.cursor = msg.Cursor
		return m, nil

	case PostMsg:
		switch msg.Outcome {
		case scraper.OutcomeInserted:
			m.inserted++
		case scraper.OutcomeUpdated:
			m.updated++
		default:
			m.unchanged++
		}
		m.recent = append(m.recent, feedLine{at: time.Now(), post: msg, outcome: string(msg.Outcome)})
		if len(m.recent) > m.maxRecent {
			m.recent = m.recent[len(m.recent)-m.maxRecent:]
		}
		return m, nil

	case FinishedMsg:
		m.finished = &msg
		return m, tea.Quit
	}

	return m, nil
}

// Counts returns the inserted, updated and unchanged totals
func (m Model) Counts() (inserted, updated, unchanged int) {
	return m.inserted, m.updated, m.unchanged
}
