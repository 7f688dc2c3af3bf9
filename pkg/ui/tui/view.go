package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const logo = "instadb"

func (m Model) View() string {
	if m.quitting && m.finished == nil {
		return "Stopping, the checkpoint keeps the current cursor.\n"
	}

	sections := []string{
		logoStyle.Render(logo + "  " + m.account),
		m.renderStats(),
		m.renderRecent(),
	}

	if m.finished != nil {
		sections = append(sections, m.renderFinished())
	} else {
		sections = append(sections, helpStyle.Render("q to stop"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) renderStats() string {
	status := m.spinner.View() + " fetching"
	if m.finished != nil {
		status = "finished"
	}

	rows := []string{
		titleStyle.Render("PROGRESS") + " " + status,
		stat("Page", fmt.Sprintf("%d", m.page)),
		stat("Cursor", orDash(m.cursor)),
		stat("New", fmt.Sprintf("%d", m.inserted)),
		stat("Updated", fmt.Sprintf("%d", m.updated)),
		stat("Unchanged", fmt.Sprintf("%d", m.unchanged)),
		stat("Elapsed", time.Since(m.started).Round(time.Second).String()),
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) renderRecent() string {
	rows := []string{titleStyle.Render("RECENT POSTS")}
	if len(m.recent) == 0 {
		rows = append(rows, unchangedStyle.Render("waiting for the first page"))
	}
	for _, line := range m.recent {
		text := fmt.Sprintf("%-9s %-14s %s likes=%d", line.outcome, line.post.Shortcode, line.post.Date, line.post.Likes)
		rows = append(rows, outcomeStyle(line.outcome).Render(text))
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) renderFinished() string {
	if m.finished.Err != nil {
		return errorStyle.Render("Aborted: " + m.finished.Err.Error())
	}
	r := m.finished.Result
	return insertedStyle.Render(fmt.Sprintf("Done: %d pages, %d posts, %d files", r.Pages, r.Processed, r.Downloaded))
}

func stat(label, value string) string {
	return statsLabelStyle.Render(fmt.Sprintf("%-10s", label)) + statsValueStyle.Render(value)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
