// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/seam-foundation/seam/reconcile"
)

// chromeRows is the fixed line count around the dead-letter viewport:
// header, health, two stat lines, the pane title and column header,
// two blanks, the bottom separator, and the help bar.
const chromeRows = 10

// styles holds the prebuilt lipgloss styles for the dashboard.
type styles struct {
	title     lipgloss.Style
	faint     lipgloss.Style
	label     lipgloss.Style
	count     lipgloss.Style
	healthy   lipgloss.Style
	degraded  lipgloss.Style
	unhealthy lipgloss.Style
	notice    lipgloss.Style
	errorText lipgloss.Style
	help      lipgloss.Style
	paused    lipgloss.Style
}

// newStyles builds the dashboard styles on a forced ANSI256 profile:
// the output is always a terminal (bubbletea alt screen), so
// auto-detection would only produce uncolored output in test
// environments with no TTY.
func newStyles() styles {
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.ANSI256))
	renderer.SetColorProfile(termenv.ANSI256)

	return styles{
		title:     renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		faint:     renderer.NewStyle().Foreground(lipgloss.Color("241")),
		label:     renderer.NewStyle().Foreground(lipgloss.Color("245")),
		count:     renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		healthy:   renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("114")),
		degraded:  renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		unhealthy: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		notice:    renderer.NewStyle().Foreground(lipgloss.Color("75")),
		errorText: renderer.NewStyle().Foreground(lipgloss.Color("196")),
		help:      renderer.NewStyle().Foreground(lipgloss.Color("240")),
		paused:    renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if !m.fetched {
		lines := []string{m.renderHeader(), ""}
		if m.err != nil {
			lines = append(lines, m.styles.errorText.Render("Error: "+m.err.Error()))
		} else {
			lines = append(lines, m.styles.faint.Render("Waiting for first poll..."))
		}
		return strings.Join(lines, "\n")
	}

	sections := []string{
		m.renderHeader(),
		m.renderHealth(),
		"",
		m.renderCounts(),
		m.renderLifetime(),
		"",
		m.renderDeadLetterTitle(),
		m.renderColumnHeader(),
		m.deadLetters.View(),
		m.styles.faint.Render(strings.Repeat("─", max(m.width, 0))),
		m.renderHelp(),
	}
	return strings.Join(sections, "\n")
}

func (m Model) deadLetterHeight() int {
	return max(m.height-chromeRows, 3)
}

func (m Model) renderHeader() string {
	line := m.styles.title.Render("Seam reconciliation") + "  " + m.styles.faint.Render(m.addr)
	if m.paused {
		line += "  " + m.styles.paused.Render("PAUSED")
	}
	if !m.snapshot.takenAt.IsZero() {
		line += "  " + m.styles.faint.Render("as of "+m.snapshot.takenAt.Format("15:04:05"))
	}
	return line
}

func (m Model) renderHealth() string {
	parts := []string{
		m.styles.label.Render("Overall") + " " + m.renderLevel(m.snapshot.overall()),
		m.styles.label.Render("Queue") + " " + m.renderLevel(m.snapshot.queueCheck.Level),
		m.styles.label.Render("Sync") + " " + m.renderLevel(m.snapshot.syncCheck.Level),
	}
	line := strings.Join(parts, "   ")

	// Show the explanation for the worse subsystem.
	switch {
	case m.snapshot.queueCheck.Level != reconcile.HealthOK &&
		m.snapshot.queueCheck.Level >= m.snapshot.syncCheck.Level:
		line += "  " + m.styles.faint.Render(m.snapshot.queueCheck.Message)
	case m.snapshot.syncCheck.Level != reconcile.HealthOK:
		line += "  " + m.styles.faint.Render(m.snapshot.syncCheck.Message)
	}
	return line
}

func (m Model) renderLevel(level reconcile.HealthLevel) string {
	style := m.styles.healthy
	switch level {
	case reconcile.HealthDegraded:
		style = m.styles.degraded
	case reconcile.HealthUnhealthy:
		style = m.styles.unhealthy
	}
	return style.Render(level.String())
}

func (m Model) stat(label string, value int64) string {
	return m.styles.label.Render(label) + " " + m.styles.count.Render(strconv.FormatInt(value, 10))
}

func (m Model) renderCounts() string {
	stats := m.snapshot.stats
	return strings.Join([]string{
		m.stat("Pending", stats.Pending),
		m.stat("Processing", stats.Processing),
		m.stat("Retrying", stats.Retrying),
		m.stat("Failed", stats.Failed),
	}, "   ")
}

func (m Model) renderLifetime() string {
	stats := m.snapshot.stats
	parts := []string{
		m.stat("Processed", stats.TotalProcessed),
		m.stat("Succeeded", stats.TotalSucceeded),
		m.stat("Retried", stats.TotalRetried),
	}
	if stats.AverageDurationMillis > 0 {
		average := time.Duration(stats.AverageDurationMillis * float64(time.Millisecond))
		parts = append(parts, m.styles.label.Render("Average")+" "+
			m.styles.count.Render(average.Round(time.Millisecond).String()))
	}
	if stats.OldestPendingAge > 0 {
		parts = append(parts, m.styles.label.Render("Oldest pending")+" "+
			m.styles.count.Render(formatAge(stats.OldestPendingAge)))
	}
	return strings.Join(parts, "   ")
}

func (m Model) renderDeadLetterTitle() string {
	title := fmt.Sprintf("Failed operations (%d)", m.snapshot.stats.Failed)
	rule := max(m.width-ansi.StringWidth(title)-1, 0)
	return m.styles.count.Render(title) + " " + m.styles.faint.Render(strings.Repeat("─", rule))
}

func (m Model) renderColumnHeader() string {
	header := fmt.Sprintf("%-30s %-7s %-24s %-8s %-7s %s",
		"ID", "TYPE", "USER", "ATTEMPT", "AGE", "LAST ERROR")
	return m.styles.faint.Render(ansi.Truncate(header, max(m.width, 1), ""))
}

// renderDeadLetters renders the viewport content: one row per
// dead-lettered operation, truncated to the terminal width. Ages are
// relative to the poll time so a paused dashboard stays consistent.
func (m Model) renderDeadLetters() string {
	if len(m.snapshot.failed) == 0 {
		return m.styles.faint.Render("Nothing dead-lettered.")
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	lines := make([]string, 0, len(m.snapshot.failed))
	for _, op := range m.snapshot.failed {
		row := fmt.Sprintf("%-30s %-7s %-24s %-8s %-7s %s",
			op.ID,
			op.Type,
			ansi.Truncate(op.UserID, 24, "…"),
			fmt.Sprintf("%d/%d", op.Attempt, op.MaxAttempts),
			formatAge(m.snapshot.takenAt.Sub(op.CreatedAt)),
			op.LastError)
		lines = append(lines, ansi.Truncate(row, width, "…"))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderHelp() string {
	if m.confirming {
		prompt := fmt.Sprintf("Clear %d failed operation(s)? y confirms, any other key cancels",
			m.snapshot.stats.Failed)
		return m.styles.degraded.Render(prompt)
	}

	pause := "p pause"
	if m.paused {
		pause = "p resume"
	}
	line := m.styles.help.Render(fmt.Sprintf("q quit  %s  r retry all  c clear failed  ↑/↓ scroll", pause))
	switch {
	case m.err != nil:
		line += "  " + m.styles.errorText.Render("Error: "+m.err.Error())
	case m.notice != "":
		line += "  " + m.styles.notice.Render(m.notice)
	}
	return line
}

func formatAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(age.Hours()), int(age.Minutes())%60)
	default:
		days := int(age.Hours()) / 24
		return fmt.Sprintf("%dd%dh", days, int(age.Hours())%24)
	}
}
