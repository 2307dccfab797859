// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// fetchTimeout bounds each store call issued by the dashboard.
const fetchTimeout = 5 * time.Second

type tickMsg time.Time

// snapshotMsg carries one poll result into the model.
type snapshotMsg struct {
	snapshot snapshot
	err      error
}

// actionMsg reports the outcome of a retry or clear action.
type actionMsg struct {
	notice string
	err    error
}

// Model is the dashboard state. All store access happens in commands;
// Update and View only touch the last snapshot.
type Model struct {
	source   dashboardSource
	keys     KeyMap
	styles   styles
	addr     string
	interval time.Duration

	width  int
	height int
	ready  bool

	snapshot   snapshot
	fetched    bool
	err        error
	notice     string
	paused     bool
	confirming bool

	deadLetters viewport.Model
}

func newModel(source dashboardSource, addr string, interval time.Duration) Model {
	return Model{
		source:   source,
		keys:     DefaultKeyMap,
		styles:   newStyles(),
		addr:     addr,
		interval: interval,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetch() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		snap, err := source.Snapshot(ctx)
		return snapshotMsg{snapshot: snap, err: err}
	}
}

func (m Model) retryAll() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		n, err := source.RequeueFailed(ctx, failedPageSize)
		if err != nil {
			return actionMsg{err: fmt.Errorf("requeueing failed operations: %w", err)}
		}
		return actionMsg{notice: fmt.Sprintf("requeued %d operation(s)", n)}
	}
}

func (m Model) clearFailed() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		n, err := source.ClearFailed(ctx)
		if err != nil {
			return actionMsg{err: fmt.Errorf("clearing dead letters: %w", err)}
		}
		return actionMsg{notice: fmt.Sprintf("cleared %d operation(s)", n)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch message := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		m.ready = true
		m.deadLetters.Width = message.Width
		m.deadLetters.Height = m.deadLetterHeight()
		m.refreshDeadLetters()
		return m, nil

	case tickMsg:
		if m.paused {
			return m, m.tick()
		}
		m.notice = ""
		return m, tea.Batch(m.fetch(), m.tick())

	case snapshotMsg:
		if message.err != nil {
			m.err = message.err
			return m, nil
		}
		m.err = nil
		m.snapshot = message.snapshot
		m.fetched = true
		m.refreshDeadLetters()
		return m, nil

	case actionMsg:
		if message.err != nil {
			m.err = message.err
			return m, nil
		}
		m.notice = message.notice
		return m, m.fetch()

	case tea.KeyMsg:
		return m.handleKey(message)
	}
	return m, nil
}

func (m Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The confirmation prompt is modal: y executes, anything else
	// cancels.
	if m.confirming {
		m.confirming = false
		if key.Matches(message, m.keys.Confirm) {
			return m, m.clearFailed()
		}
		return m, nil
	}

	switch {
	case key.Matches(message, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(message, m.keys.Pause):
		m.paused = !m.paused
		return m, nil

	case key.Matches(message, m.keys.RetryAll):
		if m.snapshot.stats.Failed == 0 {
			m.notice = "nothing to retry"
			return m, nil
		}
		return m, m.retryAll()

	case key.Matches(message, m.keys.ClearFailed):
		if m.snapshot.stats.Failed == 0 {
			m.notice = "nothing to clear"
			return m, nil
		}
		m.confirming = true
		return m, nil

	case key.Matches(message, m.keys.ScrollUp):
		m.deadLetters.HalfViewUp()
		return m, nil

	case key.Matches(message, m.keys.ScrollDown):
		m.deadLetters.HalfViewDown()
		return m, nil
	}
	return m, nil
}

// refreshDeadLetters re-renders the viewport content, keeping the
// scroll offset in bounds when the list shrinks.
func (m *Model) refreshDeadLetters() {
	offset := m.deadLetters.YOffset
	m.deadLetters.SetContent(m.renderDeadLetters())
	maxOffset := m.deadLetters.TotalLineCount() - m.deadLetters.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		offset = maxOffset
	}
	m.deadLetters.SetYOffset(offset)
}
