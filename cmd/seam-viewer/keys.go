// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard key bindings.
type KeyMap struct {
	// Scrolling moves the dead-letter pane by half a page.
	ScrollUp   key.Binding
	ScrollDown key.Binding

	// Pause stops polling; the store is left untouched until resume.
	Pause key.Binding

	// Operator actions against the dead-letter list.
	RetryAll    key.Binding
	ClearFailed key.Binding // Arms the confirmation prompt.
	Confirm     key.Binding // Executes the armed clear.

	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	ScrollUp: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "scroll down"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause"),
	),
	RetryAll: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry all"),
	),
	ClearFailed: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear failed"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "confirm"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
