// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/devbroker/broker"
)

// maxRetained bounds the in-memory decision history.
const maxRetained = 500

// keyMap defines the monitor key bindings.
type keyMap struct {
	Quit        key.Binding
	Pause       key.Binding
	Filter      key.Binding
	FilterClear key.Binding
}

var defaultKeyMap = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Pause: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "pause"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	FilterClear: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "clear filter"),
	),
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Faint(true)
	pausedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	footerStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)

	verdictStyles = map[string]lipgloss.Style{
		"allow":               lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"allow-with-detach":   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"allow-with-lockdown": lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		"deny":                lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		"ignore":              lipgloss.NewStyle().Faint(true),
	}
)

// decisionMsg delivers one stream event into the update loop.
type decisionMsg broker.DecisionEvent

// streamEndedMsg reports the watch stream terminating.
type streamEndedMsg struct{ err error }

type model struct {
	events    <-chan broker.DecisionEvent
	streamErr <-chan error

	decisions []broker.DecisionEvent
	paused    bool
	filtering bool
	filter    textinput.Model
	keys      keyMap
	width     int
	height    int

	// fatal is surfaced to main after the program exits.
	fatal error
}

func newModel(events <-chan broker.DecisionEvent, streamErr <-chan error) model {
	filter := textinput.New()
	filter.Prompt = "filter: "
	filter.Placeholder = "path, rule, or verdict"

	return model{
		events:    events,
		streamErr: streamErr,
		filter:    filter,
		keys:      defaultKeyMap,
		width:     80,
		height:    24,
	}
}

// waitForEvent blocks on the decision stream (or its termination) and
// converts the result to a message.
func (m model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case event := <-m.events:
			return decisionMsg(event)
		case err := <-m.streamErr:
			return streamEndedMsg{err: err}
		}
	}
}

func (m model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case decisionMsg:
		if !m.paused {
			m.decisions = append(m.decisions, broker.DecisionEvent(msg))
			if len(m.decisions) > maxRetained {
				m.decisions = m.decisions[len(m.decisions)-maxRetained:]
			}
		}
		return m, m.waitForEvent()

	case streamEndedMsg:
		m.fatal = fmt.Errorf("decision stream ended: %w", msg.err)
		return m, tea.Quit

	case tea.KeyMsg:
		if m.filtering {
			switch {
			case msg.Type == tea.KeyEnter:
				m.filtering = false
				m.filter.Blur()
			case key.Matches(msg, m.keys.FilterClear):
				m.filtering = false
				m.filter.SetValue("")
				m.filter.Blur()
			default:
				var cmd tea.Cmd
				m.filter, cmd = m.filter.Update(msg)
				return m, cmd
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Filter):
			m.filtering = true
			return m, m.filter.Focus()
		case key.Matches(msg, m.keys.FilterClear):
			m.filter.SetValue("")
		}
	}

	return m, nil
}

func (m model) View() string {
	var view strings.Builder

	title := "devbroker decisions"
	if m.paused {
		title += "  " + pausedStyle.Render("[paused]")
	}
	view.WriteString(titleStyle.Render(title))
	view.WriteString("\n")

	if m.filtering || m.filter.Value() != "" {
		view.WriteString(m.filter.View())
		view.WriteString("\n")
	}

	view.WriteString(headerStyle.Render(fmt.Sprintf(
		"%-8s  %-24s  %-20s  %-18s  %s",
		"TIME", "PATH", "VERDICT", "RULE", "DEVICE")))
	view.WriteString("\n")

	// Newest at the bottom; show as many rows as fit.
	rows := m.visibleRows()
	available := m.height - 4
	if available < 1 {
		available = 1
	}
	if len(rows) > available {
		rows = rows[len(rows)-available:]
	}
	for _, row := range rows {
		view.WriteString(row)
		view.WriteString("\n")
	}

	view.WriteString(footerStyle.Render("space pause  / filter  esc clear  q quit"))
	return view.String()
}

func (m model) visibleRows() []string {
	needle := strings.ToLower(m.filter.Value())
	var rows []string
	for _, event := range m.decisions {
		if needle != "" && !eventMatches(event, needle) {
			continue
		}
		style, ok := verdictStyles[event.Verdict]
		if !ok {
			style = lipgloss.NewStyle()
		}
		rows = append(rows, fmt.Sprintf(
			"%-8s  %-24s  %-20s  %-18s  %s %s",
			event.Time.Format(time.TimeOnly),
			truncate(event.Path, 24),
			style.Render(fmt.Sprintf("%-20s", event.Verdict)),
			truncate(event.Rule, 18),
			event.Kind,
			event.Devnum,
		))
	}
	return rows
}

func eventMatches(event broker.DecisionEvent, needle string) bool {
	return strings.Contains(strings.ToLower(event.Path), needle) ||
		strings.Contains(strings.ToLower(event.Rule), needle) ||
		strings.Contains(strings.ToLower(event.Verdict), needle)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 1 {
		return s[:limit]
	}
	return s[:limit-1] + "…"
}
