// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/rumble/pkg/adapter"
	"github.com/Thermoquad/rumble/pkg/elm"
	"github.com/Thermoquad/rumble/pkg/sound"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	monitorRefresh = 200 * time.Millisecond
	maxLogEntries  = 100
	historyRows    = 8
	gainBarWidth   = 24
	volumeStep     = 0.05
)

// Focus states
const (
	focusNone = iota
	focusRawInput
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// logEntry is one line in the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	ctx      context.Context
	session  *adapter.Session
	engine   *sound.Engine
	connInfo string

	phase    adapter.Phase
	lastPoll adapter.PollResult
	hasPoll  bool
	frame    sound.Frame
	stats    adapter.Counters
	history  []adapter.Transaction
	eventLog []logEntry
	rawInput textinput.Model
	focus    int
	rawBusy  bool
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type phaseMsg adapter.Phase

type pollMsg adapter.PollResult

type logMsg struct {
	text    string
	isError bool
}

type rawResultMsg struct {
	command  string
	response string
	err      error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(ctx context.Context, s *adapter.Session, e *sound.Engine, connInfo string) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "ATI"
	ti.CharLimit = 32
	ti.Width = 24
	ti.Prompt = "> "

	return monitorModel{
		ctx:      ctx,
		session:  s,
		engine:   e,
		connInfo: connInfo,
		phase:    s.Phase(),
		eventLog: make([]logEntry, 0),
		rawInput: ti,
		focus:    focusNone,
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(monitorRefresh, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		if f, ok := m.engine.Last(); ok {
			m.frame = f
		}
		m.stats = m.session.Stats()
		m.history = m.session.History().Snapshot()
		return m, monitorTickCmd()

	case phaseMsg:
		m.phase = adapter.Phase(msg)
		isError := m.phase.Kind == adapter.PhaseFailed
		m.addLogEntry("Phase: "+m.phase.String(), isError)

	case pollMsg:
		res := adapter.PollResult(msg)
		if res.HealStarted {
			m.addLogEntry("Adapter unresponsive - re-initializing", true)
		}
		if m.hasPoll && res.Source != m.lastPoll.Source {
			m.addLogEntry("Speed source: "+res.Source.String(), false)
		}
		m.lastPoll = res
		m.hasPoll = true

	case logMsg:
		m.addLogEntry(msg.text, msg.isError)

	case rawResultMsg:
		m.rawBusy = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.command, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s -> %s", msg.command, elm.FormatResponse(msg.response)), false)
		}
	}

	if m.focus == focusRawInput {
		var cmd tea.Cmd
		m.rawInput, cmd = m.rawInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		if m.focus == focusRawInput {
			m.focus = focusNone
			m.rawInput.Blur()
		} else {
			m.focus = focusRawInput
			cmd := m.rawInput.Focus()
			return m, cmd
		}
		return m, nil
	}

	if m.focus == focusRawInput {
		switch msg.String() {
		case "esc":
			m.focus = focusNone
			m.rawInput.Blur()
			return m, nil
		case "enter":
			return m.sendRaw()
		}
		var cmd tea.Cmd
		m.rawInput, cmd = m.rawInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "+", "=":
		m.engine.SetVolume(m.engine.Volume() + volumeStep)
	case "-", "_":
		m.engine.SetVolume(m.engine.Volume() - volumeStep)
	case "r":
		m.session.Statistics().Reset()
		m.addLogEntry("Statistics reset", false)
	}
	return m, nil
}

// sendRaw runs the typed command through the session's queue
func (m monitorModel) sendRaw() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.rawInput.Value())
	if text == "" || m.rawBusy {
		return m, nil
	}
	m.rawInput.SetValue("")
	m.rawBusy = true

	s, ctx := m.session, m.ctx
	return m, func() tea.Msg {
		resp, err := s.Raw(ctx, text)
		return rawResultMsg{command: text, response: resp, err: err}
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("RUMBLE - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Tab: command | +/-: volume | r: reset stats | q: quit", m.connInfo)))
	s.WriteString("\n\n")

	s.WriteString(m.renderPhase())
	s.WriteString("\n\n")

	left := boxStyle.Render(m.renderTelemetry())
	right := boxStyle.Render(m.renderStats())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	s.WriteString("\n")

	s.WriteString(boxStyle.Render(m.renderLayers()))
	s.WriteString("\n")

	s.WriteString(boxStyle.Width(max(m.width-4, 40)).Render(m.renderHistory()))
	s.WriteString("\n")

	s.WriteString(m.rawInput.View())
	if m.rawBusy {
		s.WriteString(headerStyle.Render("  (waiting)"))
	}
	s.WriteString("\n\n")

	s.WriteString(m.renderLog())
	return s.String()
}

func (m monitorModel) renderPhase() string {
	text := m.phase.String()
	switch m.phase.Kind {
	case adapter.PhaseReady:
		return valueStyle.Render("✓ " + text)
	case adapter.PhaseFailed:
		return errorStyle.Render("✗ " + text)
	default:
		return warningStyle.Render("⏳ " + text)
	}
}

func (m monitorModel) renderTelemetry() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Telemetry"))
	b.WriteString("\n")

	sample, ok := m.session.Register().Load()
	if !ok {
		b.WriteString(headerStyle.Render("(no telemetry yet)"))
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Motor:"), valueStyle.Render(fmt.Sprintf("%d rpm", sample.Speed)))
	if sample.HasVehicleSpeed {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Road: "), valueStyle.Render(fmt.Sprintf("%d km/h", sample.VehicleSpeed)))
	}
	if age, ok := m.session.Register().Age(); ok {
		style := valueStyle
		if age > time.Second {
			style = warningStyle
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Age:  "), style.Render(age.Round(time.Millisecond).String()))
	}
	poller := m.session.Poller()
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("From: "), poller.Source())
	timeouts := poller.ConsecutiveTimeouts()
	if timeouts > 0 || poller.Healing() {
		line := fmt.Sprintf("%d consecutive timeouts", timeouts)
		if poller.Healing() {
			line += " (re-initializing)"
		}
		b.WriteString(warningStyle.Render(line))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m monitorModel) renderStats() string {
	st := m.stats
	var okPercent float64
	if st.TotalTransactions > 0 {
		okPercent = float64(st.Successful) * 100.0 / float64(st.TotalTransactions)
	}
	errors := st.TotalTransactions - st.Successful

	var b strings.Builder
	b.WriteString(labelStyle.Render("Statistics"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", st.TotalTransactions)),
		labelStyle.Render("OK:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.Successful, okPercent)))
	if errors > 0 {
		fmt.Fprintf(&b, "%s %s  %s %d  %s %d  %s %d\n",
			labelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", errors)),
			headerStyle.Render("timeout"), st.Timeouts,
			headerStyle.Render("parse"), st.ParseFailures,
			headerStyle.Render("no data"), st.NoData)
	}
	if st.Heals > 0 || st.Reconnects > 0 || st.StaleResponses > 0 {
		fmt.Fprintf(&b, "%s %d  %s %d  %s %d\n",
			headerStyle.Render("heals"), st.Heals,
			headerStyle.Render("reconnects"), st.Reconnects,
			headerStyle.Render("stale"), st.StaleResponses)
	}
	errRate := valueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	if st.ErrorRate > 0 {
		errRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	}
	fmt.Fprintf(&b, "%s %s   %s %s",
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f tx/s", st.TransactionRate)),
		labelStyle.Render("Errors:"), errRate)
	return b.String()
}

func (m monitorModel) renderLayers() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s %s  %s %s  %s %s\n",
		labelStyle.Render("Sound"),
		headerStyle.Render("pitch"), valueStyle.Render(fmt.Sprintf("%+.0f¢", m.frame.PitchCents)),
		headerStyle.Render("loudness"), valueStyle.Render(fmt.Sprintf("%.2f", m.frame.Loudness)),
		headerStyle.Render("volume"), valueStyle.Render(fmt.Sprintf("%.0f%%", m.engine.Volume()*100)))

	if len(m.frame.Layers) == 0 {
		b.WriteString(headerStyle.Render("(engine idle)"))
		return b.String()
	}
	for _, l := range m.frame.Layers {
		fmt.Fprintf(&b, "%-14s %s %5.2f  x%.2f\n",
			filepath.Base(l.Source), gainBar(l.Gain, gainBarWidth), l.Gain, l.Rate)
	}
	return strings.TrimRight(b.String(), "\n")
}

// gainBar draws gain in [0, 1] as a fixed-width bar
func gainBar(gain float64, width int) string {
	filled := int(gain*float64(width) + 0.5)
	filled = max(0, min(width, filled))
	return valueStyle.Render(strings.Repeat("█", filled)) +
		headerStyle.Render(strings.Repeat("░", width-filled))
}

func (m monitorModel) renderHistory() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Recent Transactions"))
	b.WriteString("\n")

	if len(m.history) == 0 {
		b.WriteString(headerStyle.Render("  (none yet)"))
		return b.String()
	}

	start := max(0, len(m.history)-historyRows)
	for _, tx := range m.history[start:] {
		ts := headerStyle.Render(tx.At.Format("15:04:05.000"))
		line := fmt.Sprintf("%-8s %5dms  %s", tx.Command, tx.Duration.Milliseconds(), elm.FormatResponse(tx.Response))
		if tx.Err {
			line = fmt.Sprintf("%-8s %5dms  %s", tx.Command, tx.Duration.Milliseconds(), tx.Kind)
			fmt.Fprintf(&b, "%s %s\n", ts, errorStyle.Render(line))
			continue
		}
		if limit := m.width - 20; limit > 20 && len(line) > limit {
			line = line[:limit-1] + "…"
		}
		fmt.Fprintf(&b, "%s %s\n", ts, line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m monitorModel) renderLog() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Recent Events:"))
	b.WriteString("\n")

	if len(m.eventLog) == 0 {
		b.WriteString(headerStyle.Render("  (no events yet)"))
		return b.String()
	}

	rows := max(3, m.height-34)
	start := max(0, len(m.eventLog)-rows)
	for _, entry := range m.eventLog[start:] {
		timestamp := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", timestamp, warningStyle.Render("ℹ "+entry.message))
		}
	}
	return b.String()
}
