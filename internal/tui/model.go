// Package tui renders the live fuzzing dashboard: session state,
// aggregate counters, and the rolling log tail, refreshed on a fixed
// tick from the session controller's snapshots.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
	"github.com/protoseclab/fuzzlab/internal/session"
)

const (
	defaultWidth  = 100
	defaultHeight = 30
	logTailLines  = 12
)

// Model is the dashboard model. It reads from the controller and never
// mutates session state except through Pause/Resume/Stop.
type Model struct {
	ctrl   *session.Controller
	styles Styles

	width  int
	height int

	finished bool
}

// NewModel creates a dashboard bound to a running controller.
func NewModel(ctrl *session.Controller) *Model {
	return &Model{
		ctrl:   ctrl,
		styles: DefaultStyles,
		width:  defaultWidth,
		height: defaultHeight,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if m.ctrl.State() == session.StateCompleted && !m.finished {
			m.finished = true
			return m, tea.Quit
		}
		return m, tickCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.ctrl.Stop(context.Background())
			m.finished = true
			return m, tea.Quit
		case "p":
			switch m.ctrl.State() {
			case session.StateRunning:
				m.ctrl.Pause()
			case session.StatePaused:
				m.ctrl.Resume()
			}
			return m, nil
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	snap := m.ctrl.Snapshot()

	var b strings.Builder
	b.WriteString(m.renderHeader(snap))
	b.WriteString("\n")
	b.WriteString(m.renderCounters(snap))
	b.WriteString("\n")
	b.WriteString(m.renderLogTail())
	b.WriteString("\n")
	b.WriteString(m.styles.Footer.Render(
		m.styles.KeyBinding.Render("p") + m.styles.KeyHint.Render(" pause/resume  ") +
			m.styles.KeyBinding.Render("q") + m.styles.KeyHint.Render(" stop & quit")))
	return b.String()
}

func (m *Model) renderHeader(snap session.Snapshot) string {
	title := m.styles.Title.Render("fuzzlab")
	state := fmt.Sprintf("%s %s", StateIcon(string(snap.State), m.styles), snap.State)
	elapsed := fmt.Sprintf("elapsed %s", formatElapsed(snap.ElapsedSeconds))
	line := fmt.Sprintf("%s  %s  protocol=%s  %s", title, state, snap.Protocol, elapsed)
	if snap.Throughput > 0 {
		line += fmt.Sprintf("  %d pkt/s", snap.Throughput)
	}
	if snap.Crashed {
		line += "  " + m.styles.Error.Render("CRASH DETECTED")
	}
	return line
}

func (m *Model) renderCounters(snap session.Snapshot) string {
	c := snap.Counters
	parts := []string{
		m.styles.Bold.Render(fmt.Sprintf("total %d", c.Total)),
		m.styles.Success.Render(fmt.Sprintf("success %d", c.Success)),
		m.styles.Warning.Render(fmt.Sprintf("timeout %d", c.Timeout)),
		m.styles.Error.Render(fmt.Sprintf("failed %d", c.Failed)),
		m.styles.Error.Render(fmt.Sprintf("crash %d", c.Crash)),
	}
	if snap.Protocol == fuzz.ProtocolMQTT {
		parts = append(parts, m.styles.Info.Render(fmt.Sprintf("diffs %d", snap.DiffCount)))
	}
	return m.styles.Panel.Width(m.width - 2).Render(strings.Join(parts, "   "))
}

func (m *Model) renderLogTail() string {
	recent := m.ctrl.Recent()
	if len(recent) > logTailLines {
		recent = recent[len(recent)-logTailLines:]
	}

	var lines []string
	for _, rec := range recent {
		lines = append(lines, m.renderRecord(rec))
	}
	for len(lines) < logTailLines {
		lines = append(lines, "")
	}
	body := strings.Join(lines, "\n")
	return m.styles.PanelTitle.Render("Activity") + "\n" +
		m.styles.Panel.Width(m.width-2).Render(body)
}

func (m *Model) renderRecord(rec *fuzz.Record) string {
	ts := m.styles.Dim.Render(rec.Time.Format("15:04:05"))
	msg := truncate(rec.Message, m.width-14)
	switch rec.Severity {
	case fuzz.SeverityError:
		return ts + " " + m.styles.Error.Render(msg)
	case fuzz.SeverityWarning:
		return ts + " " + m.styles.Warning.Render(msg)
	case fuzz.SeveritySuccess:
		return ts + " " + m.styles.Success.Render(msg)
	default:
		return ts + " " + m.styles.Base.Render(msg)
	}
}

func formatElapsed(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	mi := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mi, s)
	}
	return fmt.Sprintf("%02d:%02d", mi, s)
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Run blocks until the dashboard exits.
func Run(ctrl *session.Controller) error {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
