package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/tpatch/internal/ui"
	"github.com/sokinpui/tpatch/model"
	"github.com/sokinpui/tpatch/tpatch"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

type progressMsg struct {
	current, total int
}

// Runner is the part of tpatch.App the TUI drives.
type Runner interface {
	Execute() (model.Summary, error)
	SetProgressCallback(tpatch.ProgressUpdate)
}

// --- Model ---
type Model struct {
	app      Runner
	program  *tea.Program
	spinner  spinner.Model
	state    state
	summary  summaryMsg
	progress progressMsg
	err      error
}

type state int

const (
	stateProcessing state = iota
	stateSummary
	stateError
)

func New(app Runner) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &Model{
		app:     app,
		spinner: s,
		state:   stateProcessing,
	}
}

// SetProgram lets the app report progress into the running program.
func (m *Model) SetProgram(p *tea.Program) {
	m.program = p
	m.app.SetProgressCallback(func(current, total int) {
		p.Send(progressMsg{current: current, total: total})
	})
}

// Err returns the error the run ended with, if any.
func (m *Model) Err() error {
	return m.err
}

// Summary returns the summary of a finished run.
func (m *Model) Summary() model.Summary {
	return m.summary.Summary
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case progressMsg:
		m.progress = msg
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg.err
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) View() string {
	switch m.state {
	case stateProcessing:
		if m.progress.total > 0 {
			return fmt.Sprintf("%s Processing... [%d/%d]", m.spinner.View(), m.progress.current, m.progress.total)
		}
		return fmt.Sprintf("%s Processing...", m.spinner.View())
	case stateError:
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func outcomeStyle(s model.Status) lipgloss.Style {
	switch s {
	case model.StatusApplied:
		return successStyle
	case model.StatusUnchanged:
		return faintStyle
	case model.StatusNotFound, model.StatusMissingFile:
		return warningStyle
	default:
		return errorStyle
	}
}

func (m *Model) renderSummary() string {
	var b strings.Builder
	s := m.summary.Summary

	for _, o := range s.Outcomes {
		b.WriteString(outcomeStyle(o.Status).Render(ui.OutcomeLine(o)))
		b.WriteString("\n")
	}
	if len(s.Outcomes) > 0 {
		b.WriteString("\n")
	}

	if s.Message != "" {
		b.WriteString(headerStyle.Render(s.Message))
		b.WriteString("\n\n")
	}

	title := "Modified:"
	if s.DryRun {
		title = "Would modify:"
	}

	hasContent := false
	section := func(style lipgloss.Style, title string, files []string) {
		if len(files) == 0 {
			return
		}
		hasContent = true
		b.WriteString(style.Render(title))
		b.WriteString("\n")
		for _, f := range files {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	section(successStyle, title, s.Modified)
	section(errorStyle, "Failed:", s.Failed)

	if !hasContent && s.Message == "" && len(s.Outcomes) == 0 {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) runApp() tea.Msg {
	summary, err := m.app.Execute()
	if err != nil {
		// The caller prints the stack of a recovered panic after the program exits.
		return errorMsg{err}
	}
	return summaryMsg{
		Summary: summary,
	}
}
