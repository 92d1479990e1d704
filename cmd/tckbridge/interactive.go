package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/tck-bridge/analysis"
	"github.com/wippyai/tck-bridge/invoke"
	"github.com/wippyai/tck-bridge/native"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D3D3D3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// runner is the part of analysis.Service the picker needs.
type runner interface {
	Run(ctx context.Context, op string, values map[string]any, opts ...invoke.CallOption) (*invoke.Outcome, error)
}

func newUICommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Pick and run catalog operations interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("ui needs a terminal; use run or call instead")
			}
			iv, err := rootOpts.invoker()
			if err != nil {
				return err
			}
			svc, err := rootOpts.service(iv)
			if err != nil {
				return err
			}
			// The picker owns the screen; keep log lines off it.
			invoke.SetLogger(nil)
			return runInteractive(svc.Catalog(), svc, iv.Library())
		},
	}
}

type interactiveModel struct {
	err      error
	run      runner
	catalog  *analysis.Catalog
	outcome  *invoke.Outcome
	library  string
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
	running  bool
}

type modelState int

const (
	stateSelectOp modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(cat *analysis.Catalog, r runner, library string) *interactiveModel {
	return &interactiveModel{
		catalog: cat,
		run:     r,
		library: library,
		state:   stateSelectOp,
	}
}

type callResultMsg struct {
	err     error
	outcome *invoke.Outcome
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectOp && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectOp && m.selected < len(m.catalog.Operations)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectOp:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					m.running = true
					return m, m.callOperation
				}
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				if m.running {
					return m, nil
				}
				m.running = true
				return m, m.callOperation

			case stateShowResult:
				m.state = stateSelectOp
				m.outcome = nil
				m.err = nil
			}

		case "tab", "shift+tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				step := 1
				if msg.String() == "shift+tab" {
					step = len(m.inputs) - 1
				}
				m.focusIdx = (m.focusIdx + step) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectOp
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectOp
				m.outcome = nil
				m.err = nil
			}
		}

	case callResultMsg:
		m.outcome = msg.outcome
		m.err = msg.err
		m.running = false
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	op := m.catalog.Operations[m.selected]
	m.inputs = make([]textinput.Model, len(op.Params))
	for i, p := range op.Params {
		ti := textinput.New()
		ti.Placeholder = placeholder(p)
		ti.Prompt = p.Name + ": "
		ti.Width = 48
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callOperation() tea.Msg {
	op := m.catalog.Operations[m.selected]
	values, err := collectInputs(op, m.inputs)
	if err != nil {
		return callResultMsg{err: err}
	}
	out, err := m.run.Run(context.Background(), op.Name, values)
	return callResultMsg{outcome: out, err: err}
}

// collectInputs turns the form into request values. Empty fields are left
// out so the catalog defaults apply; model fields name a file to read.
func collectInputs(op *analysis.Operation, inputs []textinput.Model) (map[string]any, error) {
	values := make(map[string]any, len(inputs))
	for i, input := range inputs {
		p := op.Params[i]
		raw := strings.TrimSpace(input.Value())
		if raw == "" {
			continue
		}
		v, err := convertInput(raw, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		values[p.Name] = v
	}
	return values, nil
}

func convertInput(raw string, p analysis.Param) (any, error) {
	switch p.Encoding {
	case analysis.Model:
		data, err := os.ReadFile(raw)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	case analysis.CSV:
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	case analysis.Bool:
		return strconv.ParseBool(raw)
	}

	switch p.Type {
	case native.Int32:
		return strconv.ParseInt(raw, 10, 64)
	case native.Double:
		return strconv.ParseFloat(raw, 64)
	}
	return raw, nil
}

func placeholder(p analysis.Param) string {
	var s string
	switch p.Encoding {
	case analysis.Model:
		s = "path to model file"
	case analysis.CSV:
		s = "a,b,c"
	case analysis.Bool:
		s = "true/false"
	default:
		s = p.Type.String()
	}
	if !p.Required {
		s += " (optional)"
	}
	return s
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("tchecker bridge"))
	b.WriteString(" ")
	b.WriteString(m.library)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectOp:
		b.WriteString("Select an operation:\n\n")
		for i, op := range m.catalog.Operations {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + op.Name))
			} else {
				b.WriteString("  " + funcStyle.Render(op.Name))
			}
			b.WriteString("  ")
			b.WriteString(helpStyle.Render(op.Summary))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(typeStyle.Render(signature(m.catalog.Operations[m.selected])))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter choose • q quit"))

	case stateInputArgs:
		op := m.catalog.Operations[m.selected]
		b.WriteString(fmt.Sprintf("Running %s\n\n", funcStyle.Render(op.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(op.Params[i].Type.String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.running {
			b.WriteString(helpStyle.Render("running in a worker..."))
		} else {
			b.WriteString(helpStyle.Render("tab next field • enter run • esc back"))
		}

	case stateShowResult:
		op := m.catalog.Operations[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(op.Name)))
		if out := m.outcome; out != nil {
			b.WriteString(helpStyle.Render(fmt.Sprintf("%s in %s (pid %d)", out.Status, out.Duration.Round(time.Millisecond), out.PID)))
			b.WriteString("\n\n")
			if len(out.Output) > 0 {
				b.WriteString(statsStyle.Render(strings.TrimRight(string(out.Output), "\n")))
				b.WriteString("\n\n")
			}
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else if m.outcome != nil {
			b.WriteString(resultStyle.Render(fmt.Sprintf("%s: %s", op.ResultField, formatValue(m.outcome.Value.Interface()))))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(cat *analysis.Catalog, r runner, library string) error {
	p := tea.NewProgram(newInteractiveModel(cat, r, library), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
