package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-kernels/array"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/runtime"
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

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var errNotTerminal = errors.New("interactive mode needs a terminal")

func runInteractive(cmd *cobra.Command, root *RootOptions, files []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) || !term.IsTerminal(int(os.Stdin.Fd())) {
		return errNotTerminal
	}
	ctx := cmd.Context()
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	// Kernel output would corrupt the screen.
	rt, err := root.newRuntime(ctx, cfg, io.Discard)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	if err := loadFiles(ctx, rt, files, nil); err != nil {
		return err
	}

	m := newInteractiveModel(ctx, rt, strings.Join(files, ", "))
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

type interactiveModel struct {
	ctx      context.Context
	err      error
	rt       *runtime.Runtime
	title    string
	result   string
	path     string
	kernels  []*kernel.Kernel
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type modelState int

const (
	stateSelectKernel modelState = iota
	stateInputArgs
	stateShowResult
)

type callResultMsg struct {
	err    error
	result string
	path   string
}

func newInteractiveModel(ctx context.Context, rt *runtime.Runtime, title string) *interactiveModel {
	m := &interactiveModel{ctx: ctx, rt: rt, title: title, state: stateSelectKernel}
	for _, name := range rt.Kernels() {
		if h, err := rt.Kernel(name); err == nil {
			m.kernels = append(m.kernels, h.Kernel())
		}
	}
	if len(m.kernels) == 0 {
		m.err = errors.New("no kernels loaded; pass -f <file> or --config")
	}
	return m
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
			if m.state == stateSelectKernel && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectKernel && m.selected < len(m.kernels)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectKernel:
				if len(m.kernels) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callKernel
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callKernel

			case stateShowResult:
				m.state = stateSelectKernel
				m.result = ""
				m.err = nil
				return m, nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
				return m, nil
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectKernel
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectKernel
				m.result = ""
				m.err = nil
			}
			return m, nil
		}

	case callResultMsg:
		m.result = msg.result
		m.path = msg.path
		m.err = msg.err
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
	k := m.kernels[m.selected]
	params := k.Params()
	m.inputs = make([]textinput.Model, len(params))
	for i, p := range params {
		ti := textinput.New()
		ti.Placeholder = paramType(p)
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callKernel runs the selected kernel compiled, falling back to the
// interpreter.
func (m *interactiveModel) callKernel() tea.Msg {
	k := m.kernels[m.selected]
	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		v, err := parseArg(input.Value(), paramKind(k, i))
		if err != nil {
			return callResultMsg{err: fmt.Errorf("%s: %w", k.Param(i).Name, err)}
		}
		args[i] = v
	}

	before := m.rt.Stats().Fallbacks
	res, err := m.rt.InvokeWithFallback(m.ctx, k.Name(), args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	path := "compiled"
	if m.rt.Stats().Fallbacks > before {
		path = "interpreted"
	}

	var b strings.Builder
	if res != nil {
		fmt.Fprintf(&b, "%v", plain(res))
	}
	for i, a := range args {
		if arr, ok := a.(*array.Array); ok {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s = %v", k.Param(i).Name, plain(arr))
		}
	}
	return callResultMsg{result: b.String(), path: path}
}

func paramType(p kernel.Param) string {
	if p.Lazy {
		return "any"
	}
	return p.Type.String()
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Kernels"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectKernel:
		b.WriteString("Select a kernel to run:\n\n")
		for i, k := range m.kernels {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + m.formatKernel(k)))
			} else {
				b.WriteString("  " + m.formatKernel(k))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter run • q quit"))

	case stateInputArgs:
		k := m.kernels[m.selected]
		b.WriteString(fmt.Sprintf("Running %s\n\n", funcStyle.Render(k.Name())))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(paramType(k.Param(i))))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter run • esc back"))

	case stateShowResult:
		k := m.kernels[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s", funcStyle.Render(k.Name())))
		if m.path != "" {
			b.WriteString(helpStyle.Render(" (" + m.path + ")"))
		}
		b.WriteString(":\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatKernel(k *kernel.Kernel) string {
	var params []string
	for _, p := range k.Params() {
		params = append(params, p.Name+" "+typeStyle.Render(paramType(p)))
	}
	s := funcStyle.Render(k.Name()) + "(" + strings.Join(params, ", ") + ")"
	if k.HasResult() {
		res := "any"
		if !k.ResultInferred() {
			res = k.Result().String()
		}
		s += " " + typeStyle.Render(res)
	}
	return s
}
