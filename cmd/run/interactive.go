package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/capability"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/value"
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

	nsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

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

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
	stateImports
)

type funcInfo struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}

type interactiveModel struct {
	ctx      context.Context
	err      error
	art      *runtime.Artifact
	instance *runtime.Instance
	opts     runtime.Options
	source   string
	result   string
	funcs    []funcInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(ctx context.Context, art *runtime.Artifact, source string, opts runtime.Options) *interactiveModel {
	m := &interactiveModel{ctx: ctx, art: art, source: source, opts: opts, state: stateSelectFunc}
	for _, name := range art.Exports() {
		def, _ := art.Export(name)
		m.funcs = append(m.funcs, funcInfo{name: name, params: def.ParamTypes(), results: def.ResultTypes()})
	}
	return m
}

func (m *interactiveModel) Init() tea.Cmd { return nil }

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break
			}
			if m.instance != nil {
				_ = m.instance.Close(m.ctx)
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "i":
			switch m.state {
			case stateSelectFunc:
				m.state = stateImports
			case stateImports:
				m.state = stateSelectFunc
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult, stateImports:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case callResultMsg:
		m.result = msg.result
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
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, p := range f.params {
		ti := textinput.New()
		ti.Placeholder = placeholder(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callFunction instantiates on first use, so every call in a session sees
// the same memory and heap.
func (m *interactiveModel) callFunction() tea.Msg {
	if m.instance == nil {
		inst, err := m.art.Instantiate(m.ctx, nil, m.opts)
		if err != nil {
			return callResultMsg{err: err}
		}
		m.instance = inst
	}

	f := m.funcs[m.selected]
	fn, err := m.instance.Export(f.name)
	if err != nil {
		return callResultMsg{err: err}
	}
	args := make([]value.Value, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = convertArg(input.Value(), f.params[i])
	}

	res, err := fn.Call(m.ctx, nil, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	if err := m.instance.Run(m.ctx); err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: display(res)}
}

// convertArg parses numeric input for number types. Reference parameters
// take JSON and fall back to the raw text as a string.
func convertArg(text string, t api.ValueType) value.Value {
	switch t {
	case api.ValueTypeI64:
		v, _ := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		return v
	case api.ValueTypeI32, api.ValueTypeF32, api.ValueTypeF64:
		return capability.ParseFloat(text)
	default:
		if v, err := capability.Parse(text); err == nil {
			return v
		}
		return text
	}
}

func placeholder(t api.ValueType) string {
	if t == api.ValueTypeExternref {
		return "JSON or text"
	}
	return api.ValueTypeName(t)
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Bridge"))
	b.WriteString(" ")
	b.WriteString(m.source)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The module exports no functions.\n\n")
			b.WriteString(helpStyle.Render("i imports • q quit"))
			break
		}
		b.WriteString("Select an export to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.name))
				b.WriteString(formatTypes(f.params, f.results))
			} else {
				b.WriteString("  " + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • i imports • q quit"))

	case stateImports:
		b.WriteString("Imports:\n\n")
		for _, imp := range m.art.Imports() {
			b.WriteString("  ")
			b.WriteString(nsStyle.Render(imp.Module))
			b.WriteString(".")
			b.WriteString(funcStyle.Render(imp.Name))
			b.WriteString(formatTypes(imp.Params, imp.Results))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("i exports • esc back • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(api.ValueTypeName(f.params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
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

func (m *interactiveModel) formatFunc(f funcInfo) string {
	return funcStyle.Render(f.name) + formatTypes(f.params, f.results)
}

func formatTypes(params, results []api.ValueType) string {
	ps := make([]string, len(params))
	for i, p := range params {
		ps[i] = typeStyle.Render(api.ValueTypeName(p))
	}
	s := "(" + strings.Join(ps, ", ") + ")"
	if len(results) > 0 {
		rs := make([]string, len(results))
		for i, r := range results {
			rs[i] = typeStyle.Render(api.ValueTypeName(r))
		}
		s += " -> " + strings.Join(rs, ", ")
	}
	return s
}

// signature renders a function type without styling.
func signature(name string, params, results []api.ValueType) string {
	ps := make([]string, len(params))
	for i, p := range params {
		ps[i] = api.ValueTypeName(p)
	}
	s := name + "(" + strings.Join(ps, ", ") + ")"
	if len(results) > 0 {
		rs := make([]string, len(results))
		for i, r := range results {
			rs[i] = api.ValueTypeName(r)
		}
		s += " -> " + strings.Join(rs, ", ")
	}
	return s
}

func runInteractive(ctx context.Context, art *runtime.Artifact, source string, opts runtime.Options) error {
	p := tea.NewProgram(newInteractiveModel(ctx, art, source, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
