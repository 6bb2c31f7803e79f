package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/native-runtime/script/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#3C6E71")).
			Padding(0, 1)

	funcStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	typeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#3C6E71"))
	resultStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err        error
	session    *session
	configFile string
	scriptFile string
	result     string
	funcs      []*wasm.Function
	inputs     []textinput.Model
	selected   int
	focusIdx   int
	state      modelState
}

type loadedMsg struct {
	err     error
	session *session
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(configFile, scriptFile string) *interactiveModel {
	return &interactiveModel{configFile: configFile, scriptFile: scriptFile, state: stateSelectFunc}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	s, err := openSession(context.Background(), m.configFile, m.scriptFile)
	return loadedMsg{err: err, session: s}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break
			}
			if m.session != nil {
				m.session.close(context.Background())
				m.session = nil
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
				m.result, m.err = "", nil
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
			case stateShowResult:
				m.state = stateSelectFunc
				m.result, m.err = "", nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.funcs = msg.session.rt.Functions()

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		cmds := make([]tea.Cmd, len(m.inputs))
		for i := range m.inputs {
			m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params()))
	for i, p := range f.Params() {
		ti := textinput.New()
		ti.Placeholder = api.ValueTypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	if m.session == nil {
		return callResultMsg{err: fmt.Errorf("script not loaded")}
	}
	f := m.funcs[m.selected]
	inputs := make([]string, len(m.inputs))
	for i, in := range m.inputs {
		inputs[i] = in.Value()
	}
	result, err := m.session.call(context.Background(), f.Name(), inputs)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: result.String()}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.session == nil {
		return "Loading script..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Native Script Runner"))
	b.WriteString(" ")
	b.WriteString(m.scriptFile)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The script exports no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.String()))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name())))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(api.ValueTypeName(f.Params()[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name())))
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

func formatFunc(f *wasm.Function) string {
	params := make([]string, len(f.Params()))
	for i, p := range f.Params() {
		params[i] = typeStyle.Render(api.ValueTypeName(p))
	}
	s := funcStyle.Render(f.Name()) + "(" + strings.Join(params, ", ") + ")"
	if len(f.Results()) > 0 {
		s += " -> " + typeStyle.Render(api.ValueTypeName(f.Results()[0]))
	}
	return s
}

func runInteractive(configFile, scriptFile string) error {
	p := tea.NewProgram(newInteractiveModel(configFile, scriptFile), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
