// Package tui is the terminal front end: a streaming chat view with pickers
// for profiles, conversations and models.
//
// Commands (typed into the input):
//
//	/new                     open an empty conversation
//	/conversations           pick a conversation (d deletes)
//	/profiles                pick a profile (n creates, d deletes)
//	/model                   pick the active profile's model
//	/retry                   retry the last errored reply
//	/sync                    summarize the conversation into profile memory
//	/memory <field> <text>   set identity, personality, behavior or notes
//	/purge                   clear the active profile's memory
//	/recall                  toggle memory for the active conversation
//	/name, /prompt, /temp    edit the active profile
//	/key <key>               set the OpenRouter key (empty clears it)
//	/theme <family>, /dark   appearance
//	/exit                    quit
package tui

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/vivica/pkg/chat"
	"github.com/nstogner/vivica/pkg/registry"
	"github.com/nstogner/vivica/pkg/state"
)

type mode int

const (
	modeChatting mode = iota
	modeSelectingProfile
	modeSelectingConversation
	modeSelectingModel
)

type stateUpdateMsg string
type errMsg struct{ err error }
type infoMsg string
type turnDoneMsg struct{ err error }

// listItem is one selectable row in a picker.
type listItem struct {
	id    string
	label string
}

// Model is the bubbletea model for the chat client.
type Model struct {
	ctx      context.Context
	state    *state.State
	chat     *chat.Orchestrator
	registry *registry.Registry
	saveKey  func(string) error
	updates  <-chan string

	mode       mode
	items      []listItem
	cursor     int
	listOffset int
	width      int
	height     int
	err        error
	info       string

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
}

// Option configures a Model.
type Option func(*Model)

// WithCredentialSink registers fn to be called when the OpenRouter key is
// changed with /key.
func WithCredentialSink(fn func(string) error) Option {
	return func(m *Model) { m.saveKey = fn }
}

// New creates the chat client model.
func New(ctx context.Context, st *state.State, orch *chat.Orchestrator, reg *registry.Registry, opts ...Option) Model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(3)
	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	// Enter submits.
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(80, 20)

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = senderStyle

	m := Model{
		ctx:      ctx,
		state:    st,
		chat:     orch,
		registry: reg,
		updates:  st.Subscribe(),
		viewport: vp,
		textarea: ta,
		spinner:  sp,
		width:    80,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.renderer = newRenderer(st.Settings().IsDarkMode, 80)
	m.refresh()
	return m
}

// Run starts the program and blocks until the user quits.
func Run(m Model) error {
	defer m.state.Unsubscribe(m.updates)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// newRenderer uses a standard style so glamour does not query the terminal,
// which would leak escape sequences into the input.
func newRenderer(dark bool, width int) *glamour.TermRenderer {
	style := "light"
	if dark {
		style = "dark"
	}
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		slog.Warn("Markdown renderer unavailable", "error", err)
		return nil
	}
	return r
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, waitForUpdate(m.updates))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	// Keys only reach the textarea while chatting so picker navigation does
	// not leak into the input.
	switch msg.(type) {
	case tea.KeyMsg:
		if m.mode == modeChatting {
			m.textarea, tiCmd = m.textarea.Update(msg)
			cmds = append(cmds, tiCmd)
		}
	default:
		m.textarea, tiCmd = m.textarea.Update(msg)
		cmds = append(cmds, tiCmd)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = max(msg.Height-m.textarea.Height()-4, 0) // Header + status + margins
		m.renderer = newRenderer(m.state.Settings().IsDarkMode, msg.Width)
		m.clampList()
		m.refresh()

	case tea.KeyMsg:
		if m.mode != modeChatting {
			return m.updatePicker(msg, cmds)
		}
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			m.err = nil
			m.info = ""
			var cmd tea.Cmd
			m, cmd = m.submit()
			cmds = append(cmds, cmd)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case stateUpdateMsg:
		m.refresh()
		cmds = append(cmds, waitForUpdate(m.updates))

	case turnDoneMsg:
		m.err = msg.err
		m.refresh()

	case infoMsg:
		m.info = string(msg)
		m.refresh()

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updatePicker(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.mode = modeChatting
		m.textarea.Focus()
		return m, nil
	case tea.KeyUp:
		if m.cursor > 0 {
			m.cursor--
			if m.cursor < m.listOffset {
				m.listOffset = m.cursor
			}
		}
	case tea.KeyDown:
		if m.cursor < len(m.items)-1 {
			m.cursor++
			m.clampList()
		}
	case tea.KeyEnter:
		if len(m.items) == 0 {
			return m, nil
		}
		return m.choose(m.items[m.cursor].id)
	default:
		switch msg.String() {
		case "d":
			if len(m.items) > 0 {
				return m.remove(m.items[m.cursor].id)
			}
		case "n":
			if m.mode == modeSelectingProfile {
				return m.createProfile()
			}
		}
	}
	return m, tea.Batch(cmds...)
}

// maxViewable is the number of picker rows that fit on screen.
func (m Model) maxViewable() int {
	return max(m.height-7, 1) // Header: ~3 lines, Footer: ~3 lines
}

func (m *Model) clampList() {
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+m.maxViewable() {
		m.listOffset = m.cursor - m.maxViewable() + 1
	}
	if m.listOffset < 0 {
		m.listOffset = 0
	}
}

// refresh re-renders the active conversation into the viewport.
func (m *Model) refresh() {
	c, ok := m.state.ActiveConversation()
	if !ok {
		p := m.state.ActiveProfile()
		m.viewport.SetContent(fmt.Sprintf("%s is ready. Type a message to begin.", p.Name))
		return
	}
	m.viewport.SetContent(renderConversation(m.renderer, c.Messages))
	m.viewport.GotoBottom()
}

func waitForUpdate(sub <-chan string) tea.Cmd {
	return func() tea.Msg {
		id, ok := <-sub
		if !ok {
			return nil
		}
		return stateUpdateMsg(id)
	}
}
