package tui

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/state"
)

// submit handles Enter in the chat view: a slash command or a message.
func (m Model) submit() (Model, tea.Cmd) {
	raw := m.textarea.Value()
	v := strings.TrimSpace(raw)
	if v == "" {
		return m, nil
	}
	m.textarea.Reset()

	if strings.HasPrefix(v, "/") {
		return m.command(v)
	}
	return m, m.sendCmd(raw)
}

// splitCommand separates "/name rest of line" into name and argument.
func splitCommand(line string) (string, string) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

func (m Model) command(line string) (Model, tea.Cmd) {
	name, arg := splitCommand(line)
	ctx := m.ctx
	profile := m.state.ActiveProfile()

	var err error
	switch name {
	case "exit", "quit":
		return m, tea.Quit
	case "new":
		_, err = m.state.NewWorkspace(ctx)
	case "conversations":
		return m.openPicker(modeSelectingConversation), nil
	case "profiles":
		return m.openPicker(modeSelectingProfile), nil
	case "model":
		return m.openPicker(modeSelectingModel), nil
	case "retry":
		return m, m.retryCmd()
	case "sync":
		return m, m.syncCmd()
	case "memory":
		field, value, _ := strings.Cut(arg, " ")
		err = m.state.SetMemoryField(ctx, profile.ID, domain.MemoryField(strings.ToLower(field)), strings.TrimSpace(value))
	case "purge":
		err = m.state.PurgeMemory(ctx, profile.ID)
	case "recall":
		c, ok := m.state.ActiveConversation()
		if !ok {
			err = errors.New("no active conversation")
			break
		}
		err = m.state.SetConversationMemoryEnabled(ctx, c.ID, !c.IsMemoryEnabled)
	case "name":
		_, err = m.state.UpdateProfile(ctx, profile.ID, state.ProfilePatch{Name: &arg})
	case "prompt":
		_, err = m.state.UpdateProfile(ctx, profile.ID, state.ProfilePatch{SystemPrompt: &arg})
	case "temp":
		var t float64
		t, err = strconv.ParseFloat(arg, 64)
		if err == nil {
			_, err = m.state.UpdateProfile(ctx, profile.ID, state.ProfilePatch{Temperature: &t})
		}
	case "key":
		return m, m.keyCmd(arg)
	case "theme":
		err = m.state.SetTheme(ctx, arg)
	case "dark":
		dark := !m.state.Settings().IsDarkMode
		err = m.state.SetDarkMode(ctx, dark)
		m.renderer = newRenderer(dark, m.width)
	default:
		err = fmt.Errorf("unknown command /%s", name)
	}
	m.err = err
	m.refresh()
	return m, nil
}

func (m Model) sendCmd(content string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.chat.Send(m.ctx, content)
		return turnDoneMsg{err}
	}
}

func (m Model) retryCmd() tea.Cmd {
	c, ok := m.state.ActiveConversation()
	if !ok {
		return errCmd(errors.New("no active conversation"))
	}
	var failed string
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].IsError {
			failed = c.Messages[i].ID
			break
		}
	}
	if failed == "" {
		return errCmd(errors.New("nothing to retry"))
	}
	return func() tea.Msg {
		_, err := m.chat.Retry(m.ctx, failed)
		return turnDoneMsg{err}
	}
}

func (m Model) syncCmd() tea.Cmd {
	return func() tea.Msg {
		summary, err := m.chat.SyncMemory(m.ctx)
		if err != nil {
			return errMsg{err}
		}
		if summary == "" {
			return infoMsg("nothing to sync")
		}
		return infoMsg("memory synced")
	}
}

func (m Model) keyCmd(key string) tea.Cmd {
	return func() tea.Msg {
		changed, err := m.state.SetCredential(m.ctx, key)
		if err != nil {
			return errMsg{err}
		}
		if !changed {
			return infoMsg("key unchanged")
		}
		if m.saveKey != nil {
			if err := m.saveKey(key); err != nil {
				slog.Warn("Failed to save credential", "error", err)
			}
		}
		if err := m.registry.Refresh(m.ctx, key); err != nil {
			return errMsg{err}
		}
		if key == "" {
			return infoMsg("OpenRouter key cleared")
		}
		return infoMsg(fmt.Sprintf("OpenRouter key set, %d models available", len(m.registry.Models())))
	}
}

func errCmd(err error) tea.Cmd {
	return func() tea.Msg { return errMsg{err} }
}

// --- Pickers ---

func (m Model) openPicker(md mode) Model {
	m.mode = md
	m.cursor = 0
	m.listOffset = 0
	m.err = nil
	m.textarea.Blur()
	m.loadItems()
	return m
}

func (m *Model) loadItems() {
	m.items = nil
	switch m.mode {
	case modeSelectingProfile:
		active := m.state.ActiveProfile().ID
		for _, p := range m.state.Profiles() {
			label := fmt.Sprintf("%s (%s)", p.Name, p.Model)
			if p.ID == active {
				label += " *"
			}
			m.items = append(m.items, listItem{id: p.ID, label: label})
		}
	case modeSelectingConversation:
		for _, c := range m.state.ProfileConversations() {
			label := fmt.Sprintf("%s (%s)", c.Title, c.LastUpdated.Format("Jan 2 15:04"))
			m.items = append(m.items, listItem{id: c.ID, label: label})
		}
	case modeSelectingModel:
		current := m.state.ActiveProfile().Model
		for _, md := range m.registry.Models() {
			label := fmt.Sprintf("%s (%s)", md.Name, md.ID)
			if md.ID == current {
				label += " *"
			}
			m.items = append(m.items, listItem{id: md.ID, label: label})
		}
	}
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
	m.clampList()
}

func (m Model) choose(id string) (tea.Model, tea.Cmd) {
	var err error
	switch m.mode {
	case modeSelectingProfile:
		err = m.state.SelectProfile(m.ctx, id)
	case modeSelectingConversation:
		err = m.state.SelectConversation(m.ctx, id)
	case modeSelectingModel:
		profile := m.state.ActiveProfile()
		_, err = m.state.UpdateProfile(m.ctx, profile.ID, state.ProfilePatch{Model: &id})
	}
	m.err = err
	m.mode = modeChatting
	m.textarea.Focus()
	m.refresh()
	return m, nil
}

func (m Model) remove(id string) (tea.Model, tea.Cmd) {
	var err error
	switch m.mode {
	case modeSelectingProfile:
		err = m.state.DeleteProfile(m.ctx, id)
	case modeSelectingConversation:
		err = m.state.DeleteConversation(m.ctx, id)
	default:
		return m, nil
	}
	m.err = err
	m.loadItems()
	m.refresh()
	return m, nil
}

func (m Model) createProfile() (tea.Model, tea.Cmd) {
	if _, err := m.state.CreateProfile(m.ctx); err != nil {
		m.err = err
		return m, nil
	}
	m.loadItems()
	m.cursor = len(m.items) - 1
	m.clampList()
	return m, nil
}
