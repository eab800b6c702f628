package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/vivica/pkg/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1) // Red
)

func (m Model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("Error: %v", m.err))
	}

	switch m.mode {
	case modeSelectingProfile:
		return m.pickerView("Select Profile", "Enter select, n new, d delete, Esc back.", errorView)
	case modeSelectingConversation:
		return m.pickerView("Select Conversation", "Enter select, d delete, Esc back.", errorView)
	case modeSelectingModel:
		return m.pickerView("Select Model", "Enter select, Esc back.", errorView)
	}

	p := m.state.ActiveProfile()
	header := titleStyle.Render(p.Name) + " " + mutedStyle.Render(p.Model)
	if c, ok := m.state.ActiveConversation(); ok {
		header += " " + mutedStyle.Render("· "+c.Title)
		if !c.IsMemoryEnabled {
			header += " " + mutedStyle.Render("· memory off")
		}
	}

	var status string
	switch {
	case m.chat.Generating():
		status = m.spinner.View() + " generating"
	case m.chat.Summarizing():
		status = m.spinner.View() + " syncing memory"
	case m.info != "":
		status = mutedStyle.Render(m.info)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		"",
		m.viewport.View(),
		status,
		errorView,
		m.textarea.View(),
	)
}

func (m Model) pickerView(title, footer, errorView string) string {
	header := titleStyle.Render(title)

	start := m.listOffset
	end := min(start+m.maxViewable(), len(m.items))

	var optionsView []string
	for i := start; i < end; i++ {
		cursor := " "
		line := m.items[i].label
		if m.cursor == i {
			cursor = ">"
			line = selectedItemStyle.Render(line)
		}
		optionsView = append(optionsView, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), line))
	}
	if len(optionsView) == 0 {
		optionsView = append(optionsView, mutedStyle.Render("(empty)"))
	}

	list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)
	return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, errorView)
}

// renderConversation renders each message as markdown, falling back to the
// raw text when the renderer is missing or fails.
func renderConversation(r *glamour.TermRenderer, msgs []domain.Message) string {
	var sb strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case domain.RoleUser:
			sb.WriteString(userStyle.Render("You: "))
		case domain.RoleAssistant:
			sb.WriteString(senderStyle.Render("AI: "))
		default:
			sb.WriteString(mutedStyle.Render(string(msg.Role) + ": "))
		}
		sb.WriteString("\n")

		switch {
		case msg.IsError:
			sb.WriteString(errorStyle.Render(msg.Content))
			sb.WriteString(mutedStyle.Render("  (/retry)"))
		case msg.Content == "" && msg.Role == domain.RoleAssistant:
			sb.WriteString(mutedStyle.Render("…"))
		default:
			sb.WriteString(renderMarkdown(r, msg.Content))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderMarkdown(r *glamour.TermRenderer, content string) string {
	if r == nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
