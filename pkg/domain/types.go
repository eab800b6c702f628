package domain

import "time"

// Message is a single turn entry inside a conversation. The assistant message of
// an in-flight turn is mutated in place as fragments arrive.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ProfileID string    `json:"profileId,omitempty"`
	IsError   bool      `json:"isError,omitempty"`
}

// Conversation is an ordered message sequence owned by a single profile.
type Conversation struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	LastUpdated     time.Time `json:"lastUpdated"`
	Messages        []Message `json:"messages"`
	ProfileID       string    `json:"profileId"`
	IsMemoryEnabled bool      `json:"isMemoryEnabled"`
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

// UserMemory is the long-term recall attached to a profile.
type UserMemory struct {
	Identity    string `json:"identity"`
	Personality string `json:"personality"`
	Behavior    string `json:"behavior"`
	Notes       string `json:"notes"`
	Summary     string `json:"summary,omitempty"`
}

// IsEmpty reports whether every memory field is blank.
func (m UserMemory) IsEmpty() bool {
	return m.Identity == "" && m.Personality == "" && m.Behavior == "" && m.Notes == "" && m.Summary == ""
}

// MemoryField names an editable field of UserMemory.
type MemoryField string

const (
	MemoryIdentity    MemoryField = "identity"
	MemoryPersonality MemoryField = "personality"
	MemoryBehavior    MemoryField = "behavior"
	MemoryNotes       MemoryField = "notes"
	MemorySummary     MemoryField = "summary"
)

// With returns a copy of m with the named field replaced.
func (m UserMemory) With(field MemoryField, value string) (UserMemory, bool) {
	switch field {
	case MemoryIdentity:
		m.Identity = value
	case MemoryPersonality:
		m.Personality = value
	case MemoryBehavior:
		m.Behavior = value
	case MemoryNotes:
		m.Notes = value
	case MemorySummary:
		m.Summary = value
	default:
		return m, false
	}
	return m, true
}

// AIProfile is a named persona a conversation is conducted under.
type AIProfile struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	SystemPrompt string     `json:"systemPrompt"`
	Model        string     `json:"model"`
	Temperature  float64    `json:"temperature"` // 0-1
	Memory       UserMemory `json:"memory"`
	IsDefault    bool       `json:"isDefault,omitempty"`
}

// Theme families offered by the client.
const (
	ThemeAmoled = "amoled"
	ThemeBlue   = "blue"
	ThemeRed    = "red"
)

// Settings holds the process-wide selection state and credentials.
type Settings struct {
	OpenRouterAPIKey     string  `json:"openRouterApiKey"`
	ActiveConversationID *string `json:"activeConversationId"`
	ActiveProfileID      string  `json:"activeProfileId"`
	ThemeFamily          string  `json:"themeFamily"`
	IsDarkMode           bool    `json:"isDarkMode"`
}

// Model represents a selectable LLM model.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
