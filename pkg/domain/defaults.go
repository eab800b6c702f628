package domain

// DefaultProfileID identifies the built-in profile that cannot be deleted.
const DefaultProfileID = "default-assistant"

// SummaryModel is the primary-provider model used for memory synthesis.
const SummaryModel = "gemini-3-flash-preview"

// NewConversationTitle is the title given to conversations opened empty.
const NewConversationTitle = "New Conversation"

// GeminiModels is the built-in list of primary-provider models.
var GeminiModels = []Model{
	{ID: "gemini-3-flash-preview", Name: "Gemini 3 Flash (Fast)"},
	{ID: "gemini-3-pro-preview", Name: "Gemini 3 Pro (Smart)"},
	{ID: "gemini-2.5-flash-lite-latest", Name: "Flash Lite"},
}

// DefaultProfiles returns the profiles used when nothing has been stored yet.
func DefaultProfiles() []AIProfile {
	return []AIProfile{
		{
			ID:           DefaultProfileID,
			Name:         "Vivica Primary",
			SystemPrompt: "You are Vivica, a clever and articulate AI assistant.",
			Model:        GeminiModels[0].ID,
			Temperature:  0.7,
			IsDefault:    true,
		},
	}
}

// NewProfile returns the template for a freshly created profile.
func NewProfile(id string) AIProfile {
	return AIProfile{
		ID:           id,
		Name:         "New Entity",
		SystemPrompt: "You are an advanced AI.",
		Model:        GeminiModels[0].ID,
		Temperature:  0.7,
	}
}

// DefaultSettings returns the settings used when nothing has been stored yet.
func DefaultSettings() Settings {
	return Settings{
		ActiveProfileID: DefaultProfileID,
		ThemeFamily:     ThemeAmoled,
		IsDarkMode:      true,
	}
}
