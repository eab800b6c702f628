// Package prompt composes the system instruction sent to a provider from a
// profile's persona and accumulated memory.
package prompt

import (
	"strings"

	"github.com/nstogner/vivica/pkg/domain"
)

// MemoryHeader separates the persona from the memory block.
const MemoryHeader = "--- PROFILE MEMORY & CONTEXT ---"

// Build returns the system instruction for profile. The memory block is only
// attached when useMemory is set and at least one memory field is non-empty.
// Lines appear in a fixed order: summary, identity, personality, behavior, notes.
func Build(profile domain.AIProfile, useMemory bool) string {
	mem := profile.Memory
	if !useMemory || mem.IsEmpty() {
		return profile.SystemPrompt
	}

	var b strings.Builder
	b.WriteString(profile.SystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(MemoryHeader)

	line := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString("\n")
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
	}
	line("Past Context", mem.Summary)
	line("User Identity", mem.Identity)
	line("Preferred Tone", mem.Personality)
	line("Strict Rules", mem.Behavior)
	line("Additional Notes", mem.Notes)

	return b.String()
}
