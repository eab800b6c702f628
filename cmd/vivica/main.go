// Command vivica is a multi-profile AI chat client.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	vivica chat            # terminal client
//	vivica serve           # HTTP + WebSocket API
//	vivica ask "question"  # one-shot answer
//	vivica reset --yes     # erase all local data
//
// OPENROUTER_API_KEY (or a key saved with /key) enables non-Gemini models.
package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
