package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loomctl/loom/internal/llm"
	"github.com/loomctl/loom/internal/mapping"
)

const systemPrompt = `You are an expert front-end engineer migrating legacy web components to their modern equivalents. Replace every mapped source component with its target component, preserving behavior, props, slots, and event wiring. Keep all surrounding markup and logic unchanged. Output only the migrated code, with no commentary.`

// BuildMigrationPrompt assembles the generation prompt from retrieved
// context, the mapping assets, and the code under migration.
func BuildMigrationPrompt(assets *mapping.Assets, contextText, code string) *llm.Prompt {
	var b strings.Builder

	if contextText != "" {
		b.WriteString("## Component documentation\n")
		b.WriteString(contextText)
		b.WriteString("\n\n")
	}

	if len(assets.Components) > 0 {
		b.WriteString("## Component mapping\n")
		if data, err := json.MarshalIndent(assets.Components, "", "  "); err == nil {
			b.Write(data)
			b.WriteString("\n\n")
		}
	}

	writeGuidance(&b, "Migration plan", assets.Plan)
	writeGuidance(&b, "Rules", assets.Rules)
	writeGuidance(&b, "Constraints", assets.Constraints)

	b.WriteString("## Code to migrate\n")
	b.WriteString(code)
	b.WriteString("\n")

	return &llm.Prompt{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	}
}

// BuildRefinementPrompt extends the conversation with the rejected candidate
// and the validation feedback, asking for a corrected version.
func BuildRefinementPrompt(base *llm.Prompt, candidate, feedback string) *llm.Prompt {
	messages := make([]llm.Message, len(base.Messages), len(base.Messages)+2)
	copy(messages, base.Messages)
	messages = append(messages,
		llm.Message{Role: llm.RoleAssistant, Content: candidate},
		llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(
			"That result failed validation:\n%s\n\nFix these issues and output only the corrected code.", feedback)},
	)
	return &llm.Prompt{SystemPrompt: base.SystemPrompt, Messages: messages}
}

func writeGuidance(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n", title)
	for _, line := range lines {
		fmt.Fprintf(b, "- %s\n", line)
	}
	b.WriteString("\n")
}
