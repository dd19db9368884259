package llm

import (
	"regexp"
	"strings"
)

// StripThinkingTags removes <think>...</think> blocks from model output.
// Some models (e.g. qwen3) wrap their reasoning in these tags.
func StripThinkingTags(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s, "</think>")
		if end == -1 {
			s = strings.TrimSpace(s[:start])
			break
		}
		s = s[:start] + s[end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")

// ExtractFencedCode returns the contents of the first markdown code fence in
// s, or the trimmed string when no fence is present. Models asked to return
// only code still tend to wrap it in ```html ... ``` fences.
func ExtractFencedCode(s string) string {
	if m := fencedBlock.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// SanitizeCompletion applies all output cleanups in order.
func SanitizeCompletion(s string) string {
	return ExtractFencedCode(StripThinkingTags(s))
}
