// Package mapping holds the migration assets that steer generation: the
// source→target component map, the migration plan, verification rules, and
// known constraints.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// ComponentMapping describes the target equivalent of one source component.
type ComponentMapping struct {
	// Target is the target-library component name, e.g. "modus-wc-alert".
	// Empty when no equivalent exists.
	Target string `json:"new_tag"`
	// Props lists prop names shared between the two components.
	Props []string `json:"props,omitempty"`
}

// Assets is the full set of migration guidance loaded for a library pair.
type Assets struct {
	// SourcePrefix and TargetPrefix identify the component tag families,
	// e.g. "modus-" and "modus-wc-".
	SourcePrefix string `json:"source_prefix"`
	TargetPrefix string `json:"target_prefix"`

	// Components maps source component names to their target equivalents.
	Components map[string]ComponentMapping `json:"component_map"`

	// Plan, Rules and Constraints are free-form guidance blocks included in
	// generation prompts.
	Plan        []string `json:"migration_plan,omitempty"`
	Rules       []string `json:"verification_rules,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
}

// TargetFor returns the target component for a source tag, or "" when the
// mapping has no equivalent.
func (a *Assets) TargetFor(sourceTag string) string {
	if a == nil {
		return ""
	}
	m, ok := a.Components[sourceTag]
	if !ok {
		return ""
	}
	return m.Target
}

// SourceTags returns the mapped source component names in sorted order.
func (a *Assets) SourceTags() []string {
	out := make([]string, 0, len(a.Components))
	for tag := range a.Components {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// KnownTargetTags returns the set of target component names the mapping
// introduces. Used by validation to reject invented tags.
func (a *Assets) KnownTargetTags() map[string]bool {
	out := make(map[string]bool, len(a.Components))
	for _, m := range a.Components {
		if m.Target != "" {
			out[m.Target] = true
		}
	}
	return out
}

// Load reads assets from a JSON file, the same shape the ingestion tooling
// writes.
func Load(path string) (*Assets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping assets: %w", err)
	}
	var a Assets
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing mapping assets: %w", err)
	}
	if a.Components == nil {
		a.Components = map[string]ComponentMapping{}
	}
	return &a, nil
}

// Save writes assets to a JSON file.
func (a *Assets) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// tagPattern matches custom-element style tags: lowercase, at least one
// hyphen.
var tagPattern = regexp.MustCompile(`<([a-z][a-z0-9]*(?:-[a-z0-9]+)+)`)

// ExtractTags returns the distinct custom-element tags whose names start
// with prefix, in order of first appearance.
func ExtractTags(code, prefix string) []string {
	matches := tagPattern.FindAllStringSubmatch(code, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		tag := m[1]
		if prefix != "" && !strings.HasPrefix(tag, prefix) {
			continue
		}
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}
