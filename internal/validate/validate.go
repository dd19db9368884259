// Package validate checks generated code against the migration mapping:
// no leftover source components, no invented target components.
package validate

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/loomctl/loom/internal/mapping"
)

// Verdict is the outcome of one validation pass. Issues is empty when the
// candidate passed; otherwise each entry is feedback a refinement prompt can
// act on.
type Verdict struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// Feedback renders the issues as a single block for prompt injection.
func (v *Verdict) Feedback() string {
	return strings.Join(v.Issues, "\n")
}

// Validator judges a generated candidate.
type Validator interface {
	Validate(ctx context.Context, code string) (*Verdict, error)
}

// RuleValidator applies the structural rules derived from migration assets.
type RuleValidator struct {
	assets *mapping.Assets
}

// NewRuleValidator builds a validator over the given assets.
func NewRuleValidator(assets *mapping.Assets) *RuleValidator {
	return &RuleValidator{assets: assets}
}

// Validate parses the candidate as HTML and walks its elements. A mapped
// source component that survived migration fails the check, as does a
// target-prefixed component the mapping never introduces. Unmapped source
// tags are allowed: they had no equivalent and are expected to remain.
func (v *RuleValidator) Validate(ctx context.Context, code string) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return &Verdict{Issues: []string{"candidate is empty"}}, nil
	}

	tags, err := elementTags(code)
	if err != nil {
		return &Verdict{Issues: []string{fmt.Sprintf("candidate is not parseable markup: %v", err)}}, nil
	}

	known := v.assets.KnownTargetTags()
	verdict := &Verdict{}
	for _, tag := range tags {
		// Target prefix is checked first: it usually extends the source
		// prefix, e.g. "modus-wc-" extends "modus-".
		switch {
		case v.assets.TargetPrefix != "" && strings.HasPrefix(tag, v.assets.TargetPrefix):
			if !known[tag] {
				verdict.Issues = append(verdict.Issues,
					fmt.Sprintf("<%s> is not a known target component; use only components from the mapping", tag))
			}
		case v.assets.SourcePrefix != "" && strings.HasPrefix(tag, v.assets.SourcePrefix):
			if target := v.assets.TargetFor(tag); target != "" {
				verdict.Issues = append(verdict.Issues,
					fmt.Sprintf("<%s> was not migrated; replace it with <%s>", tag, target))
			}
		}
	}

	verdict.Valid = len(verdict.Issues) == 0
	return verdict, nil
}

// elementTags returns the distinct element names in document order.
// html.Parse tolerates fragments and custom elements, which is what
// generated component markup mostly is.
func elementTags(code string) ([]string, error) {
	root, err := html.Parse(strings.NewReader(code))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && !seen[n.Data] {
			seen[n.Data] = true
			out = append(out, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}
