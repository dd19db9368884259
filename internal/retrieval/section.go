package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomctl/loom/internal/mapping"
	"github.com/loomctl/loom/internal/observability"
	"github.com/loomctl/loom/internal/vector"
)

// DefaultPerSection is how many records a section lookup keeps per component
// when the caller does not specify a count.
const DefaultPerSection = 2

// TagContext holds the retrieved material for one component pair found in
// the caller's code.
type TagContext struct {
	SourceTag     string         `json:"source_tag"`
	TargetTag     string         `json:"target_tag"`
	SourceRecords []ScoredRecord `json:"source_records"`
	TargetRecords []ScoredRecord `json:"target_records"`
}

// SectionQuery drives component-oriented retrieval over a code snippet.
// TokenBudget caps the total token count across all gathered records; zero
// or negative leaves the bundle unbounded.
type SectionQuery struct {
	Code        string
	SourceRepo  string
	TargetRepo  string
	PerSection  int
	TokenBudget int
}

// SectionResult pairs per-component record sets with the assembled prompt
// text.
type SectionResult struct {
	Tags []TagContext `json:"tags"`
	Plan string       `json:"plan,omitempty"`
}

// totals reports the record and token counts gathered across all tags.
func (r *SectionResult) totals() (records, tokens int) {
	for _, tc := range r.Tags {
		for _, rec := range tc.SourceRecords {
			records++
			tokens += rec.TokenCount
		}
		for _, rec := range tc.TargetRecords {
			records++
			tokens += rec.TokenCount
		}
	}
	return records, tokens
}

// RetrieveBySection scans code for source component tags, resolves each to
// its migration target, and gathers documentation records for both sides of
// the pair. Unmapped tags still contribute source context so the caller can
// flag them downstream.
func (s *Service) RetrieveBySection(ctx context.Context, assets *mapping.Assets, q SectionQuery) (*SectionResult, error) {
	ctx, endSpan := observability.TraceRetrieval(ctx, "section")
	res, err := s.retrieveBySection(ctx, assets, q)
	if err != nil {
		endSpan(0, 0, err)
		return nil, err
	}
	records, tokens := res.totals()
	endSpan(records, tokens, nil)
	return res, nil
}

func (s *Service) retrieveBySection(ctx context.Context, assets *mapping.Assets, q SectionQuery) (*SectionResult, error) {
	if strings.TrimSpace(q.Code) == "" {
		return nil, fmt.Errorf("%w: empty code snippet", ErrInvalidQuery)
	}
	perSection := q.PerSection
	if perSection <= 0 {
		perSection = DefaultPerSection
	}

	tags := mapping.ExtractTags(q.Code, assets.SourcePrefix)
	result := &SectionResult{Plan: strings.Join(assets.Plan, "\n")}
	if len(tags) == 0 {
		return result, nil
	}

	remaining := q.TokenBudget
	for _, tag := range tags {
		tc := TagContext{SourceTag: tag}

		src, err := s.componentRecords(ctx, tag, q.SourceRepo, perSection, remaining)
		if err != nil {
			return nil, err
		}
		tc.SourceRecords = src
		remaining = spend(q.TokenBudget, remaining, src)

		if target := assets.TargetFor(tag); target != "" {
			tc.TargetTag = target
			dst, err := s.componentRecords(ctx, target, q.TargetRepo, perSection, remaining)
			if err != nil {
				return nil, err
			}
			tc.TargetRecords = dst
			remaining = spend(q.TokenBudget, remaining, dst)
		} else {
			s.logger.Warn("no migration target for component", "tag", tag)
		}

		result.Tags = append(result.Tags, tc)
	}

	return result, nil
}

// spend deducts the records' token counts from the remaining budget. With no
// overall budget the remaining value stays zero, which componentRecords reads
// as unbounded. An exhausted budget goes negative so it cannot be mistaken
// for unbounded.
func spend(budget, remaining int, records []ScoredRecord) int {
	if budget <= 0 {
		return remaining
	}
	for _, rec := range records {
		remaining -= rec.TokenCount
	}
	if remaining <= 0 {
		return -1
	}
	return remaining
}

// componentRecords embeds the component tag as the query and keeps hits that
// belong to that component, falling back to the best repository-wide hits
// when the component has no dedicated records. A positive budget caps the
// total token count of the returned records; once a caller's budget is spent
// it arrives non-positive here and the lookup is skipped outright.
func (s *Service) componentRecords(ctx context.Context, tag, repo string, limit, budget int) ([]ScoredRecord, error) {
	if budget < 0 {
		return nil, nil
	}
	queryVec, err := s.embedQuery(ctx, tag)
	if err != nil {
		return nil, err
	}

	filter := vector.Filter{Repository: repo}
	hits, err := s.searcher.Search(ctx, queryVec, limit*componentFanout, filter)
	if err != nil {
		return nil, fmt.Errorf("searching index for %q: %w", tag, err)
	}

	owned := hits[:0:0]
	for _, hit := range hits {
		if recordBelongsTo(hit.ID, tag) {
			owned = append(owned, hit)
		}
	}
	if len(owned) == 0 {
		owned = hits
	}

	result, err := s.assemble(ctx, owned, limit, budget)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// componentFanout is wider than the generic fanout because component
// ownership filtering discards most hits.
const componentFanout = 8

// recordBelongsTo reports whether a record ID names the given component.
// IDs follow the repo/component/section/seq convention set at ingest time.
func recordBelongsTo(id, tag string) bool {
	return strings.Contains(id, "/"+tag+"/")
}

// PromptText renders the section result into the layout the migration prompt
// expects, one headed block per component and side.
func (r *SectionResult) PromptText() string {
	var b strings.Builder
	for _, tc := range r.Tags {
		fmt.Fprintf(&b, "### SOURCE COMPONENT: %s\n", tc.SourceTag)
		writeRecordBlock(&b, tc.SourceRecords)
		if tc.TargetTag != "" {
			fmt.Fprintf(&b, "### TARGET COMPONENT: %s\n", tc.TargetTag)
			writeRecordBlock(&b, tc.TargetRecords)
		} else {
			fmt.Fprintf(&b, "### TARGET COMPONENT: (no mapping)\n<no content>\n\n")
		}
	}
	if r.Plan != "" {
		fmt.Fprintf(&b, "### MIGRATION PLAN\n%s\n", r.Plan)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeRecordBlock(b *strings.Builder, records []ScoredRecord) {
	if len(records) == 0 {
		b.WriteString("<no content>\n\n")
		return
	}
	for _, rec := range records {
		fmt.Fprintf(b, "[%s]\n%s\n", rec.Section, rec.Text)
	}
	b.WriteString("\n")
}
