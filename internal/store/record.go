package store

// Section classifies what part of a component's reference material a record
// was extracted from. The set is closed at this boundary; anything the
// ingestion pipeline emits outside it maps to SectionUnknown.
type Section string

const (
	SectionAPI     Section = "api"
	SectionProps   Section = "props"
	SectionUsage   Section = "usage"
	SectionStyling Section = "styling"
	SectionPlan    Section = "plan"
	SectionRules   Section = "rules"
	SectionUnknown Section = "unknown"
)

// ParseSection maps an ingestion-time section label to a known Section.
func ParseSection(s string) Section {
	switch Section(s) {
	case SectionAPI, SectionProps, SectionUsage, SectionStyling, SectionPlan, SectionRules:
		return Section(s)
	default:
		return SectionUnknown
	}
}

// Record is one ingested fragment of migration context. Records are immutable
// once written; the vector index holds only a projection of them and resolves
// payloads back through the store by ID.
type Record struct {
	ID         string
	Repository string // source library the fragment documents, e.g. "modus-v1"
	Section    Section
	Text       string
	TokenCount int
	Embedding  []float32
}
