// Package pack defines the value types flowing through context assembly:
// candidate spans, admitted slices, the output manifest, and the report of
// what was dropped and why. All types are plain immutable values; one
// assembly call constructs them once and hands them back to the caller.
package pack

import "strings"

// Sections categorize where a candidate came from so per-section caps can be
// applied during admission.
const (
	SectionDefault    = 0
	SectionFailing    = 2 // failing-test neighborhoods
	SectionReferenced = 3 // caller-referenced files
	SectionChanged    = 4 // changed paths
)

// Priorities for generated seeds. Lower value = more important.
const (
	PrioritySeed        = 1
	PriorityFailingTest = 2
)

// UnboundedEnd marks a whole-resource seed whose real end is unknown until
// clamping resolves the file length.
const UnboundedEnd = int64(1) << 40

// Span is a candidate region of a resource considered for inclusion.
// Start/End are half-open byte offsets. NonDroppable marks spans whose loss
// under budget pressure counts as a violation.
type Span struct {
	URI          string  `json:"uri"`
	Start        int64   `json:"start"`
	End          int64   `json:"end"`
	Section      int     `json:"section,omitempty"`
	Priority     int     `json:"priority,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	Tool         string  `json:"tool,omitempty"`
	Score        float64 `json:"score,omitempty"`
	NonDroppable bool    `json:"non_droppable,omitempty"`
}

// NormURI canonicalizes a resource identifier for grouping and ordering.
func NormURI(uri string) string {
	return strings.ReplaceAll(uri, "\\", "/")
}

// CompareSpans is the total order used for ranking, tie-breaking, overflow
// ordering, and final slice order: priority ascending (lower = more
// important), then uri, start, end, section, reason, tool. It is the single
// source of determinism for the pipeline; keep any priority-direction change
// confined here.
func CompareSpans(a, b Span) int {
	if a.Priority != b.Priority {
		if a.Priority < b.Priority {
			return -1
		}
		return 1
	}
	if c := strings.Compare(NormURI(a.URI), NormURI(b.URI)); c != 0 {
		return c
	}
	if a.Start != b.Start {
		if a.Start < b.Start {
			return -1
		}
		return 1
	}
	if a.End != b.End {
		if a.End < b.End {
			return -1
		}
		return 1
	}
	if a.Section != b.Section {
		if a.Section < b.Section {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.Reason, b.Reason); c != 0 {
		return c
	}
	return strings.Compare(a.Tool, b.Tool)
}
