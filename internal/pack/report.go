package pack

import "fmt"

// Overflow reason strings recorded in reports. Section caps use
// SectionCapReason(n).
const (
	ReasonTokenBudget  = "token_budget"
	ReasonMaxFiles     = "max_files"
	ReasonNeverInclude = "never_include"
)

// SectionCapReason names the overflow reason for a capped section.
func SectionCapReason(section int) string {
	return fmt.Sprintf("section_cap_%d", section)
}

// OverflowItem records one candidate dropped during admission.
type OverflowItem struct {
	URI    string `json:"uri"`
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
	Reason string `json:"reason"`
	Tool   string `json:"tool,omitempty"`
}

// AssembleReport accounts for everything that happened to the candidate set:
// how many spans came in, what merged, what was admitted, and every drop with
// its reason. Overflow is ordered by the ranking key, never by arrival.
type AssembleReport struct {
	SpansIn     int            `json:"spans_in"`
	SpansMerged int            `json:"spans_merged"`
	FilesOut    int            `json:"files_out"`
	TokensOut   int            `json:"tokens_out"`
	Pruned      map[string]int `json:"pruned"`
	Overflow    []OverflowItem `json:"overflow"`
	Violation   bool           `json:"violation"`
}

// NewReport returns a report with allocated aggregates.
func NewReport() *AssembleReport {
	return &AssembleReport{
		Pruned:   map[string]int{},
		Overflow: []OverflowItem{},
	}
}

// Prune counts one drop under the given reason.
func (r *AssembleReport) Prune(reason string) {
	r.Pruned[reason]++
}

// BudgetError is the sole fatal pipeline error: a non-droppable span could
// not be admitted while enforcement is on. It carries the offending overflow
// record for diagnostics.
type BudgetError struct {
	Overflow []OverflowItem
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("resource budget exceeded during assembly (%d overflow items)", len(e.Overflow))
}
