package pack

// FailingTest locates a failing test for neighborhood expansion.
type FailingTest struct {
	Path string `json:"path"`
	Line int64  `json:"line"`
}

// AssembleInputs is the caller's intent: what changed, what failed, what must
// or must never appear in the pack.
type AssembleInputs struct {
	TaskTargets     []string      `json:"task_targets,omitempty"`
	ChangedPaths    []string      `json:"changed_paths,omitempty"`
	ReferencedFiles []string      `json:"referenced_files,omitempty"`
	FailingTests    []FailingTest `json:"failing_tests,omitempty"`
	MustInclude     []Span        `json:"must_include,omitempty"`
	NeverInclude    []Span        `json:"never_include,omitempty"`
}

// Timeout map keys, one per discovery capability.
const (
	TimeoutSemantic  = "semantic"
	TimeoutSymbols   = "symbols"
	TimeoutNeighbors = "neighbors"
	TimeoutPatterns  = "patterns"
)

// AssembleOptions are the budget and behavior knobs for one assembly call.
// Nil pointer budgets mean unlimited.
type AssembleOptions struct {
	TopK                int              `json:"top_k,omitempty"`
	NeighborRadius      int64            `json:"neighbor_radius,omitempty"`
	TokenBudget         *int             `json:"token_budget,omitempty"`
	MaxFiles            *int             `json:"max_files,omitempty"`
	SectionCaps         map[int]int      `json:"section_caps,omitempty"`
	EnforceNonDroppable bool             `json:"enforce_non_droppable,omitempty"`
	TimeoutsMS          map[string]int   `json:"timeouts_ms,omitempty"`
	FileLengths         map[string]int64 `json:"file_lengths,omitempty"`
}

// TimeoutMS returns the configured timeout for a capability, or def when
// absent or non-positive.
func (o AssembleOptions) TimeoutMS(capability string, def int) int {
	if v, ok := o.TimeoutsMS[capability]; ok && v > 0 {
		return v
	}
	return def
}
