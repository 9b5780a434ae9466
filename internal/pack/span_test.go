package pack

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareSpans_PriorityFirst(t *testing.T) {
	// Lower priority value ranks first regardless of uri.
	hi := Span{URI: "file:///z.go", Priority: 1}
	lo := Span{URI: "file:///a.go", Priority: 5}
	assert.Negative(t, CompareSpans(hi, lo))
	assert.Positive(t, CompareSpans(lo, hi))
}

func TestCompareSpans_TieBreaksDeterministic(t *testing.T) {
	spans := []Span{
		{URI: "file:///b.go", Start: 10, End: 20, Priority: 1},
		{URI: "file:///a.go", Start: 10, End: 20, Priority: 1},
		{URI: "file:///a.go", Start: 5, End: 20, Priority: 1},
		{URI: "file:///a.go", Start: 5, End: 9, Priority: 1},
	}
	sort.Slice(spans, func(i, j int) bool { return CompareSpans(spans[i], spans[j]) < 0 })

	want := []Span{
		{URI: "file:///a.go", Start: 5, End: 9, Priority: 1},
		{URI: "file:///a.go", Start: 5, End: 20, Priority: 1},
		{URI: "file:///a.go", Start: 10, End: 20, Priority: 1},
		{URI: "file:///b.go", Start: 10, End: 20, Priority: 1},
	}
	if diff := cmp.Diff(want, spans); diff != "" {
		t.Errorf("sorted spans mismatch (-want +got):\n%s", diff)
	}
}

func TestCompareSpans_EqualSpans(t *testing.T) {
	s := Span{URI: "file:///a.go", Start: 1, End: 2, Priority: 3, Reason: "r", Tool: "t"}
	assert.Zero(t, CompareSpans(s, s))
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name    string
		byteLen int64
		want    int
	}{
		{"zero floors at one", 0, 1},
		{"negative floors at one", -5, 1},
		{"exact multiple", 8, 2},
		{"rounds up", 9, 3},
		{"single byte", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.byteLen))
		})
	}
}

func TestNormURI(t *testing.T) {
	assert.Equal(t, "a/b/c.go", NormURI(`a\b\c.go`))
}

func TestManifestRoundTrip(t *testing.T) {
	m := NewManifest([]Slice{
		{URI: "file:///a.go", Start: 0, End: 40, Bytes: 40, TokenEstimate: 10, Reason: "seed", Tool: "semantic_search"},
	})
	m.Meta.PackHash = "abc123"
	m.Meta.CodeVersion = "v1"
	m.Meta.ToolVersions = map[string]string{"semantic": "2.0"}
	m.Meta.SettingsFingerprint = "fp"
	m.Meta.InputsFingerprint = "in"

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded Manifest
	require.NoError(t, json.Unmarshal(data, &decoded))
	if diff := cmp.Diff(m, decoded); diff != "" {
		t.Errorf("manifest did not round-trip (-want +got):\n%s", diff)
	}
}

func TestNewManifest_StampsCreatedAt(t *testing.T) {
	m := NewManifest(nil)
	assert.NotEmpty(t, m.Meta.CreatedAt)
	assert.NotNil(t, m.Slices)
}

func TestBudgetError_Message(t *testing.T) {
	err := &BudgetError{Overflow: []OverflowItem{
		{URI: "file:///big.go", Start: 0, End: 100, Reason: ReasonTokenBudget},
	}}
	assert.Contains(t, err.Error(), "budget")
	assert.NotEmpty(t, err.Overflow)
}

func TestSectionCapReason(t *testing.T) {
	assert.Equal(t, "section_cap_2", SectionCapReason(2))
}
