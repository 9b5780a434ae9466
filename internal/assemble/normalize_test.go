package assemble

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxpack/internal/config"
	"ctxpack/internal/pack"
)

func TestMergeSpans_UnionsOverlapAndTouch(t *testing.T) {
	spans := []pack.Span{
		{URI: "file:///m.go", Start: 0, End: 100, Priority: 1, Reason: "seed"},
		{URI: "file:///m.go", Start: 50, End: 120, Priority: 2, Reason: "other"},
		{URI: "file:///m.go", Start: 120, End: 150, Priority: 3, Reason: "touch"},
		{URI: "file:///m.go", Start: 200, End: 210, Priority: 1, Reason: "gap"},
	}
	merged := mergeSpans(spans)

	require.Len(t, merged, 2)
	assert.Equal(t, int64(0), merged[0].Start)
	assert.Equal(t, int64(150), merged[0].End)
	assert.Equal(t, int64(200), merged[1].Start)
}

func TestMergeSpans_AttributionFromMostImportant(t *testing.T) {
	spans := []pack.Span{
		{URI: "file:///m.go", Start: 0, End: 10, Priority: 5, Reason: "low", Tool: "a", Section: 1},
		{URI: "file:///m.go", Start: 5, End: 20, Priority: 2, Reason: "high", Tool: "b", Section: 3},
	}
	merged := mergeSpans(spans)

	require.Len(t, merged, 1)
	assert.Equal(t, 2, merged[0].Priority)
	assert.Equal(t, "high", merged[0].Reason)
	assert.Equal(t, "b", merged[0].Tool)
	assert.Equal(t, 3, merged[0].Section)
}

func TestMergeSpans_NonDroppableSurvives(t *testing.T) {
	spans := []pack.Span{
		{URI: "file:///m.go", Start: 0, End: 10, Priority: 1},
		{URI: "file:///m.go", Start: 5, End: 20, Priority: 9, NonDroppable: true},
	}
	merged := mergeSpans(spans)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].NonDroppable)
}

func TestMergeSpans_Idempotent(t *testing.T) {
	spans := []pack.Span{
		{URI: "file:///a.go", Start: 0, End: 30, Priority: 1, Reason: "x"},
		{URI: "file:///a.go", Start: 10, End: 40, Priority: 2, Reason: "y"},
		{URI: "file:///b.go", Start: 0, End: 5, Priority: 1, Reason: "z"},
	}
	once := mergeSpans(spans)
	twice := mergeSpans(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("merge is not idempotent (-once +twice):\n%s", diff)
	}
}

func TestMergeSpans_PermutationIndependent(t *testing.T) {
	spans := []pack.Span{
		{URI: "file:///a.go", Start: 0, End: 30, Priority: 1, Reason: "r1", Tool: "t1"},
		{URI: "file:///a.go", Start: 10, End: 40, Priority: 1, Reason: "r2", Tool: "t2"},
		{URI: "file:///a.go", Start: 100, End: 110, Priority: 4, Reason: "r3"},
		{URI: "file:///b.go", Start: 0, End: 5, Priority: 2, Reason: "r4"},
		{URI: "file:///b.go", Start: 5, End: 9, Priority: 3, Reason: "r5"},
	}
	want := mergeSpans(spans)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]pack.Span, len(spans))
		copy(shuffled, spans)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := mergeSpans(shuffled)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("merge depends on input order (iteration %d, -want +got):\n%s", i, diff)
		}
	}
}

func TestSubtractNever_FullCoverDrops(t *testing.T) {
	report := pack.NewReport()
	spans := []pack.Span{{URI: "file:///x.go", Start: 0, End: 40, Priority: 1}}
	never := []pack.Span{{URI: "file:///x.go", Start: 0, End: 40}}

	out := subtractNever(spans, never, report)
	assert.Empty(t, out)
	assert.Equal(t, 1, report.Pruned[pack.ReasonNeverInclude])
}

func TestSubtractNever_PartialOverlapTrims(t *testing.T) {
	report := pack.NewReport()
	spans := []pack.Span{{URI: "file:///x.go", Start: 0, End: 100, Priority: 1, Reason: "seed"}}
	never := []pack.Span{{URI: "file:///x.go", Start: 20, End: 30}}

	out := subtractNever(spans, never, report)
	require.Len(t, out, 2)
	assert.Equal(t, int64(0), out[0].Start)
	assert.Equal(t, int64(20), out[0].End)
	assert.Equal(t, int64(30), out[1].Start)
	assert.Equal(t, int64(100), out[1].End)
	// Both pieces keep the provenance of the trimmed candidate.
	assert.Equal(t, "seed", out[0].Reason)
	assert.Equal(t, "seed", out[1].Reason)
}

func TestSubtractNever_OtherURIUntouched(t *testing.T) {
	report := pack.NewReport()
	spans := []pack.Span{{URI: "file:///y.go", Start: 0, End: 50}}
	never := []pack.Span{{URI: "file:///x.go", Start: 0, End: 50}}

	out := subtractNever(spans, never, report)
	require.Len(t, out, 1)
	assert.Equal(t, "file:///y.go", out[0].URI)
}

func TestExpandNeighborhood(t *testing.T) {
	spans := []pack.Span{
		{URI: "file:///a.go", Start: 5, End: 10},
		{URI: "file:///a.go", Start: 0, End: pack.UnboundedEnd},
	}
	out := expandNeighborhood(spans, 20)

	assert.Equal(t, int64(0), out[0].Start)
	assert.Equal(t, int64(30), out[0].End)
	// Whole-file sentinel survives expansion untouched.
	assert.Equal(t, pack.UnboundedEnd, out[1].End)
}

func TestClampToLengths_KnownLength(t *testing.T) {
	a := New(config.DefaultSettings(), nil, WithLengthProvider(nil))
	spans := []pack.Span{{URI: "file:///x.go", Start: 25, End: 69}}
	opts := pack.AssembleOptions{FileLengths: map[string]int64{"file:///x.go": 50}}

	out := a.clampToLengths(spans, opts)
	require.Len(t, out, 1)
	assert.LessOrEqual(t, out[0].End, int64(50))
	assert.Equal(t, int64(25), out[0].Start)
}

func TestClampToLengths_UnboundedFallsBackToWindow(t *testing.T) {
	a := New(config.DefaultSettings(), nil, WithLengthProvider(nil))
	spans := []pack.Span{{URI: "file:///ghost.go", Start: 0, End: pack.UnboundedEnd}}

	out := a.clampToLengths(spans, pack.AssembleOptions{})
	require.Len(t, out, 1)
	assert.Equal(t, defaultSeedWindow, out[0].End)
}

func TestClampToLengths_DropsSpanPastEOF(t *testing.T) {
	a := New(config.DefaultSettings(), nil, WithLengthProvider(nil))
	spans := []pack.Span{{URI: "file:///x.go", Start: 60, End: 70}}
	opts := pack.AssembleOptions{FileLengths: map[string]int64{"file:///x.go": 50}}

	// No byte of [60,70) exists in a 50-byte file; no degenerate [60,60)
	// slice should survive to consume budget.
	out := a.clampToLengths(spans, opts)
	assert.Empty(t, out)
}

func TestClampToLengths_KeepsLiteralZeroWidthSpan(t *testing.T) {
	a := New(config.DefaultSettings(), nil, WithLengthProvider(nil))
	spans := []pack.Span{{URI: "file:///x.go", Start: 10, End: 10}}
	opts := pack.AssembleOptions{FileLengths: map[string]int64{"file:///x.go": 50}}

	// A caller-supplied empty range was empty before clamping; it is kept
	// and floors at one token during admission.
	out := a.clampToLengths(spans, opts)
	require.Len(t, out, 1)
	assert.Equal(t, int64(10), out[0].Start)
	assert.Equal(t, int64(10), out[0].End)
}
