package toolkit

import (
	"context"
	"sync"
	"time"

	"ctxpack/internal/pack"
)

// Static is a fixture ToolKit serving canned spans. Latency can be injected
// per capability to exercise timeout isolation; a call honors ctx
// cancellation while sleeping.
type Static struct {
	SemanticSpans  []pack.Span
	SymbolSpans    []pack.Span
	NeighborSpans  []pack.Span
	PatternSpans   []pack.Span
	Latency        map[Capability]time.Duration
	ToolVersions   map[string]string
	Supported      map[Capability]bool

	mu sync.Mutex
	// Calls records capability invocation counts.
	Calls map[Capability]int
}

// NewStatic returns a Static kit supporting every capability.
func NewStatic() *Static {
	return &Static{
		Supported: map[Capability]bool{
			CapSemanticSearch: true,
			CapSymbols:        true,
			CapNeighbors:      true,
			CapPatterns:       true,
		},
		Latency:      map[Capability]time.Duration{},
		ToolVersions: map[string]string{},
		Calls:        map[Capability]int{},
	}
}

func (s *Static) serve(ctx context.Context, c Capability, spans []pack.Span) ([]pack.Span, error) {
	s.mu.Lock()
	if s.Calls != nil {
		s.Calls[c]++
	}
	s.mu.Unlock()
	if d := s.Latency[c]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([]pack.Span, len(spans))
	copy(out, spans)
	return out, nil
}

func (s *Static) SemanticSearch(ctx context.Context, query string, topK int) ([]pack.Span, error) {
	spans, err := s.serve(ctx, CapSemanticSearch, s.SemanticSpans)
	if err != nil {
		return nil, err
	}
	if topK > 0 && len(spans) > topK {
		spans = spans[:topK]
	}
	return spans, nil
}

func (s *Static) Symbols(ctx context.Context, target string) ([]pack.Span, error) {
	return s.serve(ctx, CapSymbols, s.SymbolSpans)
}

func (s *Static) Neighbors(ctx context.Context, uri string, offset, radius int64) ([]pack.Span, error) {
	spans, err := s.serve(ctx, CapNeighbors, s.NeighborSpans)
	if err != nil {
		return nil, err
	}
	if len(spans) > 0 {
		return spans, nil
	}
	// Default behavior: a window of radius bytes around the offset.
	start := offset - radius
	if start < 0 {
		start = 0
	}
	return []pack.Span{{
		URI:      uri,
		Start:    start,
		End:      offset + radius,
		Section:  pack.SectionFailing,
		Priority: pack.PriorityFailingTest,
		Reason:   "neighbors",
		Tool:     string(CapNeighbors),
	}}, nil
}

func (s *Static) Patterns(ctx context.Context, globs []string) ([]pack.Span, error) {
	return s.serve(ctx, CapPatterns, s.PatternSpans)
}

func (s *Static) Capabilities() map[Capability]bool { return s.Supported }
func (s *Static) Versions() map[string]string       { return s.ToolVersions }

// CallCount reports how many times a capability was invoked.
func (s *Static) CallCount(c Capability) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[c]
}
