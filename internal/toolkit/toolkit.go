// Package toolkit abstracts the pluggable discovery providers behind the
// assembler: semantic search, symbol lookup, neighborhood expansion, and
// pattern matching. Providers advertise the capabilities they support;
// invoking an unsupported capability is a no-op, not an error.
package toolkit

import (
	"context"

	"ctxpack/internal/pack"
)

// Capability names a discovery operation a provider may support.
type Capability string

const (
	CapSemanticSearch Capability = "semantic_search"
	CapSymbols        Capability = "symbols"
	CapNeighbors      Capability = "neighbors"
	CapPatterns       Capability = "patterns"
)

// ToolKit is the discovery provider contract. Every operation is
// best-effort: callers treat an error (or a timeout on ctx) as an empty
// contribution and never abort assembly over it.
type ToolKit interface {
	SemanticSearch(ctx context.Context, query string, topK int) ([]pack.Span, error)
	Symbols(ctx context.Context, target string) ([]pack.Span, error)
	Neighbors(ctx context.Context, uri string, offset, radius int64) ([]pack.Span, error)
	Patterns(ctx context.Context, globs []string) ([]pack.Span, error)

	// Capabilities reports which operations this provider actually serves.
	Capabilities() map[Capability]bool
	// Versions identifies the backing tools for manifest metadata.
	Versions() map[string]string
}

// Supports reports whether the kit advertises a capability.
func Supports(tk ToolKit, c Capability) bool {
	if tk == nil {
		return false
	}
	return tk.Capabilities()[c]
}

// Noop is a ToolKit with no capabilities. Assembly with a Noop kit still
// yields the caller-supplied seeds.
type Noop struct{}

func (Noop) SemanticSearch(context.Context, string, int) ([]pack.Span, error) { return nil, nil }
func (Noop) Symbols(context.Context, string) ([]pack.Span, error)             { return nil, nil }
func (Noop) Neighbors(context.Context, string, int64, int64) ([]pack.Span, error) {
	return nil, nil
}
func (Noop) Patterns(context.Context, []string) ([]pack.Span, error) { return nil, nil }
func (Noop) Capabilities() map[Capability]bool                       { return map[Capability]bool{} }
func (Noop) Versions() map[string]string                             { return map[string]string{} }
