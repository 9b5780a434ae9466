package assemble

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ctxpack/internal/pack"
	"ctxpack/internal/toolkit"
)

// discoveryCall is one capability invocation planned from the inputs. Results
// land in a fixed slot so the fold order is a function of the inputs, never
// of provider arrival order.
type discoveryCall struct {
	capability toolkit.Capability
	timeoutKey string
	reason     string
	invoke     func(ctx context.Context) ([]pack.Span, error)
}

// collectSeeds turns the inputs into the flat candidate span list: literal
// seeds first (must_include, changed paths, referenced files, failing test
// anchors), then the fan-in of concurrent capability calls. Every capability
// call is independently bounded by its timeout; a timeout or provider error
// contributes nothing and never aborts assembly.
func (a *Assembler) collectSeeds(ctx context.Context, inputs pack.AssembleInputs, opts pack.AssembleOptions) []pack.Span {
	var spans []pack.Span

	for _, sp := range inputs.MustInclude {
		sp.NonDroppable = true
		if sp.Reason == "" {
			sp.Reason = "must_include"
		}
		spans = append(spans, sp)
	}
	for _, p := range inputs.ChangedPaths {
		spans = append(spans, pack.Span{
			URI:      p,
			Start:    0,
			End:      pack.UnboundedEnd,
			Section:  pack.SectionChanged,
			Priority: pack.PrioritySeed,
			Reason:   "changed_path",
		})
	}
	for _, p := range inputs.ReferencedFiles {
		spans = append(spans, pack.Span{
			URI:      p,
			Start:    0,
			End:      pack.UnboundedEnd,
			Section:  pack.SectionReferenced,
			Priority: pack.PrioritySeed,
			Reason:   "referenced_file",
		})
	}
	for _, ft := range inputs.FailingTests {
		if ft.Path == "" {
			continue
		}
		spans = append(spans, pack.Span{
			URI:      ft.Path,
			Start:    ft.Line,
			End:      ft.Line + 1,
			Section:  pack.SectionFailing,
			Priority: pack.PriorityFailingTest,
			Reason:   "failing_test",
		})
	}

	calls := a.planDiscovery(inputs, opts)
	if len(calls) == 0 {
		return spans
	}

	results := make([][]pack.Span, len(calls))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		eg.Go(func() error {
			timeout := time.Duration(opts.TimeoutMS(call.timeoutKey, a.settings.TimeoutMS(call.timeoutKey))) * time.Millisecond
			callCtx, cancel := context.WithTimeout(egCtx, timeout)
			defer cancel()

			res, err := call.invoke(callCtx)
			if err != nil {
				a.logger.Debug("discovery call degraded to empty",
					zap.String("capability", string(call.capability)),
					zap.Error(err))
				return nil
			}
			for j := range res {
				if res[j].Reason == "" {
					res[j].Reason = call.reason
				}
				if res[j].Tool == "" {
					res[j].Tool = string(call.capability)
				}
			}
			results[i] = res
			return nil
		})
	}
	// Goroutines never return errors; Wait is a pure join.
	_ = eg.Wait()

	for _, res := range results {
		spans = append(spans, res...)
	}
	return spans
}

// planDiscovery maps inputs to capability calls, honoring capability gating:
// a kit that does not advertise an operation is never asked for it.
func (a *Assembler) planDiscovery(inputs pack.AssembleInputs, opts pack.AssembleOptions) []discoveryCall {
	var calls []discoveryCall

	if toolkit.Supports(a.kit, toolkit.CapSemanticSearch) {
		for _, target := range inputs.TaskTargets {
			target := target
			calls = append(calls, discoveryCall{
				capability: toolkit.CapSemanticSearch,
				timeoutKey: pack.TimeoutSemantic,
				reason:     "semantic_search",
				invoke: func(ctx context.Context) ([]pack.Span, error) {
					return a.kit.SemanticSearch(ctx, target, opts.TopK)
				},
			})
		}
	}
	if toolkit.Supports(a.kit, toolkit.CapSymbols) {
		for _, rf := range inputs.ReferencedFiles {
			rf := rf
			calls = append(calls, discoveryCall{
				capability: toolkit.CapSymbols,
				timeoutKey: pack.TimeoutSymbols,
				reason:     "symbols",
				invoke: func(ctx context.Context) ([]pack.Span, error) {
					return a.kit.Symbols(ctx, rf)
				},
			})
		}
	}
	if toolkit.Supports(a.kit, toolkit.CapNeighbors) {
		for _, ft := range inputs.FailingTests {
			ft := ft
			if ft.Path == "" {
				continue
			}
			calls = append(calls, discoveryCall{
				capability: toolkit.CapNeighbors,
				timeoutKey: pack.TimeoutNeighbors,
				reason:     "neighbors",
				invoke: func(ctx context.Context) ([]pack.Span, error) {
					return a.kit.Neighbors(ctx, ft.Path, ft.Line, opts.NeighborRadius)
				},
			})
		}
	}
	if toolkit.Supports(a.kit, toolkit.CapPatterns) && len(a.settings.PatternGlobs) > 0 {
		calls = append(calls, discoveryCall{
			capability: toolkit.CapPatterns,
			timeoutKey: pack.TimeoutPatterns,
			reason:     "patterns",
			invoke: func(ctx context.Context) ([]pack.Span, error) {
				return a.kit.Patterns(ctx, a.settings.PatternGlobs)
			},
		})
	}
	return calls
}
