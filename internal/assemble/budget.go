package assemble

import (
	"sort"

	"ctxpack/internal/pack"
)

// admit walks the ranked candidates once and decides, deterministically,
// which become slices. Checks run in a fixed order (token budget, max files,
// section cap); the first failing check names the overflow reason. Admission
// has no side effects until a candidate passes every check, and no candidate
// is re-evaluated.
//
// Every rejection is recorded. A rejected non-droppable candidate sets the
// violation flag; under enforcement the first such rejection aborts with a
// BudgetError instead and no partial manifest is returned.
func admit(spans []pack.Span, opts pack.AssembleOptions, report *pack.AssembleReport) ([]pack.Slice, error) {
	ranked := make([]pack.Span, len(spans))
	copy(ranked, spans)
	sort.Slice(ranked, func(i, j int) bool {
		return pack.CompareSpans(ranked[i], ranked[j]) < 0
	})

	var (
		slices       []pack.Slice
		tokensUsed   int
		filesSeen    = map[string]bool{}
		sectionsUsed = map[int]int{}
	)

	for _, sp := range ranked {
		tokens := pack.EstimateTokens(sp.End - sp.Start)

		reason := ""
		switch {
		case opts.TokenBudget != nil && tokensUsed+tokens > *opts.TokenBudget:
			reason = pack.ReasonTokenBudget
		case opts.MaxFiles != nil && !filesSeen[sp.URI] && len(filesSeen) >= *opts.MaxFiles:
			reason = pack.ReasonMaxFiles
		default:
			if limit, ok := opts.SectionCaps[sp.Section]; ok && sectionsUsed[sp.Section] >= limit {
				reason = pack.SectionCapReason(sp.Section)
			}
		}

		if reason != "" {
			item := pack.OverflowItem{
				URI:    sp.URI,
				Start:  sp.Start,
				End:    sp.End,
				Reason: reason,
				Tool:   sp.Tool,
			}
			report.Overflow = append(report.Overflow, item)
			report.Prune(reason)
			if sp.NonDroppable {
				if opts.EnforceNonDroppable {
					return nil, &pack.BudgetError{Overflow: append([]pack.OverflowItem{}, report.Overflow...)}
				}
				report.Violation = true
			}
			continue
		}

		tokensUsed += tokens
		filesSeen[sp.URI] = true
		sectionsUsed[sp.Section]++
		slices = append(slices, pack.Slice{
			URI:           sp.URI,
			Start:         sp.Start,
			End:           sp.End,
			Bytes:         sp.End - sp.Start,
			TokenEstimate: tokens,
			Reason:        sp.Reason,
			Tool:          sp.Tool,
		})
	}

	report.TokensOut = tokensUsed
	report.FilesOut = len(filesSeen)
	return slices, nil
}
