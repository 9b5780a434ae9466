package assemble

import (
	"sort"

	"ctxpack/internal/pack"
)

// defaultSeedWindow bounds a whole-resource seed whose file length could not
// be resolved: better a fixed-size head slice than an unbounded range that
// would swallow any token budget.
const defaultSeedWindow = int64(4096)

// expandNeighborhood widens every candidate by the neighbor radius. Unbounded
// whole-file seeds keep their sentinel end; clamping resolves them.
func expandNeighborhood(spans []pack.Span, radius int64) []pack.Span {
	if radius <= 0 {
		return spans
	}
	out := make([]pack.Span, 0, len(spans))
	for _, s := range spans {
		start := s.Start - radius
		if start < 0 {
			start = 0
		}
		end := s.End
		if end < pack.UnboundedEnd {
			if end < s.Start+1 {
				end = s.Start + 1
			}
			end += radius
		}
		s.Start, s.End = start, end
		out = append(out, s)
	}
	return out
}

// mergeSpans unions overlapping or touching spans per URI. The merged span
// takes priority from its most important contributor (lowest value); that
// contributor also supplies reason, tool, and section, ties broken by first
// occurrence in (start, end) sorted order. NonDroppable survives from any
// contributor. The merge is idempotent and independent of input permutation:
// the same multiset of spans always yields byte-identical output.
func mergeSpans(spans []pack.Span) []pack.Span {
	byURI := map[string][]pack.Span{}
	var uris []string
	for _, s := range spans {
		key := pack.NormURI(s.URI)
		if _, ok := byURI[key]; !ok {
			uris = append(uris, key)
		}
		s.URI = key
		byURI[key] = append(byURI[key], s)
	}
	sort.Strings(uris)

	var out []pack.Span
	for _, uri := range uris {
		group := byURI[uri]
		// Full ranking sort, not just (start, end): equal ranges must fold in
		// a permutation-independent order for attribution ties.
		sort.Slice(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if a.Start != b.Start {
				return a.Start < b.Start
			}
			if a.End != b.End {
				return a.End < b.End
			}
			return pack.CompareSpans(a, b) < 0
		})

		var merged []pack.Span
		for _, s := range group {
			if len(merged) == 0 {
				merged = append(merged, s)
				continue
			}
			last := &merged[len(merged)-1]
			if s.Start > last.End {
				merged = append(merged, s)
				continue
			}
			// Overlap or touch: union, re-attribute if s is more important.
			if s.End > last.End {
				last.End = s.End
			}
			if s.Priority < last.Priority {
				last.Priority = s.Priority
				last.Reason = s.Reason
				last.Tool = s.Tool
				last.Section = s.Section
				last.Score = s.Score
			}
			if s.NonDroppable {
				last.NonDroppable = true
			}
		}
		out = append(out, merged...)
	}
	return out
}

// subtractNever removes never-include coverage from the candidates. A fully
// covered candidate is dropped; partial overlap trims the overlapping
// sub-range, splitting the candidate when an excluded range sits inside it.
func subtractNever(spans []pack.Span, never []pack.Span, report *pack.AssembleReport) []pack.Span {
	if len(never) == 0 {
		return spans
	}
	exclude := map[string][][2]int64{}
	for _, n := range never {
		key := pack.NormURI(n.URI)
		exclude[key] = append(exclude[key], [2]int64{n.Start, n.End})
	}
	for key := range exclude {
		exclude[key] = unionRanges(exclude[key])
	}

	var out []pack.Span
	for _, s := range spans {
		ranges, ok := exclude[pack.NormURI(s.URI)]
		if !ok {
			out = append(out, s)
			continue
		}
		pieces := subtractRanges([2]int64{s.Start, s.End}, ranges)
		if len(pieces) == 0 {
			report.Prune(pack.ReasonNeverInclude)
			continue
		}
		for _, p := range pieces {
			trimmed := s
			trimmed.Start, trimmed.End = p[0], p[1]
			out = append(out, trimmed)
		}
	}
	return out
}

// unionRanges collapses intervals into a sorted, disjoint set.
func unionRanges(ranges [][2]int64) [][2]int64 {
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i][0] != ranges[j][0] {
			return ranges[i][0] < ranges[j][0]
		}
		return ranges[i][1] < ranges[j][1]
	})
	var out [][2]int64
	for _, r := range ranges {
		if len(out) > 0 && r[0] <= out[len(out)-1][1] {
			if r[1] > out[len(out)-1][1] {
				out[len(out)-1][1] = r[1]
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// subtractRanges removes the disjoint sorted excluded ranges from span,
// returning the surviving sub-ranges (possibly none).
func subtractRanges(span [2]int64, excluded [][2]int64) [][2]int64 {
	pieces := [][2]int64{span}
	for _, ex := range excluded {
		var next [][2]int64
		for _, p := range pieces {
			if ex[1] <= p[0] || ex[0] >= p[1] {
				next = append(next, p)
				continue
			}
			if ex[0] > p[0] {
				next = append(next, [2]int64{p[0], ex[0]})
			}
			if ex[1] < p[1] {
				next = append(next, [2]int64{ex[1], p[1]})
			}
		}
		pieces = next
	}
	return pieces
}

// clampToLengths resolves unbounded seeds and out-of-range ends against
// known file lengths. Lengths come from the options first, then the
// best-effort provider; a span in a file of unknown length falls back to a
// fixed window. A span that clamping empties (it covered no bytes inside the
// file) is discarded rather than carried forward as a zero-width slice.
func (a *Assembler) clampToLengths(spans []pack.Span, opts pack.AssembleOptions) []pack.Span {
	lengths := map[string]int64{}
	for uri, n := range opts.FileLengths {
		lengths[pack.NormURI(uri)] = n
	}

	var unresolved []string
	seen := map[string]bool{}
	for _, s := range spans {
		key := pack.NormURI(s.URI)
		if _, ok := lengths[key]; !ok && !seen[key] {
			seen[key] = true
			unresolved = append(unresolved, s.URI)
		}
	}
	if len(unresolved) > 0 && a.lengths != nil {
		for uri, n := range a.lengths.LengthsFor(unresolved) {
			lengths[pack.NormURI(uri)] = n
		}
	}

	out := make([]pack.Span, 0, len(spans))
	for _, s := range spans {
		wasEmpty := s.End <= s.Start
		if length, ok := lengths[pack.NormURI(s.URI)]; ok {
			if s.End > length {
				s.End = length
			}
		} else if s.End >= pack.UnboundedEnd {
			s.End = s.Start + defaultSeedWindow
		}
		if s.End <= s.Start && !wasEmpty {
			continue
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		out = append(out, s)
	}
	return out
}
