// Package assemble implements the context-pack pipeline: seed collection
// with capability gating and per-call timeouts, deterministic merge and
// clamp, budget-constrained admission with overflow accounting, and the
// content-addressed manifest hash.
//
// Assemble is a pure function of its inputs: for a fixed (inputs, options)
// and a toolkit returning fixed data, two independent calls produce the same
// slice order, the same report, and the same pack hash regardless of how the
// concurrent discovery calls interleave.
package assemble

import (
	"context"

	"go.uber.org/zap"

	"ctxpack/internal/config"
	"ctxpack/internal/filelen"
	"ctxpack/internal/pack"
	"ctxpack/internal/toolkit"
)

// LengthProvider resolves resource identifiers to byte lengths, best-effort.
type LengthProvider interface {
	LengthsFor(uris []string) map[string]int64
}

// Meta identifies the code and tools behind one assembly for hashing.
type Meta struct {
	CodeVersion  string
	ToolVersions map[string]string
}

// Assembler runs the pipeline. Construct once and reuse; it holds no
// per-call state.
type Assembler struct {
	settings *config.Settings
	kit      toolkit.ToolKit
	lengths  LengthProvider
	logger   *zap.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLengthProvider overrides the file-length provider.
func WithLengthProvider(p LengthProvider) Option {
	return func(a *Assembler) { a.lengths = p }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// New builds an Assembler over the given toolkit. A nil kit behaves as a
// Noop kit: caller-supplied seeds only.
func New(settings *config.Settings, kit toolkit.ToolKit, opts ...Option) *Assembler {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	if kit == nil {
		kit = toolkit.Noop{}
	}
	a := &Assembler{
		settings: settings,
		kit:      kit,
		lengths:  filelen.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Options derives per-call options from the process settings.
func (a *Assembler) Options() pack.AssembleOptions {
	return pack.AssembleOptions{
		TopK:                a.settings.TopK,
		NeighborRadius:      a.settings.NeighborRadius,
		TokenBudget:         a.settings.TokenBudget,
		MaxFiles:            a.settings.MaxFiles,
		SectionCaps:         a.settings.SectionCaps,
		EnforceNonDroppable: a.settings.EnforceNonDroppable,
	}
}

// Assemble runs the full pipeline and returns the manifest, its pack hash,
// and the drop accounting. The only error path is a BudgetError under
// non-droppable enforcement; discovery failures degrade to empty
// contributions.
func (a *Assembler) Assemble(ctx context.Context, inputs pack.AssembleInputs, opts pack.AssembleOptions, meta Meta) (pack.Manifest, string, *pack.AssembleReport, error) {
	report := pack.NewReport()

	spans := a.collectSeeds(ctx, inputs, opts)
	report.SpansIn = len(spans)

	// Clamp before the never-include subtraction so exclusion applies to the
	// real byte ranges: an expanded or whole-file span trimmed down to bytes
	// outside the file must not survive as an empty residue of an excluded
	// region.
	spans = expandNeighborhood(spans, opts.NeighborRadius)
	spans = mergeSpans(spans)
	spans = a.clampToLengths(spans, opts)
	spans = subtractNever(spans, inputs.NeverInclude, report)
	report.SpansMerged = len(spans)

	slices, err := admit(spans, opts, report)
	if err != nil {
		return pack.Manifest{}, "", report, err
	}

	toolVersions := meta.ToolVersions
	if toolVersions == nil {
		toolVersions = a.kit.Versions()
	}
	fingerprint := a.settings.Fingerprint()

	manifest := pack.NewManifest(slices)
	hash := ComputeManifestHash(manifest, meta.CodeVersion, toolVersions, fingerprint)
	manifest.Meta.PackHash = hash
	manifest.Meta.CodeVersion = meta.CodeVersion
	manifest.Meta.ToolVersions = toolVersions
	manifest.Meta.SettingsFingerprint = fingerprint
	manifest.Meta.InputsFingerprint = FingerprintInputs(inputs)

	a.logger.Debug("assembled context pack",
		zap.Int("spans_in", report.SpansIn),
		zap.Int("spans_merged", report.SpansMerged),
		zap.Int("files_out", report.FilesOut),
		zap.Int("tokens_out", report.TokensOut),
		zap.Int("overflow", len(report.Overflow)),
		zap.String("pack_hash", hash))

	return manifest, hash, report, nil
}
