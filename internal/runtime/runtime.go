// Package runtime wraps the assembly pipeline into the externally visible
// unit of work: run an ASSEMBLING phase for one run id, with lifecycle
// events, artifact persistence, and telemetry redaction. The artifact store
// and event sink are externally owned collaborators; this package never
// interleaves writes for the same run id.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ctxpack/internal/assemble"
	"ctxpack/internal/config"
	"ctxpack/internal/pack"
)

// ManifestArtifactName is the fixed logical name the manifest is persisted
// under for every run.
const ManifestArtifactName = "artifacts/context/manifest.json"

// PhaseAssembling is the lifecycle phase emitted around assembly.
const PhaseAssembling = "ASSEMBLING"

// ArtifactStore persists named artifacts per run.
type ArtifactStore interface {
	Persist(ctx context.Context, runID, name string, data []byte, mediaType string) (string, error)
	Get(ctx context.Context, runID, name string) ([]byte, error)
}

// EventSink receives lifecycle events, append-only per run.
type EventSink interface {
	Emit(ctx context.Context, runID string, event map[string]any) error
}

// MemoryStore is an in-memory ArtifactStore for tests and local runs.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

func (s *MemoryStore) key(runID, name string) string { return runID + "/" + name }

func (s *MemoryStore) Persist(_ context.Context, runID, name string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.data[s.key(runID, name)] = buf
	return "mem://" + s.key(runID, name), nil
}

func (s *MemoryStore) Get(_ context.Context, runID, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[s.key(runID, name)]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s/%s", runID, name)
	}
	return data, nil
}

// MemorySink collects events per run for assertions.
type MemorySink struct {
	mu     sync.Mutex
	events map[string][]map[string]any
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{events: map[string][]map[string]any{}}
}

func (s *MemorySink) Emit(_ context.Context, runID string, event map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[runID] = append(s.events[runID], event)
	return nil
}

// Events returns the events recorded for a run, in emission order.
func (s *MemorySink) Events(runID string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.events[runID]))
	copy(out, s.events[runID])
	return out
}

// Runner orchestrates assembling phases.
type Runner struct {
	assembler *assemble.Assembler
	settings  *config.Settings
	store     ArtifactStore
	sink      EventSink
	logger    *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStore overrides the artifact store.
func WithStore(s ArtifactStore) RunnerOption { return func(r *Runner) { r.store = s } }

// WithSink overrides the event sink.
func WithSink(s EventSink) RunnerOption { return func(r *Runner) { r.sink = s } }

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) RunnerOption { return func(r *Runner) { r.logger = l } }

// NewRunner wires an assembler to its collaborators. Missing collaborators
// default to in-memory implementations.
func NewRunner(assembler *assemble.Assembler, settings *config.Settings, opts ...RunnerOption) *Runner {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	r := &Runner{
		assembler: assembler,
		settings:  settings,
		store:     NewMemoryStore(),
		sink:      NewMemorySink(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) emit(ctx context.Context, runID string, event map[string]any) {
	event = RedactEvent(event, r.settings.RedactPathGlobs)
	if err := r.sink.Emit(ctx, runID, event); err != nil {
		r.logger.Warn("event emit failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// RunAssemblingPhase executes one assembly under the run's lifecycle: a
// start event, the pipeline, manifest persistence, and a terminal event. On
// any failure the terminal event reflects the error before it propagates;
// partial state is never left without a terminal event.
func (r *Runner) RunAssemblingPhase(ctx context.Context, runID string, inputs pack.AssembleInputs, opts pack.AssembleOptions, meta assemble.Meta) (pack.Manifest, string, *pack.AssembleReport, error) {
	r.emit(ctx, runID, map[string]any{
		"phase":  PhaseAssembling,
		"status": "start",
		"run_id": runID,
	})

	manifest, hash, report, err := r.assembler.Assemble(ctx, inputs, opts, meta)
	if err != nil {
		r.emit(ctx, runID, map[string]any{
			"phase":  PhaseAssembling,
			"status": "error",
			"run_id": runID,
			"error":  err.Error(),
		})
		return pack.Manifest{}, "", report, err
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		r.emit(ctx, runID, map[string]any{
			"phase":  PhaseAssembling,
			"status": "error",
			"run_id": runID,
			"error":  err.Error(),
		})
		return pack.Manifest{}, "", report, fmt.Errorf("encode manifest: %w", err)
	}
	artifact, err := r.store.Persist(ctx, runID, ManifestArtifactName, data, "application/json")
	if err != nil {
		r.emit(ctx, runID, map[string]any{
			"phase":  PhaseAssembling,
			"status": "error",
			"run_id": runID,
			"error":  err.Error(),
		})
		return pack.Manifest{}, "", report, fmt.Errorf("persist manifest: %w", err)
	}

	exampleURI := ""
	if len(manifest.Slices) > 0 {
		exampleURI = manifest.Slices[0].URI
	}
	r.emit(ctx, runID, map[string]any{
		"phase":       PhaseAssembling,
		"status":      "end",
		"run_id":      runID,
		"pack_hash":   hash,
		"example_uri": exampleURI,
		"files_out":   report.FilesOut,
		"tokens_out":  report.TokensOut,
		"artifact":    artifact,
	})

	return manifest, hash, report, nil
}
