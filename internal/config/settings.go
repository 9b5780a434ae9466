// Package config holds the process-wide assembler settings. A Settings value
// is built once at startup (defaults, then an optional YAML file, then
// CTXPACK_* environment overrides) and passed by reference into every call
// that needs it; it is never mutated after Load returns.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings configures selection fan-out, per-capability timeouts, budgets,
// and telemetry redaction. Fields with yaml tags can come from the config
// file; every field can be overridden from the environment.
type Settings struct {
	// Selection
	TopK           int   `yaml:"top_k"`
	NeighborRadius int64 `yaml:"neighbor_radius"`

	// Per-capability timeouts (ms)
	SemanticTimeoutMS  int `yaml:"semantic_timeout_ms"`
	SymbolsTimeoutMS   int `yaml:"symbols_timeout_ms"`
	NeighborsTimeoutMS int `yaml:"neighbors_timeout_ms"`
	PatternsTimeoutMS  int `yaml:"patterns_timeout_ms"`

	// Budgets. Nil means unlimited.
	TokenBudget *int        `yaml:"token_budget"`
	MaxFiles    *int        `yaml:"max_files"`
	SectionCaps map[int]int `yaml:"section_caps"`

	// Behavior
	EnforceNonDroppable bool `yaml:"enforce_non_droppable"`

	// Telemetry redaction
	RedactPathGlobs []string `yaml:"redact_path_globs"`

	// Remote toolkit guards
	MaxResponseBytes int `yaml:"max_response_bytes"`
	MaxSpansPerCall  int `yaml:"max_spans_per_call"`

	// Optional glob patterns fed to the patterns() capability.
	PatternGlobs []string `yaml:"pattern_globs"`

	// HMAC key for signing outbound discovery requests. Secret: excluded
	// from the fingerprint.
	HMACKey string `yaml:"-"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		TopK:               25,
		NeighborRadius:     20,
		SemanticTimeoutMS:  1000,
		SymbolsTimeoutMS:   1000,
		NeighborsTimeoutMS: 1000,
		PatternsTimeoutMS:  1000,
		SectionCaps:        map[int]int{},
		MaxResponseBytes:   1_000_000,
		MaxSpansPerCall:    5000,
	}
}

// Load reads settings from a YAML file (missing file means defaults) and
// applies environment overrides.
func Load(path string) (*Settings, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read settings: %w", err)
			}
		} else if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse settings: %w", err)
		}
	}

	s.applyEnvOverrides()
	return s, nil
}

// FromEnv builds settings from defaults plus environment only.
func FromEnv() *Settings {
	s := DefaultSettings()
	s.applyEnvOverrides()
	return s
}

func (s *Settings) applyEnvOverrides() {
	envInt("CTXPACK_TOP_K", func(v int) { s.TopK = v })
	envInt("CTXPACK_NEIGHBOR_RADIUS", func(v int) { s.NeighborRadius = int64(v) })
	envInt("CTXPACK_SEMANTIC_TIMEOUT_MS", func(v int) { s.SemanticTimeoutMS = v })
	envInt("CTXPACK_SYMBOLS_TIMEOUT_MS", func(v int) { s.SymbolsTimeoutMS = v })
	envInt("CTXPACK_NEIGHBORS_TIMEOUT_MS", func(v int) { s.NeighborsTimeoutMS = v })
	envInt("CTXPACK_PATTERNS_TIMEOUT_MS", func(v int) { s.PatternsTimeoutMS = v })
	envInt("CTXPACK_TOKEN_BUDGET", func(v int) { s.TokenBudget = &v })
	envInt("CTXPACK_MAX_FILES", func(v int) { s.MaxFiles = &v })
	envInt("CTXPACK_MAX_RESPONSE_BYTES", func(v int) { s.MaxResponseBytes = v })
	envInt("CTXPACK_MAX_SPANS_PER_CALL", func(v int) { s.MaxSpansPerCall = v })

	if v := os.Getenv("CTXPACK_ENFORCE_NON_DROPPABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.EnforceNonDroppable = b
		}
	}
	if v := os.Getenv("CTXPACK_SECTION_CAPS"); v != "" {
		if caps := parseSectionCaps(v); caps != nil {
			s.SectionCaps = caps
		}
	}
	if v := os.Getenv("CTXPACK_REDACT_PATH_GLOBS"); v != "" {
		s.RedactPathGlobs = splitList(v)
	}
	if v := os.Getenv("CTXPACK_PATTERN_GLOBS"); v != "" {
		s.PatternGlobs = splitList(v)
	}
	if v := os.Getenv("CTXPACK_HMAC_KEY"); v != "" {
		s.HMACKey = v
	}
}

func envInt(key string, set func(int)) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			set(n)
		}
	}
}

// parseSectionCaps parses "2=1,4=10" into a section->cap map. Malformed
// entries are skipped.
func parseSectionCaps(raw string) map[int]int {
	caps := map[int]int{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		sec, limit, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		si, err1 := strconv.Atoi(strings.TrimSpace(sec))
		li, err2 := strconv.Atoi(strings.TrimSpace(limit))
		if err1 != nil || err2 != nil {
			continue
		}
		caps[si] = li
	}
	return caps
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// TimeoutMS returns the configured timeout for a capability key
// ("semantic", "symbols", "neighbors", "patterns").
func (s *Settings) TimeoutMS(capability string) int {
	switch capability {
	case "semantic":
		return s.SemanticTimeoutMS
	case "symbols":
		return s.SymbolsTimeoutMS
	case "neighbors":
		return s.NeighborsTimeoutMS
	case "patterns":
		return s.PatternsTimeoutMS
	default:
		return 0
	}
}

// Fingerprint digests every hash-relevant field as canonical JSON. Equal
// settings always produce equal fingerprints; the fingerprint participates
// in the pack hash so config changes invalidate downstream caches. The HMAC
// key is deliberately excluded.
func (s *Settings) Fingerprint() string {
	// Section caps keyed by stringified int so JSON key order is sortable.
	caps := map[string]int{}
	for k, v := range s.SectionCaps {
		caps[strconv.Itoa(k)] = v
	}
	globs := append([]string{}, s.PatternGlobs...)
	sort.Strings(globs)

	material := map[string]any{
		"top_k":                 s.TopK,
		"neighbor_radius":       s.NeighborRadius,
		"semantic_timeout_ms":   s.SemanticTimeoutMS,
		"symbols_timeout_ms":    s.SymbolsTimeoutMS,
		"neighbors_timeout_ms":  s.NeighborsTimeoutMS,
		"patterns_timeout_ms":   s.PatternsTimeoutMS,
		"token_budget":          s.TokenBudget,
		"max_files":             s.MaxFiles,
		"section_caps":          caps,
		"enforce_non_droppable": s.EnforceNonDroppable,
		"max_response_bytes":    s.MaxResponseBytes,
		"max_spans_per_call":    s.MaxSpansPerCall,
		"pattern_globs":         globs,
	}
	blob, _ := json.Marshal(material)
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
