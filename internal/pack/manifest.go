package pack

import (
	"math"
	"time"
)

// BytesPerToken is the fixed ratio used to derive token estimates from byte
// counts. The downstream prompt layer budgets in tokens; slices are byte
// ranges.
const BytesPerToken = 4

// Slice is a span that survived merge, clamp, and admission.
type Slice struct {
	URI           string `json:"uri"`
	Start         int64  `json:"start"`
	End           int64  `json:"end"`
	Bytes         int64  `json:"bytes"`
	TokenEstimate int    `json:"token_estimate"`
	Reason        string `json:"reason,omitempty"`
	Tool          string `json:"tool,omitempty"`
}

// EstimateTokens converts a byte length to a token estimate. Floors at 1 so
// degenerate zero-length seeds still consume budget.
func EstimateTokens(byteLen int64) int {
	if byteLen < 0 {
		byteLen = 0
	}
	n := int(math.Ceil(float64(byteLen) / float64(BytesPerToken)))
	if n < 1 {
		n = 1
	}
	return n
}

// ManifestMeta carries the identity of a manifest: the content hash plus the
// code/tool/settings fingerprints that participated in it. CreatedAt is
// informational only and excluded from hashing.
type ManifestMeta struct {
	PackHash            string            `json:"pack_hash,omitempty"`
	CodeVersion         string            `json:"code_version,omitempty"`
	ToolVersions        map[string]string `json:"tool_versions,omitempty"`
	SettingsFingerprint string            `json:"settings_fingerprint,omitempty"`
	CreatedAt           string            `json:"created_at"`
	InputsFingerprint   string            `json:"inputs_fingerprint,omitempty"`
}

// Manifest is the unit of output: the ordered admitted slices plus metadata.
// Slice order is a total function of content (see CompareSpans), never of
// provider arrival order.
type Manifest struct {
	Slices []Slice      `json:"slices"`
	Meta   ManifestMeta `json:"meta"`
}

// NewManifest stamps CreatedAt at construction time.
func NewManifest(slices []Slice) Manifest {
	if slices == nil {
		slices = []Slice{}
	}
	return Manifest{
		Slices: slices,
		Meta:   ManifestMeta{CreatedAt: time.Now().UTC().Format(time.RFC3339Nano)},
	}
}
