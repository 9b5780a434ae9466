package assemble

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"ctxpack/internal/pack"
)

// hashSlice is the hashed projection of a slice: content identity only,
// no timestamps.
type hashSlice struct {
	URI           string `json:"uri"`
	Start         int64  `json:"start"`
	End           int64  `json:"end"`
	Bytes         int64  `json:"bytes"`
	TokenEstimate int    `json:"token_estimate"`
	Reason        string `json:"reason"`
	Tool          string `json:"tool"`
}

type hashPayload struct {
	Slices              []hashSlice       `json:"slices"`
	CodeVersion         string            `json:"code_version"`
	ToolVersions        map[string]string `json:"tool_versions"`
	SettingsFingerprint string            `json:"settings_fingerprint"`
}

// ComputeManifestHash digests the ordered slice list together with the
// code/tool/settings identity that produced it. Equal inputs always yield
// equal hashes; changing any metadata string changes the hash even when the
// slices are identical, so the hash doubles as a cache-invalidation key.
// created_at is excluded: it varies per call, the content does not.
func ComputeManifestHash(m pack.Manifest, codeVersion string, toolVersions map[string]string, settingsFingerprint string) string {
	payload := hashPayload{
		Slices:              make([]hashSlice, 0, len(m.Slices)),
		CodeVersion:         codeVersion,
		ToolVersions:        toolVersions,
		SettingsFingerprint: settingsFingerprint,
	}
	if payload.ToolVersions == nil {
		payload.ToolVersions = map[string]string{}
	}
	for _, s := range m.Slices {
		payload.Slices = append(payload.Slices, hashSlice{
			URI:           s.URI,
			Start:         s.Start,
			End:           s.End,
			Bytes:         s.Bytes,
			TokenEstimate: s.TokenEstimate,
			Reason:        s.Reason,
			Tool:          s.Tool,
		})
	}
	// encoding/json emits struct fields in declared order and sorts map
	// keys, so this is a canonical serialization.
	blob, _ := json.Marshal(payload)
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// FingerprintInputs digests the caller intent for manifest metadata.
func FingerprintInputs(inputs pack.AssembleInputs) string {
	blob, _ := json.Marshal(inputs)
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
