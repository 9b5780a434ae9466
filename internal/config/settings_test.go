package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 25, s.TopK)
	assert.Equal(t, int64(20), s.NeighborRadius)
	assert.Equal(t, 1000, s.SemanticTimeoutMS)
	assert.Nil(t, s.TokenBudget)
	assert.Nil(t, s.MaxFiles)
	assert.False(t, s.EnforceNonDroppable)
	assert.Equal(t, 1_000_000, s.MaxResponseBytes)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 25, s.TopK)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("top_k: 7\nneighbor_radius: 3\nenforce_non_droppable: true\n"), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, s.TopK)
	assert.Equal(t, int64(3), s.NeighborRadius)
	assert.True(t, s.EnforceNonDroppable)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CTXPACK_TOP_K", "10")
	t.Setenv("CTXPACK_TOKEN_BUDGET", "500")
	t.Setenv("CTXPACK_ENFORCE_NON_DROPPABLE", "true")
	t.Setenv("CTXPACK_SECTION_CAPS", "2=1, 4=10")
	t.Setenv("CTXPACK_REDACT_PATH_GLOBS", "*.secret,*.key")
	t.Setenv("CTXPACK_HMAC_KEY", "hunter2")

	s := FromEnv()
	assert.Equal(t, 10, s.TopK)
	require.NotNil(t, s.TokenBudget)
	assert.Equal(t, 500, *s.TokenBudget)
	assert.True(t, s.EnforceNonDroppable)
	assert.Equal(t, map[int]int{2: 1, 4: 10}, s.SectionCaps)
	assert.Equal(t, []string{"*.secret", "*.key"}, s.RedactPathGlobs)
	assert.Equal(t, "hunter2", s.HMACKey)
}

func TestEnvOverrides_MalformedIgnored(t *testing.T) {
	t.Setenv("CTXPACK_TOP_K", "not-a-number")
	t.Setenv("CTXPACK_SECTION_CAPS", "bogus,3=2")

	s := FromEnv()
	assert.Equal(t, 25, s.TopK)
	assert.Equal(t, map[int]int{3: 2}, s.SectionCaps)
}

func TestFingerprint_Stable(t *testing.T) {
	a := DefaultSettings()
	b := DefaultSettings()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	// Repeated calls on the same value are stable too.
	assert.Equal(t, a.Fingerprint(), a.Fingerprint())
}

func TestFingerprint_SensitiveToFields(t *testing.T) {
	base := DefaultSettings()
	changed := DefaultSettings()
	changed.TopK = 26
	assert.NotEqual(t, base.Fingerprint(), changed.Fingerprint())

	capped := DefaultSettings()
	capped.SectionCaps = map[int]int{2: 1}
	assert.NotEqual(t, base.Fingerprint(), capped.Fingerprint())
}

func TestFingerprint_ExcludesHMACKey(t *testing.T) {
	base := DefaultSettings()
	keyed := DefaultSettings()
	keyed.HMACKey = "secret"
	assert.Equal(t, base.Fingerprint(), keyed.Fingerprint())
}

func TestTimeoutMS(t *testing.T) {
	s := DefaultSettings()
	s.NeighborsTimeoutMS = 250
	assert.Equal(t, 250, s.TimeoutMS("neighbors"))
	assert.Equal(t, 1000, s.TimeoutMS("semantic"))
	assert.Zero(t, s.TimeoutMS("unknown"))
}
