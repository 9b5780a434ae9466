// Package filelen resolves file-style URIs to byte lengths for clamping.
// Resolution is best-effort: unknown schemes and stat failures are skipped,
// never reported.
package filelen

import (
	"net/url"
	"os"
)

// Provider stats local files behind file:// URIs.
type Provider struct{}

// New returns a local filesystem provider.
func New() *Provider { return &Provider{} }

// LengthsFor returns byte lengths for every resolvable uri. Unresolvable
// entries are absent from the result.
func (p *Provider) LengthsFor(uris []string) map[string]int64 {
	out := make(map[string]int64, len(uris))
	for _, u := range uris {
		path, ok := localPath(u)
		if !ok {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		size := info.Size()
		if size < 1 {
			size = 1
		}
		out[u] = size
	}
	return out
}

func localPath(uri string) (string, bool) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme != "file" || parsed.Path == "" {
		return "", false
	}
	return parsed.Path, true
}
