package toolkit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"

	"ctxpack/internal/config"
	"ctxpack/internal/pack"
)

// memoCache is a small FIFO-bounded memo for remote responses, keyed by
// (op, repoSHA|toolVersions, params hash). Identical discovery requests
// within one process reuse the first answer.
type memoCache struct {
	mu    sync.Mutex
	max   int
	data  map[string][]pack.Span
	order []string
}

func newMemoCache(max int) *memoCache {
	return &memoCache{max: max, data: map[string][]pack.Span{}}
}

func (c *memoCache) get(key string) ([]pack.Span, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *memoCache) put(key string, v []pack.Span) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return
	}
	c.data[key] = v
	c.order = append(c.order, key)
	if len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.data, oldest)
	}
}

// HTTPKit is a remote-backed ToolKit. Each capability maps to a POST
// endpoint under the base URL; requests carry an HMAC-SHA256 signature over
// the canonical JSON payload when a signing key is configured. Responses are
// guarded by size and span-count limits from settings.
type HTTPKit struct {
	base         string
	repoSHA      string
	traceID      string
	caps         map[Capability]bool
	toolVersions map[string]string
	settings     *config.Settings
	client       *http.Client
	cache        *memoCache
	logger       *zap.Logger
}

// HTTPKitOption mutates an HTTPKit during construction.
type HTTPKitOption func(*HTTPKit)

// WithHTTPClient injects a transport, primarily for tests.
func WithHTTPClient(c *http.Client) HTTPKitOption {
	return func(k *HTTPKit) { k.client = c }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) HTTPKitOption {
	return func(k *HTTPKit) { k.logger = l }
}

// WithTraceID threads a request-scoped trace id into every payload.
func WithTraceID(id string) HTTPKitOption {
	return func(k *HTTPKit) { k.traceID = id }
}

// NewHTTPKit builds a remote kit for the given base URL. caps declares which
// endpoints the remote tool actually serves; toolVersions is echoed into
// manifest metadata.
func NewHTTPKit(base, repoSHA string, caps map[Capability]bool, toolVersions map[string]string, settings *config.Settings, opts ...HTTPKitOption) *HTTPKit {
	k := &HTTPKit{
		base:         base,
		repoSHA:      repoSHA,
		caps:         caps,
		toolVersions: toolVersions,
		settings:     settings,
		client:       &http.Client{},
		cache:        newMemoCache(512),
		logger:       zap.NewNop(),
	}
	if k.caps == nil {
		k.caps = map[Capability]bool{}
	}
	if k.toolVersions == nil {
		k.toolVersions = map[string]string{}
	}
	if k.settings == nil {
		k.settings = config.DefaultSettings()
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// canonicalJSON marshals with sorted keys and no extra whitespace so the
// signature is stable across processes. encoding/json already sorts map keys.
func canonicalJSON(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}

func (k *HTTPKit) sign(blob []byte) string {
	if k.settings.HMACKey == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(k.settings.HMACKey))
	mac.Write(blob)
	return hex.EncodeToString(mac.Sum(nil))
}

func (k *HTTPKit) cacheKey(op string, blob []byte) string {
	keys := make([]string, 0, len(k.toolVersions))
	for name := range k.toolVersions {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	var versions bytes.Buffer
	for _, name := range keys {
		fmt.Fprintf(&versions, "%s:%s|", name, k.toolVersions[name])
	}
	sum := sha256.Sum256(blob)
	return fmt.Sprintf("%s/%s|%s/%s", op, k.repoSHA, versions.String(), hex.EncodeToString(sum[:]))
}

type spanResponse struct {
	Spans []pack.Span `json:"spans"`
}

func (k *HTTPKit) call(ctx context.Context, op string, capability Capability, payload map[string]any) ([]pack.Span, error) {
	if !k.caps[capability] {
		return nil, nil
	}
	payload["trace_id"] = k.traceID
	payload["repo_sha"] = k.repoSHA

	blob, err := canonicalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", op, err)
	}
	key := k.cacheKey(op, blob)
	if cached, ok := k.cache.get(key); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.base+"/"+op, bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sig := k.sign(blob); sig != "" {
		req.Header.Set("X-Signature", sig)
		req.Header.Set("Authorization", "Signature "+sig)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s call: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		k.logger.Warn("discovery call failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%s call: status %d", op, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(k.settings.MaxResponseBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if len(body) > k.settings.MaxResponseBytes {
		return nil, fmt.Errorf("%s response exceeds %d bytes", op, k.settings.MaxResponseBytes)
	}

	var decoded spanResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", op, err)
	}
	spans := decoded.Spans
	if len(spans) > k.settings.MaxSpansPerCall {
		spans = spans[:k.settings.MaxSpansPerCall]
	}

	k.cache.put(key, spans)
	return spans, nil
}

func (k *HTTPKit) SemanticSearch(ctx context.Context, query string, topK int) ([]pack.Span, error) {
	return k.call(ctx, "semantic_search", CapSemanticSearch, map[string]any{
		"query": query,
		"top_k": topK,
	})
}

func (k *HTTPKit) Symbols(ctx context.Context, target string) ([]pack.Span, error) {
	return k.call(ctx, "symbols", CapSymbols, map[string]any{
		"target": target,
	})
}

func (k *HTTPKit) Neighbors(ctx context.Context, uri string, offset, radius int64) ([]pack.Span, error) {
	return k.call(ctx, "neighbors", CapNeighbors, map[string]any{
		"uri":           uri,
		"line_or_start": offset,
		"radius":        radius,
	})
}

func (k *HTTPKit) Patterns(ctx context.Context, globs []string) ([]pack.Span, error) {
	if globs == nil {
		globs = []string{}
	}
	return k.call(ctx, "patterns", CapPatterns, map[string]any{
		"globs": globs,
	})
}

func (k *HTTPKit) Capabilities() map[Capability]bool { return k.caps }
func (k *HTTPKit) Versions() map[string]string       { return k.toolVersions }
