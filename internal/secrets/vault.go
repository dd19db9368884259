package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// VaultConfig locates loom's secrets in a HashiCorp Vault KV v2 engine. All
// of loom's keys live in a single document at Mount/Path.
type VaultConfig struct {
	// Address is the Vault server base URL.
	Address string
	// Token authenticates the request.
	Token string
	// Mount is the KV v2 engine mount (default "secret").
	Mount string
	// Path is the document path under the mount (default "loom").
	Path string
	// Timeout bounds each HTTP request (default 10s).
	Timeout time.Duration
}

// VaultSource reads loom's secret document from Vault. The document is
// fetched once on first lookup and held for the process lifetime; loom has
// no long-running interest in rotation.
type VaultSource struct {
	cfg    VaultConfig
	client *http.Client

	mu     sync.Mutex
	values map[string]string
}

// NewVaultSource validates cfg and returns a source. No request is made
// until the first lookup.
func NewVaultSource(cfg VaultConfig) (*VaultSource, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("secrets: vault address required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("secrets: vault token required")
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Path == "" {
		cfg.Path = "loom"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &VaultSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *VaultSource) Name() string { return "vault" }

func (s *VaultSource) Lookup(ctx context.Context, key Key) (string, error) {
	values, err := s.document(ctx)
	if err != nil {
		return "", err
	}
	val, ok := values[string(key)]
	if !ok || val == "" {
		return "", fmt.Errorf("%w: %s not in vault document %s/%s", ErrNotFound, key, s.cfg.Mount, s.cfg.Path)
	}
	return val, nil
}

// document returns the cached secret document, fetching it on first use.
// Failed fetches are not cached so a transient Vault outage at startup does
// not poison later lookups.
func (s *VaultSource) document(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values != nil {
		return s.values, nil
	}

	url := fmt.Sprintf("%s/v1/%s/data/%s",
		strings.TrimSuffix(s.cfg.Address, "/"), s.cfg.Mount, s.cfg.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("secrets: building vault request: %w", err)
	}
	req.Header.Set("X-Vault-Token", s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("secrets: vault request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: vault document %s/%s missing", ErrNotFound, s.cfg.Mount, s.cfg.Path)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("secrets: vault returned %s: %s", resp.Status, body)
	}

	// KV v2 wraps the stored pairs in data.data.
	var payload struct {
		Data struct {
			Data map[string]string `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("secrets: decoding vault response: %w", err)
	}
	if payload.Data.Data == nil {
		payload.Data.Data = make(map[string]string)
	}
	s.values = payload.Data.Data
	return s.values, nil
}
