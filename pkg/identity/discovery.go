package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// discoveryDocument is the subset of the OIDC discovery response the
// gateway needs.
type discoveryDocument struct {
	UserinfoEndpoint string `json:"userinfo_endpoint"`
}

// DiscoveryClient resolves and caches userinfo endpoints from OIDC
// discovery documents, keyed by authority.
type DiscoveryClient struct {
	client *http.Client
	mu     sync.RWMutex
	cache  map[string]string
}

// NewDiscoveryClient creates a DiscoveryClient with the given timeout.
func NewDiscoveryClient(timeout time.Duration) *DiscoveryClient {
	return &DiscoveryClient{
		client: &http.Client{Timeout: timeout},
		cache:  make(map[string]string),
	}
}

// UserinfoEndpoint returns the authority's userinfo endpoint, fetching
// the discovery document on first use.
func (c *DiscoveryClient) UserinfoEndpoint(ctx context.Context, authority string) (string, error) {
	c.mu.RLock()
	endpoint, ok := c.cache[authority]
	c.mu.RUnlock()
	if ok {
		return endpoint, nil
	}

	wellKnown := strings.TrimRight(authority, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return "", fmt.Errorf("identity: invalid authority %q: %w", authority, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity: discovery fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity: discovery returned status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("identity: failed to decode discovery document: %w", err)
	}
	if doc.UserinfoEndpoint == "" {
		return "", fmt.Errorf("identity: discovery document has no userinfo endpoint")
	}

	c.mu.Lock()
	c.cache[authority] = doc.UserinfoEndpoint
	c.mu.Unlock()

	return doc.UserinfoEndpoint, nil
}
