package accounts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultCacheTTL       = time.Minute
	maxUsernameBytes      = 1024
)

// Client resolves user identifiers to display names. It decorates responses
// only: callers must treat failures as a degraded display name, never as an
// authorization signal.
type Client interface {
	UsernameByID(ctx context.Context, userID string) (string, error)
}

// HTTPClientConfig configures the identity-service lookup client.
type HTTPClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	CacheTTL       time.Duration
}

type cacheEntry struct {
	username string
	expires  time.Time
}

// HTTPClient fetches usernames from the identity service, collapsing
// concurrent lookups for the same user and caching results briefly.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewHTTPClient constructs a lookup client against the identity service base
// URL (scheme and host, no trailing path).
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("identity service base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse identity service url: %w", err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &HTTPClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		cacheTTL:   ttl,
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
	}, nil
}

// UsernameByID resolves the display name for the user id, serving cached
// values when fresh and collapsing concurrent fetches for the same id.
func (c *HTTPClient) UsernameByID(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id required")
	}
	if username, ok := c.cached(userID); ok {
		return username, nil
	}

	value, err, _ := c.group.Do(userID, func() (interface{}, error) {
		if username, ok := c.cached(userID); ok {
			return username, nil
		}
		username, err := c.fetch(ctx, userID)
		if err != nil {
			return "", err
		}
		c.store(userID, username)
		return username, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (c *HTTPClient) cached(userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[userID]
	if !ok || c.now().After(entry.expires) {
		return "", false
	}
	return entry.username, true
}

func (c *HTTPClient) store(userID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[userID] = cacheEntry{username: username, expires: c.now().Add(c.cacheTTL)}
}

func (c *HTTPClient) fetch(ctx context.Context, userID string) (string, error) {
	target := fmt.Sprintf("%s/api/auth/users/%s/username", c.baseURL, url.PathEscape(userID))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create username request: %w", err)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("lookup username for %s: %w", userID, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup username for %s: unexpected status %d", userID, response.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, maxUsernameBytes))
	if err != nil {
		return "", fmt.Errorf("read username response: %w", err)
	}
	username := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(body)), `"`))
	if username == "" {
		return "", fmt.Errorf("lookup username for %s: empty response", userID)
	}
	return username, nil
}

// StaticClient serves usernames from a fixed map, for development and tests.
type StaticClient struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewStaticClient copies the provided map into a StaticClient.
func NewStaticClient(names map[string]string) *StaticClient {
	copied := make(map[string]string, len(names))
	for id, name := range names {
		copied[id] = name
	}
	return &StaticClient{names: copied}
}

func (c *StaticClient) UsernameByID(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	username, ok := c.names[userID]
	if !ok {
		return "", fmt.Errorf("unknown user %s", userID)
	}
	return username, nil
}

// Set adds or replaces a username mapping.
func (c *StaticClient) Set(userID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[userID] = username
}
