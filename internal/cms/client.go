// Package cms talks to the upstream content-management API: publisher config,
// stories and collections. Each API host gets one Client; Pool maps request
// hosts onto them.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when a CMS resource cannot be located.
var ErrNotFound = errors.New("cms: not found")

// StatusError reports a non-success response from the CMS.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cms: %s returned status %d", e.URL, e.StatusCode)
}

// Story is a CMS story document.
type Story map[string]any

// Slug returns the story's canonical slug.
func (s Story) Slug() string {
	slug, _ := s["slug"].(string)
	return slug
}

// Client is what the page pipeline needs from the CMS.
type Client interface {
	Config(ctx context.Context) (Config, error)
	StoryBySlug(ctx context.Context, slug string) (Story, error)
	Collection(ctx context.Context, slug string) (json.RawMessage, error)
	Hostname() string
}

// Options configures an APIClient.
type Options struct {
	// ConfigTTL caches the config document; zero disables caching.
	ConfigTTL  time.Duration
	HTTPClient *http.Client
}

// APIClient is the HTTP implementation of Client.
type APIClient struct {
	baseURL  string
	hostname string
	http     *http.Client
	ttl      time.Duration

	mu        sync.RWMutex
	config    Config
	expiresAt time.Time
	now       func() time.Time
}

// NewAPIClient constructs a client for the given API base URL.
func NewAPIClient(baseURL string, opts Options) (*APIClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("cms: invalid base url %q", baseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	return &APIClient{
		baseURL:  baseURL,
		hostname: parsed.Hostname(),
		http:     httpClient,
		ttl:      opts.ConfigTTL,
		now:      time.Now,
	}, nil
}

// Hostname is the API host, sent as Host on forwarded requests.
func (c *APIClient) Hostname() string {
	return c.hostname
}

// Config fetches /api/v1/config, serving from cache while it is fresh.
func (c *APIClient) Config(ctx context.Context) (Config, error) {
	if cfg, ok := c.cachedConfig(); ok {
		return cfg, nil
	}
	raw, err := c.get(ctx, "/api/v1/config", nil)
	if err != nil {
		return Config{}, err
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return Config{}, err
	}
	c.storeConfig(cfg)
	return cfg, nil
}

// StoryBySlug fetches a story; a missing story yields ErrNotFound.
func (c *APIClient) StoryBySlug(ctx context.Context, slug string) (Story, error) {
	slug = strings.Trim(strings.TrimSpace(slug), "/")
	if slug == "" {
		return nil, ErrNotFound
	}
	raw, err := c.get(ctx, "/api/v1/stories-by-slug", url.Values{"slug": {slug}})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Story Story `json:"story"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("cms: decode story %s: %w", slug, err)
	}
	if payload.Story == nil {
		return nil, ErrNotFound
	}
	return payload.Story, nil
}

// Collection fetches a collection as raw JSON so key order survives.
func (c *APIClient) Collection(ctx context.Context, slug string) (json.RawMessage, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, ErrNotFound
	}
	return c.get(ctx, "/api/v1/collections/"+url.PathEscape(slug), nil)
}

func (c *APIClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cms: build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cms: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cms: read %s: %w", path, err)
	}
	return body, nil
}

func (c *APIClient) cachedConfig() (Config, bool) {
	if c.ttl <= 0 {
		return Config{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.config.fields == nil || c.now().After(c.expiresAt) {
		return Config{}, false
	}
	return c.config, true
}

func (c *APIClient) storeConfig(cfg Config) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.config = cfg
	c.expiresAt = c.now().Add(c.ttl)
	c.mu.Unlock()
}
