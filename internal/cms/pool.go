package cms

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// ClientSource resolves the Client serving a request host.
type ClientSource interface {
	ForHost(hostname string) (Client, error)
}

// Pool hands out one Client per API host. Requests for hosts listed in the
// host mapping use their dedicated API host, everything else the default.
type Pool struct {
	defaultURL string
	hostToAPI  map[string]string
	opts       Options

	mu      sync.Mutex
	clients map[string]*APIClient
}

// NewPool validates the default API URL and prepares the lazy client map.
func NewPool(defaultURL string, hostToAPI map[string]string, opts Options) (*Pool, error) {
	if strings.TrimSpace(defaultURL) == "" {
		return nil, fmt.Errorf("cms: default api host is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient(DefaultTimeout)
	}
	normalized := make(map[string]string, len(hostToAPI))
	for host, api := range hostToAPI {
		normalized[strings.ToLower(host)] = api
	}
	p := &Pool{
		defaultURL: defaultURL,
		hostToAPI:  normalized,
		opts:       opts,
		clients:    make(map[string]*APIClient),
	}
	if _, err := p.clientFor(defaultURL); err != nil {
		return nil, err
	}
	return p, nil
}

// ForHost returns the client responsible for the given request hostname.
func (p *Pool) ForHost(hostname string) (Client, error) {
	target := p.defaultURL
	if api, ok := p.hostToAPI[strings.ToLower(hostname)]; ok && api != "" {
		target = api
	}
	client, err := p.clientFor(target)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// HTTPClient exposes the shared HTTP client so forwarding reuses connections.
func (p *Pool) HTTPClient() *http.Client {
	return p.opts.HTTPClient
}

func (p *Pool) clientFor(baseURL string) (*APIClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[baseURL]; ok {
		return client, nil
	}
	client, err := NewAPIClient(baseURL, p.opts)
	if err != nil {
		return nil, err
	}
	p.clients[baseURL] = client
	return client, nil
}
