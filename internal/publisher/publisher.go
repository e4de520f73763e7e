// Package publisher loads publisher.yml, the per-deployment description of
// the CMS origin, the asset CDN and the multi-domain host mapping.
package publisher

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config mirrors publisher.yml.
type Config struct {
	SketchesHost string `yaml:"sketches_host"`
	AssetHost    string `yaml:"asset_host"`
	// DomainMapping maps request hostnames to domain slugs. A nil map means
	// multi-domain support is not configured at all.
	DomainMapping map[string]string `yaml:"domain_mapping"`
	// HostToAPIHost routes specific request hosts to a dedicated CMS API host.
	HostToAPIHost map[string]string `yaml:"host_to_api_host"`

	// Manifest enables /manifest.json; its keys override the generated ones.
	Manifest map[string]any `yaml:"manifest"`
	// AssetLinks enables /.well-known/assetlinks.json for the Android app.
	AssetLinks *AssetLinks `yaml:"asset_links"`
	// StaticRoutes are fixed pages served ahead of the generated route table.
	StaticRoutes []StaticRoute `yaml:"static_routes"`
	// JSONProxies expose remote JSON documents through the CDN.
	JSONProxies []JSONProxy `yaml:"json_proxies"`
}

// AssetLinks names the Android package allowed to handle site URLs.
type AssetLinks struct {
	PackageName    string   `yaml:"package_name"`
	AuthorizedKeys []string `yaml:"authorized_keys"`
}

// StaticRoute binds an exact path to a page type.
type StaticRoute struct {
	Path     string         `yaml:"path"`
	PageType string         `yaml:"page_type"`
	Params   map[string]any `yaml:"params"`
}

// JSONProxy forwards GET Route to URL. Route segments such as :resource are
// substituted into {resource} placeholders of URL.
type JSONProxy struct {
	Route        string `yaml:"route"`
	URL          string `yaml:"url"`
	CacheControl string `yaml:"cache_control"`
}

// Load reads and validates a publisher.yml file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publisher config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes publisher.yml content.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse publisher config: %w", err)
	}
	cfg.normalize()
	return &cfg, cfg.Validate()
}

// Validate checks that the CMS origin is usable.
func (c *Config) Validate() error {
	if c.SketchesHost == "" {
		return fmt.Errorf("sketches_host is required")
	}
	u, err := url.Parse(c.SketchesHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("sketches_host must be an absolute url: %q", c.SketchesHost)
	}
	for host, api := range c.HostToAPIHost {
		if u, err := url.Parse(api); err != nil || u.Host == "" {
			return fmt.Errorf("host_to_api_host[%s] must be an absolute url: %q", host, api)
		}
	}
	if c.AssetLinks != nil && c.AssetLinks.PackageName == "" {
		return fmt.Errorf("asset_links.package_name is required")
	}
	for i, route := range c.StaticRoutes {
		if !strings.HasPrefix(route.Path, "/") || route.PageType == "" {
			return fmt.Errorf("static_routes[%d] needs an absolute path and a page_type", i)
		}
	}
	for i, proxy := range c.JSONProxies {
		if !strings.HasPrefix(proxy.Route, "/") {
			return fmt.Errorf("json_proxies[%d].route must start with /: %q", i, proxy.Route)
		}
		if u, err := url.Parse(proxy.URL); err != nil || u.Host == "" {
			return fmt.Errorf("json_proxies[%d].url must be an absolute url: %q", i, proxy.URL)
		}
	}
	return nil
}

// HasDomainMapping reports whether domain_mapping was present in the file.
func (c *Config) HasDomainMapping() bool {
	return c != nil && c.DomainMapping != nil
}

// DomainFor returns the slug mapped to host.
func (c *Config) DomainFor(host string) (string, bool) {
	if c == nil {
		return "", false
	}
	slug, ok := c.DomainMapping[strings.ToLower(host)]
	return slug, ok && slug != ""
}

func (c *Config) normalize() {
	c.SketchesHost = strings.TrimRight(strings.TrimSpace(c.SketchesHost), "/")
	if c.DomainMapping != nil {
		lowered := make(map[string]string, len(c.DomainMapping))
		for host, slug := range c.DomainMapping {
			lowered[strings.ToLower(strings.TrimSpace(host))] = slug
		}
		c.DomainMapping = lowered
	}
}
