package server

import (
	"net"
	"strconv"
	"strings"

	"github.com/pageline/pageline/internal/pipeline"
	"github.com/pageline/pageline/internal/publisher"
)

// DomainRegistry 将请求 Host 映射为三态 domain slug：
// publisher.yml 未声明 domain_mapping 时为 Unconfigured，声明但未命中时为 Unmapped。
type DomainRegistry struct {
	configured bool
	slugs      map[string]string
}

// NewDomainRegistry 基于 publisher 配置构建查询表，启动阶段创建一次并复用。
func NewDomainRegistry(cfg *publisher.Config) *DomainRegistry {
	registry := &DomainRegistry{}
	if !cfg.HasDomainMapping() {
		return registry
	}
	registry.configured = true
	registry.slugs = make(map[string]string, len(cfg.DomainMapping))
	for host, slug := range cfg.DomainMapping {
		normalized, _ := normalizeHost(host)
		if normalized == "" {
			continue
		}
		registry.slugs[normalized] = slug
	}
	return registry
}

// Lookup 根据 Host 或 Host:port 返回 domain slug。
func (r *DomainRegistry) Lookup(host string) pipeline.DomainSlug {
	if r == nil || !r.configured {
		return pipeline.Unconfigured()
	}
	normalized, _ := normalizeHost(host)
	slug, ok := r.slugs[normalized]
	if !ok || slug == "" {
		return pipeline.Unmapped()
	}
	return pipeline.Mapped(slug)
}

// Configured reports whether any domain mapping was loaded.
func (r *DomainRegistry) Configured() bool {
	return r != nil && r.configured
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
