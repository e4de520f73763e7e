package pipeline

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/pageline/pageline/internal/cms"
)

type slugState uint8

const (
	slugUnconfigured slugState = iota
	slugUnmapped
	slugMapped
)

// DomainSlug identifies the tenant a request belongs to. It has three
// states: no domain mapping configured, mapping configured but this host is
// not in it, and a mapped slug.
type DomainSlug struct {
	state slugState
	value string
}

// Unconfigured is the slug for deployments without a domain mapping.
func Unconfigured() DomainSlug { return DomainSlug{} }

// Unmapped is the slug for hosts missing from an existing domain mapping.
func Unmapped() DomainSlug { return DomainSlug{state: slugUnmapped} }

// Mapped wraps a resolved slug.
func Mapped(slug string) DomainSlug { return DomainSlug{state: slugMapped, value: slug} }

// Value returns the slug when mapped.
func (s DomainSlug) Value() (string, bool) {
	return s.value, s.state == slugMapped
}

// Configured reports whether a domain mapping exists at all.
func (s DomainSlug) Configured() bool {
	return s.state != slugUnconfigured
}

// String is used for logs and metric labels.
func (s DomainSlug) String() string {
	switch s.state {
	case slugMapped:
		return s.value
	case slugUnmapped:
		return "null"
	default:
		return ""
	}
}

// MarshalJSON encodes a mapped slug as a string and anything else as null.
// The envelope omits unconfigured slugs entirely.
func (s DomainSlug) MarshalJSON() ([]byte, error) {
	if s.state != slugMapped {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// DomainContext is the host metadata stamped onto every loaded result.
type DomainContext struct {
	Slug           DomainSlug
	CurrentHostURL string
	PrimaryHostURL string
}

// ResolveDomain derives host origins from the CMS config. The domain entry
// matching slug provides the current host; otherwise the primary host does.
func ResolveDomain(view cms.HostView, slug DomainSlug) DomainContext {
	primary := originOf(view.SketchesHost)
	current := primary
	if value, ok := slug.Value(); ok {
		if d, found := view.DomainBySlug(value); found {
			current = originOf(d.HostURL)
		}
	}
	return DomainContext{Slug: slug, CurrentHostURL: current, PrimaryHostURL: primary}
}

// WithDomain decorates a page loader so successful results carry the
// resolved DomainContext. Passes and failures are returned untouched.
func WithDomain(next DataLoader) DataLoader {
	return DataLoaderFunc(func(ctx context.Context, req LoadRequest) (Outcome, error) {
		out, err := next.LoadData(ctx, req)
		if err != nil {
			return out, err
		}
		result, found := out.Result()
		if !found {
			return out, nil
		}
		return Found(result.withDomain(resolveFor(req.Config, req.Options.Domain))), nil
	})
}

// WithDomainOnError decorates an error loader the same way WithDomain does.
func WithDomainOnError(next ErrorLoader) ErrorLoader {
	return ErrorLoaderFunc(func(ctx context.Context, cause error, cfg cms.Config, opts LoadOptions) (LoadResult, error) {
		result, err := next.LoadErrorData(ctx, cause, cfg, opts)
		if err != nil {
			return result, err
		}
		return result.withDomain(resolveFor(cfg, opts.Domain)), nil
	})
}

// resolveFor never fails: keys other than sketches-host and domains are not
// read, and malformed host entries resolve to the primary host.
func resolveFor(cfg cms.Config, slug DomainSlug) DomainContext {
	return ResolveDomain(cms.DecodeHosts(cfg), slug)
}

// originOf reduces an absolute URL to scheme://host. Empty or relative input
// yields "".
func originOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
