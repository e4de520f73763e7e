package pipeline

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pageline/pageline/internal/cms"
)

// RouteDescriptor maps a path pattern to a page type. Patterns are made of
// literal segments, named parameters (":slug"), optional parameters
// (":slug?") and a trailing splat ("*", captured as "0").
type RouteDescriptor struct {
	Path     string         `json:"path"`
	PageType string         `json:"pageType"`
	Params   map[string]any `json:"params,omitempty"`
}

// RouteMatch is the outcome of a successful match.
type RouteMatch struct {
	PageType string
	Params   map[string]any
}

// RouteGenerator produces the ordered route table for a config and domain.
// It runs on every request.
type RouteGenerator func(cfg cms.Config, slug DomainSlug) ([]RouteDescriptor, error)

// MatchRoute returns the first descriptor whose pattern matches path, with
// static params overlaid by path params.
func MatchRoute(path string, routes []RouteDescriptor) (RouteMatch, bool) {
	segments := splitPath(path)
	for _, route := range routes {
		captured := map[string]any{}
		if !matchSegments(splitPath(route.Path), segments, captured) {
			continue
		}
		params := make(map[string]any, len(route.Params)+len(captured))
		for k, v := range route.Params {
			params[k] = v
		}
		for k, v := range captured {
			params[k] = v
		}
		return RouteMatch{PageType: route.PageType, Params: params}, true
	}
	return RouteMatch{}, false
}

// SafeGenerate runs gen, converting an error or a panic into a plain error so
// callers can treat it as not-found.
func SafeGenerate(gen RouteGenerator, cfg cms.Config, slug DomainSlug) (routes []RouteDescriptor, err error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: no route generator", ErrRouteNotFound)
	}
	defer func() {
		if r := recover(); r != nil {
			routes = nil
			err = fmt.Errorf("generate routes panicked: %v", r)
		}
	}()
	return gen(cfg, slug)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func matchSegments(pattern, path []string, params map[string]any) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	seg := pattern[0]
	switch {
	case seg == "*":
		params["0"] = unescape(strings.Join(path, "/"))
		return true
	case strings.HasPrefix(seg, ":"):
		name, optional := strings.CutSuffix(seg[1:], "?")
		if len(path) > 0 && path[0] != "" && matchSegments(pattern[1:], path[1:], params) {
			params[name] = unescape(path[0])
			return true
		}
		return optional && matchSegments(pattern[1:], path, params)
	default:
		return len(path) > 0 && strings.EqualFold(seg, path[0]) && matchSegments(pattern[1:], path[1:], params)
	}
}

func unescape(segment string) string {
	if decoded, err := url.PathUnescape(segment); err == nil {
		return decoded
	}
	return segment
}
