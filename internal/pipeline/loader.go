package pipeline

import (
	"context"
	"errors"

	"github.com/pageline/pageline/internal/cms"
)

// ErrRouteNotFound signals that no page could be produced for a path: no
// route matched, the route table could not be generated, or the loader passed.
var ErrRouteNotFound = errors.New("route not found")

// LoadResult is what a loader hands back. Zero values mean "not set": an
// empty Title or zero HTTPStatusCode is left out of the envelope.
type LoadResult struct {
	Data           any
	Title          string
	HTTPStatusCode int
	CacheKeys      []string
	Config         any
	// Fields are extra top-level envelope keys (e.g. "pageType").
	Fields map[string]any

	domain *DomainContext
}

// Domain returns the host metadata stamped by the domain decorators.
func (r LoadResult) Domain() (DomainContext, bool) {
	if r.domain == nil {
		return DomainContext{}, false
	}
	return *r.domain, true
}

// withDomain attaches ctx and drops loader fields it supersedes.
func (r LoadResult) withDomain(ctx DomainContext) LoadResult {
	if len(r.Fields) > 0 {
		fields := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			switch k {
			case "domainSlug", "currentHostUrl", "primaryHostUrl":
				continue
			}
			fields[k] = v
		}
		r.Fields = fields
	}
	r.domain = &ctx
	return r
}

// Outcome is a page loader's non-error result: either a page was found or
// the loader passed and the request should be handled as not-found.
type Outcome struct {
	result LoadResult
	found  bool
}

// Found wraps a successful load.
func Found(result LoadResult) Outcome {
	return Outcome{result: result, found: true}
}

// Pass tells the orchestrator this loader cannot serve the page.
func Pass() Outcome {
	return Outcome{}
}

// Result returns the loaded page, if any.
func (o Outcome) Result() (LoadResult, bool) {
	return o.result, o.found
}

// LoadOptions carries request-derived values every loader receives.
type LoadOptions struct {
	Host   string
	Domain DomainSlug
}

// LoadRequest is the full input of a page loader.
type LoadRequest struct {
	PageType string
	Params   map[string]any
	Config   cms.Config
	Client   cms.Client
	Options  LoadOptions
}

// DataLoader loads data for a matched page. Returning an error is a failure
// and triggers the error loader.
type DataLoader interface {
	LoadData(ctx context.Context, req LoadRequest) (Outcome, error)
}

// DataLoaderFunc adapts a function to DataLoader.
type DataLoaderFunc func(ctx context.Context, req LoadRequest) (Outcome, error)

// LoadData calls f.
func (f DataLoaderFunc) LoadData(ctx context.Context, req LoadRequest) (Outcome, error) {
	return f(ctx, req)
}

// ErrorLoader produces the page shown for not-found and failed requests.
// cause is ErrRouteNotFound (possibly wrapped) for not-found and passes.
type ErrorLoader interface {
	LoadErrorData(ctx context.Context, cause error, cfg cms.Config, opts LoadOptions) (LoadResult, error)
}

// ErrorLoaderFunc adapts a function to ErrorLoader.
type ErrorLoaderFunc func(ctx context.Context, cause error, cfg cms.Config, opts LoadOptions) (LoadResult, error)

// LoadErrorData calls f.
func (f ErrorLoaderFunc) LoadErrorData(ctx context.Context, cause error, cfg cms.Config, opts LoadOptions) (LoadResult, error) {
	return f(ctx, cause, cfg, opts)
}

// RethrowErrorLoader is the default error loader: it fails with the cause,
// which makes every non-success request fatal.
var RethrowErrorLoader = ErrorLoaderFunc(func(_ context.Context, cause error, _ cms.Config, _ LoadOptions) (LoadResult, error) {
	return LoadResult{}, cause
})

// LogErrorFunc receives the originating error of every non-success request.
// It must not block.
type LogErrorFunc func(err error)
