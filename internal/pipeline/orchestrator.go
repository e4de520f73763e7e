package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/whitelist"
)

// State is the terminal state of one request.
type State int

const (
	// StateSuccess: the page loader found the page.
	StateSuccess State = iota + 1
	// StateAborted: no route matched or the loader passed; the error loader answered.
	StateAborted
	// StateFailed: the page loader failed; the error loader answered.
	StateFailed
	// StateFatal: the error loader failed too. No body is sent.
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	case StateFatal:
		return "fatal"
	default:
		return "pending"
	}
}

// Options enumerates the pipeline collaborators.
type Options struct {
	// GenerateRoutes builds the route table for each request. Required.
	GenerateRoutes RouteGenerator
	// LoadData loads page data. Required.
	LoadData DataLoader
	// LoadErrorData answers not-found and failed requests. Defaults to
	// RethrowErrorLoader.
	LoadErrorData ErrorLoader
	// LogError receives the originating error of each non-success request.
	// Defaults to a no-op.
	LogError LogErrorFunc
	// AppVersion is written into every envelope. Defaults to 1.
	AppVersion int
	// MobileRules restrict the mobile envelope. Empty rules filter nothing.
	MobileRules whitelist.Rules
	// Observe, when set, sees every final Result with its duration.
	Observe func(res Result, elapsed time.Duration)
}

// Request is one page data request.
type Request struct {
	// Path is the page path, query already stripped. Empty means "/".
	Path string
	// Query holds the remaining query parameters; route params override them.
	Query  map[string]any
	Host   string
	Domain DomainSlug
	Config cms.Config
	Client cms.Client
}

// Result is the orchestrator's verdict, consumed by Assemble.
type Result struct {
	State    State
	PageType string
	Load     LoadResult
	// Err is the originating error for every non-success state.
	Err error
}

// Pipeline runs requests through the route matcher and loaders.
type Pipeline struct {
	opts      Options
	load      DataLoader
	loadError ErrorLoader
}

// New validates opts, applies defaults and wraps both loaders with the
// domain resolver.
func New(opts Options) (*Pipeline, error) {
	if opts.GenerateRoutes == nil {
		return nil, errors.New("pipeline: GenerateRoutes is required")
	}
	if opts.LoadData == nil {
		return nil, errors.New("pipeline: LoadData is required")
	}
	if opts.LoadErrorData == nil {
		opts.LoadErrorData = RethrowErrorLoader
	}
	if opts.LogError == nil {
		opts.LogError = func(error) {}
	}
	if opts.AppVersion == 0 {
		opts.AppVersion = 1
	}
	return &Pipeline{
		opts:      opts,
		load:      WithDomain(opts.LoadData),
		loadError: WithDomainOnError(opts.LoadErrorData),
	}, nil
}

// AppVersion returns the configured app version.
func (p *Pipeline) AppVersion() int {
	return p.opts.AppVersion
}

// Resolve runs one request to a terminal state. Each request makes at most
// one page loader call and at most one error loader call.
func (p *Pipeline) Resolve(ctx context.Context, req Request) Result {
	start := time.Now()
	res := p.resolve(ctx, req)
	if res.Err != nil {
		p.logError(res.Err)
	}
	if p.opts.Observe != nil {
		p.opts.Observe(res, time.Since(start))
	}
	return res
}

// logError isolates the caller's sink: a panicking logger must not change
// the result of the request.
func (p *Pipeline) logError(err error) {
	defer func() { _ = recover() }()
	p.opts.LogError(err)
}

func (p *Pipeline) resolve(ctx context.Context, req Request) Result {
	path := req.Path
	if path == "" {
		path = "/"
	}
	opts := LoadOptions{Host: req.Host, Domain: req.Domain}

	routes, err := SafeGenerate(p.opts.GenerateRoutes, req.Config, req.Domain)
	if err != nil {
		return p.fallback(ctx, StateAborted, "", fmt.Errorf("%w: %v", ErrRouteNotFound, err), req.Config, opts)
	}
	match, ok := MatchRoute(path, routes)
	if !ok {
		return p.fallback(ctx, StateAborted, "", fmt.Errorf("%w: %s", ErrRouteNotFound, path), req.Config, opts)
	}

	out, err := p.callLoader(ctx, LoadRequest{
		PageType: match.PageType,
		Params:   mergeParams(req.Query, match.Params),
		Config:   req.Config,
		Client:   req.Client,
		Options:  opts,
	})
	if err != nil {
		return p.fallback(ctx, StateFailed, match.PageType, err, req.Config, opts)
	}
	result, found := out.Result()
	if !found {
		cause := fmt.Errorf("%w: %s passed on %s", ErrRouteNotFound, match.PageType, path)
		return p.fallback(ctx, StateAborted, match.PageType, cause, req.Config, opts)
	}
	return Result{State: StateSuccess, PageType: match.PageType, Load: result}
}

func (p *Pipeline) fallback(ctx context.Context, state State, pageType string, cause error, cfg cms.Config, opts LoadOptions) Result {
	result, err := p.callErrorLoader(ctx, cause, cfg, opts)
	if err != nil {
		if !errors.Is(err, cause) {
			cause = errors.Join(cause, err)
		}
		return Result{State: StateFatal, PageType: pageType, Err: cause}
	}
	return Result{State: state, PageType: pageType, Load: result, Err: cause}
}

func (p *Pipeline) callLoader(ctx context.Context, req LoadRequest) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = Outcome{}, fmt.Errorf("page loader panicked: %v", r)
		}
	}()
	return p.load.LoadData(ctx, req)
}

func (p *Pipeline) callErrorLoader(ctx context.Context, cause error, cfg cms.Config, opts LoadOptions) (res LoadResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = LoadResult{}, fmt.Errorf("error loader panicked: %v", r)
		}
	}()
	return p.loadError.LoadErrorData(ctx, cause, cfg, opts)
}

func mergeParams(query, route map[string]any) map[string]any {
	params := make(map[string]any, len(query)+len(route))
	for k, v := range query {
		params[k] = v
	}
	for k, v := range route {
		params[k] = v
	}
	return params
}
