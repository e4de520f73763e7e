package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/whitelist"
)

type stubClient struct{}

func (stubClient) Config(context.Context) (cms.Config, error) { return cms.NewConfig(nil), nil }
func (stubClient) StoryBySlug(context.Context, string) (cms.Story, error) {
	return nil, cms.ErrNotFound
}
func (stubClient) Collection(context.Context, string) (json.RawMessage, error) {
	return nil, cms.ErrNotFound
}
func (stubClient) Hostname() string { return "demo.example.io" }

func homeRoutes(cms.Config, DomainSlug) ([]RouteDescriptor, error) {
	return []RouteDescriptor{{Path: "/", PageType: "home-page"}}, nil
}

func newTestPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	if opts.GenerateRoutes == nil {
		opts.GenerateRoutes = homeRoutes
	}
	if opts.AppVersion == 0 {
		opts.AppVersion = 42
	}
	p, err := New(opts)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func loaderReturning(result LoadResult) DataLoader {
	return DataLoaderFunc(func(context.Context, LoadRequest) (Outcome, error) {
		return Found(result), nil
	})
}

func failingLoader(err error) DataLoader {
	return DataLoaderFunc(func(context.Context, LoadRequest) (Outcome, error) {
		return Outcome{}, err
	})
}

func fooBarErrorLoader() ErrorLoader {
	return ErrorLoaderFunc(func(context.Context, error, cms.Config, LoadOptions) (LoadResult, error) {
		return LoadResult{Fields: map[string]any{"foo": "bar"}}, nil
	})
}

func run(t *testing.T, p *Pipeline, req Request, surface Surface) (Result, Response, map[string]any) {
	t.Helper()
	if req.Client == nil {
		req.Client = stubClient{}
	}
	res := p.Resolve(context.Background(), req)
	resp, err := p.Assemble(res, surface)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	var body map[string]any
	if resp.Body != nil {
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			t.Fatalf("decode body %s: %v", resp.Body, err)
		}
	}
	return res, resp, body
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{LoadData: loaderReturning(LoadResult{})}); err == nil {
		t.Fatalf("expected error without GenerateRoutes")
	}
	if _, err := New(Options{GenerateRoutes: homeRoutes}); err == nil {
		t.Fatalf("expected error without LoadData")
	}
	p, err := New(Options{GenerateRoutes: homeRoutes, LoadData: loaderReturning(LoadResult{})})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.AppVersion() != 1 {
		t.Fatalf("default app version should be 1, got %d", p.AppVersion())
	}
}

func TestSuccessEchoesLoaderInputs(t *testing.T) {
	var got LoadRequest
	p := newTestPipeline(t, Options{
		LoadData: DataLoaderFunc(func(_ context.Context, req LoadRequest) (Outcome, error) {
			got = req
			return Found(LoadResult{Data: map[string]any{"pageType": req.PageType}, Title: "foobar"}), nil
		}),
	})
	res, resp, body := run(t, p, Request{Path: "", Query: map[string]any{"text": "foobar"}, Host: "127.0.0.1"}, SurfaceWeb)

	if res.State != StateSuccess || resp.Status != http.StatusOK {
		t.Fatalf("unexpected state %v status %d", res.State, resp.Status)
	}
	if got.PageType != "home-page" || got.Params["text"] != "foobar" || got.Options.Host != "127.0.0.1" {
		t.Fatalf("unexpected loader request: %+v", got)
	}
	if body["title"] != "foobar" || body["appVersion"] != float64(42) {
		t.Fatalf("unexpected body: %v", body)
	}
	if data := body["data"].(map[string]any); data["pageType"] != "home-page" {
		t.Fatalf("unexpected data: %v", data)
	}
	if resp.Header.Get("Cache-Control") != "public,s-maxage=900" || resp.Header.Get("Vary") != "Accept-Encoding" {
		t.Fatalf("missing cache headers: %v", resp.Header)
	}
}

func TestRouteParamsOverrideQuery(t *testing.T) {
	var params map[string]any
	p := newTestPipeline(t, Options{
		GenerateRoutes: func(cms.Config, DomainSlug) ([]RouteDescriptor, error) {
			return []RouteDescriptor{{Path: "/:slug", PageType: "story-page", Params: map[string]any{"amazing": "stuff"}}}, nil
		},
		LoadData: DataLoaderFunc(func(_ context.Context, req LoadRequest) (Outcome, error) {
			params = req.Params
			return Found(LoadResult{}), nil
		}),
	})
	run(t, p, Request{Path: "/real", Query: map[string]any{"amazing": "query", "slug": "query", "extra": "1"}}, SurfaceWeb)
	if params["amazing"] != "stuff" || params["slug"] != "real" || params["extra"] != "1" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestStatusCodeClamping(t *testing.T) {
	cases := []struct {
		code      int
		transport int
	}{
		{0, http.StatusOK},
		{301, http.StatusOK},
		{404, http.StatusOK},
		{500, http.StatusInternalServerError},
		{503, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		p := newTestPipeline(t, Options{LoadData: loaderReturning(LoadResult{Data: map[string]any{}, HTTPStatusCode: tc.code})})
		_, resp, body := run(t, p, Request{Path: "/"}, SurfaceWeb)
		if resp.Status != tc.transport {
			t.Fatalf("code %d: transport %d want %d", tc.code, resp.Status, tc.transport)
		}
		if tc.code != 0 && body["httpStatusCode"] != float64(tc.code) {
			t.Fatalf("code %d: body should echo the code, got %v", tc.code, body["httpStatusCode"])
		}
	}
}

func TestNoMatchUsesErrorLoaderWith404(t *testing.T) {
	var logged []error
	var cause error
	p := newTestPipeline(t, Options{
		GenerateRoutes: func(cms.Config, DomainSlug) ([]RouteDescriptor, error) {
			return []RouteDescriptor{{Path: "/foobar", PageType: "home-page"}}, nil
		},
		LoadData: failingLoader(errors.New("must not be called")),
		LoadErrorData: ErrorLoaderFunc(func(_ context.Context, err error, _ cms.Config, _ LoadOptions) (LoadResult, error) {
			cause = err
			return LoadResult{Fields: map[string]any{"foo": "bar"}}, nil
		}),
		LogError: func(err error) { logged = append(logged, err) },
	})
	res, resp, body := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if res.State != StateAborted || resp.Status != http.StatusNotFound {
		t.Fatalf("unexpected state %v status %d", res.State, resp.Status)
	}
	if body["foo"] != "bar" {
		t.Fatalf("body should come from the error loader: %v", body)
	}
	if !errors.Is(cause, ErrRouteNotFound) {
		t.Fatalf("error loader cause should be ErrRouteNotFound, got %v", cause)
	}
	if len(logged) != 1 || !errors.Is(logged[0], ErrRouteNotFound) {
		t.Fatalf("expected one logged not-found, got %v", logged)
	}
}

func TestGenerateRoutesPanicIsNotFound(t *testing.T) {
	p := newTestPipeline(t, Options{
		GenerateRoutes: func(cms.Config, DomainSlug) ([]RouteDescriptor, error) { panic("foobar") },
		LoadData:       loaderReturning(LoadResult{}),
		LoadErrorData:  fooBarErrorLoader(),
	})
	res, resp, _ := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if res.State != StateAborted || resp.Status != http.StatusNotFound {
		t.Fatalf("unexpected state %v status %d", res.State, resp.Status)
	}
}

func TestLoaderPassIsAborted(t *testing.T) {
	loaderCalls := 0
	p := newTestPipeline(t, Options{
		LoadData: DataLoaderFunc(func(context.Context, LoadRequest) (Outcome, error) {
			loaderCalls++
			return Pass(), nil
		}),
		LoadErrorData: fooBarErrorLoader(),
	})
	res, resp, body := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if res.State != StateAborted || resp.Status != http.StatusNotFound || body["foo"] != "bar" {
		t.Fatalf("unexpected abort handling: %v %d %v", res.State, resp.Status, body)
	}
	if res.PageType != "home-page" || loaderCalls != 1 {
		t.Fatalf("loader should run once for the matched page: %q %d", res.PageType, loaderCalls)
	}
}

func TestAbortedErrorLoaderStatusOverrides(t *testing.T) {
	p := newTestPipeline(t, Options{
		LoadData: DataLoaderFunc(func(context.Context, LoadRequest) (Outcome, error) { return Pass(), nil }),
		LoadErrorData: ErrorLoaderFunc(func(context.Context, error, cms.Config, LoadOptions) (LoadResult, error) {
			return LoadResult{HTTPStatusCode: http.StatusGone}, nil
		}),
	})
	_, resp, body := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if resp.Status != http.StatusGone || body["httpStatusCode"] != float64(http.StatusGone) {
		t.Fatalf("explicit error status should win: %d %v", resp.Status, body)
	}
}

func TestFailureRecoveredByErrorLoader(t *testing.T) {
	var logged []error
	boom := errors.New("foobar")
	p := newTestPipeline(t, Options{
		LoadData: failingLoader(boom),
		LoadErrorData: ErrorLoaderFunc(func(_ context.Context, err error, _ cms.Config, _ LoadOptions) (LoadResult, error) {
			return LoadResult{Fields: map[string]any{"error": err.Error()}}, nil
		}),
		LogError: func(err error) { logged = append(logged, err) },
	})
	res, resp, body := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if res.State != StateFailed || resp.Status != http.StatusNotFound {
		t.Fatalf("unexpected state %v status %d", res.State, resp.Status)
	}
	if body["error"] != "foobar" {
		t.Fatalf("unexpected body %v", body)
	}
	if len(logged) != 1 || logged[0] != boom {
		t.Fatalf("expected originating error logged once, got %v", logged)
	}
}

func TestPanickingErrorLogDoesNotChangeResult(t *testing.T) {
	observed := false
	p := newTestPipeline(t, Options{
		LoadData:      failingLoader(errors.New("foobar")),
		LoadErrorData: fooBarErrorLoader(),
		LogError:      func(error) { panic("log sink down") },
		Observe:       func(Result, time.Duration) { observed = true },
	})
	res, resp, body := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if res.State != StateFailed || resp.Status != http.StatusNotFound {
		t.Fatalf("unexpected state %v status %d", res.State, resp.Status)
	}
	if body["foo"] != "bar" {
		t.Fatalf("unexpected body %v", body)
	}
	if !observed {
		t.Fatalf("observe hook skipped after log panic")
	}
}

func TestLoaderPanicIsFailure(t *testing.T) {
	p := newTestPipeline(t, Options{
		LoadData: DataLoaderFunc(func(context.Context, LoadRequest) (Outcome, error) {
			panic("foobar")
		}),
		LoadErrorData: fooBarErrorLoader(),
	})
	res, resp, _ := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if res.State != StateFailed || resp.Status != http.StatusNotFound {
		t.Fatalf("panic should be a recovered failure: %v %d", res.State, resp.Status)
	}
}

func TestBothLoadersFailingIsFatal(t *testing.T) {
	var logged []error
	boom := errors.New("foobar")
	second := errors.New("exception2")
	p := newTestPipeline(t, Options{
		LoadData: failingLoader(boom),
		LoadErrorData: ErrorLoaderFunc(func(context.Context, error, cms.Config, LoadOptions) (LoadResult, error) {
			return LoadResult{}, second
		}),
		LogError: func(err error) { logged = append(logged, err) },
	})
	res, resp, _ := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if res.State != StateFatal || resp.Status != http.StatusInternalServerError || resp.Body != nil {
		t.Fatalf("expected fatal empty 500, got %v %d %q", res.State, resp.Status, resp.Body)
	}
	if len(logged) != 1 || !errors.Is(logged[0], boom) || !errors.Is(logged[0], second) {
		t.Fatalf("expected one joined error, got %v", logged)
	}
}

func TestDefaultErrorLoaderIsFatal(t *testing.T) {
	var logged []error
	p := newTestPipeline(t, Options{
		LoadData: failingLoader(errors.New("foobar")),
		LogError: func(err error) { logged = append(logged, err) },
	})
	res, resp, _ := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if res.State != StateFatal || resp.Status != http.StatusInternalServerError || resp.Body != nil {
		t.Fatalf("expected fatal, got %v %d", res.State, resp.Status)
	}
	if len(logged) != 1 {
		t.Fatalf("expected one log call, got %d", len(logged))
	}
}

func TestCacheTagHeader(t *testing.T) {
	p := newTestPipeline(t, Options{LoadData: loaderReturning(LoadResult{Data: map[string]any{"cacheKeys": []string{"foo", "bar"}}})})
	_, resp, body := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if got := resp.Header.Get("Cache-Tag"); got != "foo,bar" {
		t.Fatalf("unexpected Cache-Tag %q", got)
	}
	if _, present := body["data"].(map[string]any)["cacheKeys"]; present {
		t.Fatalf("cacheKeys should be stripped from data")
	}

	p = newTestPipeline(t, Options{LoadData: loaderReturning(LoadResult{CacheKeys: []string{"s/1", "c/2"}})})
	_, resp, _ = run(t, p, Request{Path: "/"}, SurfaceWeb)
	if got := resp.Header.Get("Cache-Tag"); got != "s/1,c/2" {
		t.Fatalf("unexpected Cache-Tag %q", got)
	}
}

func TestAppVersionOnEveryNonFatalResponse(t *testing.T) {
	p := newTestPipeline(t, Options{LoadData: loaderReturning(LoadResult{})})
	_, _, body := run(t, p, Request{Path: "/"}, SurfaceWeb)
	if body["appVersion"] != float64(42) {
		t.Fatalf("missing appVersion: %v", body)
	}
	p = newTestPipeline(t, Options{LoadData: loaderReturning(LoadResult{}), LoadErrorData: fooBarErrorLoader()})
	_, _, body = run(t, p, Request{Path: "/missing"}, SurfaceWeb)
	if body["appVersion"] != float64(42) {
		t.Fatalf("missing appVersion on not-found: %v", body)
	}
}

func multiDomainConfig() cms.Config {
	return cms.NewConfig(map[string]any{
		"sketches-host": "https://www.example.com/subdir",
		"domains": []any{
			map[string]any{"slug": "my-domain", "host-url": "https://subdomain.example.com/subdir"},
		},
	})
}

func TestEnvelopeDomainFields(t *testing.T) {
	cases := []struct {
		name    string
		slug    DomainSlug
		present bool
		want    any
		current string
	}{
		{"unconfigured", Unconfigured(), false, nil, "https://www.example.com"},
		{"unmapped", Unmapped(), true, nil, "https://www.example.com"},
		{"mapped", Mapped("my-domain"), true, "my-domain", "https://subdomain.example.com"},
	}
	for _, tc := range cases {
		var seen DomainSlug
		p := newTestPipeline(t, Options{
			GenerateRoutes: func(_ cms.Config, slug DomainSlug) ([]RouteDescriptor, error) {
				seen = slug
				return homeRoutes(cms.Config{}, slug)
			},
			LoadData: loaderReturning(LoadResult{Data: map[string]any{}}),
		})
		_, _, body := run(t, p, Request{Path: "/", Domain: tc.slug, Config: multiDomainConfig()}, SurfaceWeb)
		value, present := body["domainSlug"]
		if present != tc.present || value != tc.want {
			t.Fatalf("%s: domainSlug=%v present=%v", tc.name, value, present)
		}
		if body["currentHostUrl"] != tc.current || body["primaryHostUrl"] != "https://www.example.com" {
			t.Fatalf("%s: unexpected hosts %v", tc.name, body)
		}
		if seen != tc.slug {
			t.Fatalf("%s: generator saw slug %v", tc.name, seen)
		}
	}
}

func TestErrorLoaderResultGetsDomainFields(t *testing.T) {
	p := newTestPipeline(t, Options{
		LoadData:      loaderReturning(LoadResult{}),
		LoadErrorData: fooBarErrorLoader(),
	})
	_, _, body := run(t, p, Request{Path: "/missing", Domain: Mapped("my-domain"), Config: multiDomainConfig()}, SurfaceWeb)
	if body["currentHostUrl"] != "https://subdomain.example.com" || body["domainSlug"] != "my-domain" {
		t.Fatalf("error path should carry domain metadata: %v", body)
	}
}

func mobileConfig() whitelist.Object {
	return whitelist.Object{
		{Key: "foo", Value: "bar"},
		{Key: "cdn-image", Value: "https://image.foobar.com"},
		{Key: "polltype-host", Value: "https://poll.foobar.com"},
		{Key: "social-links", Value: whitelist.Object{{Key: "link1", Value: "https://link1.com/facebook"}}},
		{Key: "publisher-name", Value: "Awesome Publisher"},
	}
}

func configKeys(t *testing.T, raw []byte) []string {
	t.Helper()
	decoded, err := whitelist.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cfg, _ := decoded.(whitelist.Object).Get("config")
	return cfg.(whitelist.Object).Keys()
}

func TestMobileSurfaceFiltersConfig(t *testing.T) {
	rules := whitelist.Rules{{Path: "config", Descriptor: whitelist.Keys("cdn-image")}}
	p := newTestPipeline(t, Options{
		LoadData:    loaderReturning(LoadResult{Data: map[string]any{"pageType": "home-page"}, Config: mobileConfig()}),
		MobileRules: rules,
	})

	_, resp, _ := run(t, p, Request{Path: "/"}, SurfaceMobile)
	if keys := configKeys(t, resp.Body); len(keys) != 1 || keys[0] != "cdn-image" {
		t.Fatalf("mobile config should only keep cdn-image, got %v", keys)
	}

	_, resp, _ = run(t, p, Request{Path: "/"}, SurfaceWeb)
	if keys := configKeys(t, resp.Body); len(keys) != 5 {
		t.Fatalf("web surface must not filter, got %v", keys)
	}
}

func TestMobileSurfaceEmptyRulesKeepsOrder(t *testing.T) {
	p := newTestPipeline(t, Options{LoadData: loaderReturning(LoadResult{Config: mobileConfig()})})
	_, resp, _ := run(t, p, Request{Path: "/"}, SurfaceMobile)
	want := []string{"foo", "cdn-image", "polltype-host", "social-links", "publisher-name"}
	keys := configKeys(t, resp.Body)
	if len(keys) != len(want) {
		t.Fatalf("unexpected keys %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d: %q want %q", i, keys[i], want[i])
		}
	}
}

func TestEnvelopeFieldOrder(t *testing.T) {
	p := newTestPipeline(t, Options{LoadData: loaderReturning(LoadResult{
		Data:           map[string]any{},
		Title:          "t",
		HTTPStatusCode: 200,
		Config:         map[string]any{"a": 1},
		Fields:         map[string]any{"zeta": 1, "pageType": "home-page", "data": "ignored"},
	})})
	_, resp, _ := run(t, p, Request{Path: "/", Domain: Unmapped(), Config: multiDomainConfig()}, SurfaceWeb)
	decoded, _ := whitelist.Decode(resp.Body)
	got := decoded.(whitelist.Object).Keys()
	want := []string{"data", "title", "appVersion", "httpStatusCode", "domainSlug", "currentHostUrl", "primaryHostUrl", "config", "pageType", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("unexpected keys %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key %d: %q want %q (%v)", i, got[i], want[i], got)
		}
	}
}

func TestObserveSeesEveryRequest(t *testing.T) {
	var states []State
	p := newTestPipeline(t, Options{
		LoadData:      loaderReturning(LoadResult{}),
		LoadErrorData: fooBarErrorLoader(),
		Observe:       func(res Result, _ time.Duration) { states = append(states, res.State) },
	})
	run(t, p, Request{Path: "/"}, SurfaceWeb)
	run(t, p, Request{Path: "/nope"}, SurfaceWeb)
	if len(states) != 2 || states[0] != StateSuccess || states[1] != StateAborted {
		t.Fatalf("unexpected observed states %v", states)
	}
}

func TestTransportStatusTable(t *testing.T) {
	cases := []struct {
		state State
		code  int
		want  int
	}{
		{StateSuccess, 0, 200},
		{StateSuccess, 302, 200},
		{StateSuccess, 599, 500},
		{StateAborted, 0, 404},
		{StateAborted, 503, 500},
		{StateFailed, 0, 404},
		{StateFailed, 200, 200},
		{StateFatal, 0, 500},
	}
	for _, tc := range cases {
		if got := TransportStatus(tc.state, tc.code); got != tc.want {
			t.Fatalf("%v/%d: got %d want %d", tc.state, tc.code, got, tc.want)
		}
	}
}
