package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pageline/pageline/internal/whitelist"
)

// Header values shared by every non-fatal data response.
const (
	CacheControl = "public,s-maxage=900"
	Vary         = "Accept-Encoding"
	ContentType  = "application/json; charset=utf-8"
)

// Surface selects which endpoint the envelope is built for.
type Surface int

const (
	// SurfaceWeb is /route-data.json and never filters.
	SurfaceWeb Surface = iota
	// SurfaceMobile is /mobile-data.json and applies the mobile rules.
	SurfaceMobile
)

// Response is the wire form of a Result. Body is nil for fatal results.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

var reservedFields = map[string]struct{}{
	"data": {}, "title": {}, "appVersion": {}, "httpStatusCode": {},
	"domainSlug": {}, "currentHostUrl": {}, "primaryHostUrl": {}, "config": {},
}

// Assemble turns a Result into status, headers and JSON body.
func (p *Pipeline) Assemble(res Result, surface Surface) (Response, error) {
	header := http.Header{}
	header.Set("Content-Type", ContentType)
	if res.State == StateFatal {
		return Response{Status: http.StatusInternalServerError, Header: header}, nil
	}

	envelope, cacheKeys, err := p.envelope(res.Load)
	if err != nil {
		return Response{}, err
	}
	if surface == SurfaceMobile && !p.opts.MobileRules.Empty() {
		envelope = p.opts.MobileRules.Apply(envelope)
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return Response{}, fmt.Errorf("encode envelope: %w", err)
	}

	header.Set("Cache-Control", CacheControl)
	header.Set("Vary", Vary)
	if len(cacheKeys) > 0 {
		header.Set("Cache-Tag", strings.Join(cacheKeys, ","))
	}
	return Response{
		Status: TransportStatus(res.State, res.Load.HTTPStatusCode),
		Header: header,
		Body:   body,
	}, nil
}

// TransportStatus maps a terminal state and the loaded httpStatusCode to the
// HTTP status. Anything >= 500 becomes 500. Successful loads otherwise answer
// 200 and leave the code to the body; not-found and recovered failures
// answer the code itself, 404 when unset.
func TransportStatus(state State, code int) int {
	switch state {
	case StateSuccess:
		if code >= http.StatusInternalServerError {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	case StateAborted, StateFailed:
		if code == 0 {
			code = http.StatusNotFound
		}
		if code >= http.StatusInternalServerError {
			return http.StatusInternalServerError
		}
		return code
	default:
		return http.StatusInternalServerError
	}
}

func (p *Pipeline) envelope(result LoadResult) (whitelist.Object, []string, error) {
	data, err := whitelist.Normalize(result.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("encode data: %w", err)
	}
	cacheKeys := result.CacheKeys
	if obj, ok := data.(whitelist.Object); ok {
		if raw, found := obj.Get("cacheKeys"); found {
			if len(cacheKeys) == 0 {
				cacheKeys = stringList(raw)
			}
			data = obj.Delete("cacheKeys")
		}
	}

	env := whitelist.Object{}
	if data != nil {
		env = env.Set("data", data)
	}
	if result.Title != "" {
		env = env.Set("title", result.Title)
	}
	env = env.Set("appVersion", p.opts.AppVersion)
	if result.HTTPStatusCode != 0 {
		env = env.Set("httpStatusCode", result.HTTPStatusCode)
	}
	if domain, ok := result.Domain(); ok {
		if domain.Slug.Configured() {
			env = env.Set("domainSlug", domain.Slug)
		}
		env = env.Set("currentHostUrl", domain.CurrentHostURL)
		env = env.Set("primaryHostUrl", domain.PrimaryHostURL)
	}
	if result.Config != nil {
		cfg, err := whitelist.Normalize(result.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("encode config: %w", err)
		}
		env = env.Set("config", cfg)
	}

	keys := make([]string, 0, len(result.Fields))
	for k := range result.Fields {
		if _, reserved := reservedFields[k]; !reserved {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		value, err := whitelist.Normalize(result.Fields[k])
		if err != nil {
			return nil, nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		env = env.Set(k, value)
	}
	return env, cacheKeys, nil
}

func stringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
