package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/publisher"
)

// DefaultProxyCacheControl 是 JSON 代理成功响应的默认缓存策略。
const DefaultProxyCacheControl = "public,max-age=15,s-maxage=240,stale-while-revalidate=300,stale-if-error=3600"

const maxProxyBody = 4 << 20

// JSONProxyOptions 描述 JSON 代理路由的依赖。
type JSONProxyOptions struct {
	Proxies    []publisher.JSONProxy
	Clients    cms.ClientSource
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// RegisterJSONProxies 把远端 JSON 透传到本站，交由 CDN 缓存。
// 上游失败或返回空值（null、false、0、空字符串）时回复 503 空正文。
func RegisterJSONProxies(app *fiber.App, opts JSONProxyOptions) error {
	if app == nil {
		return errors.New("app is required")
	}
	if len(opts.Proxies) == 0 {
		return nil
	}
	if opts.Clients == nil || opts.Logger == nil {
		return errors.New("clients and logger are required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = cms.NewHTTPClient(cms.DefaultTimeout)
	}
	for _, proxy := range opts.Proxies {
		app.Get(proxy.Route, jsonProxyHandler(proxy, opts))
	}
	return nil
}

func jsonProxyHandler(proxy publisher.JSONProxy, opts JSONProxyOptions) fiber.Handler {
	cacheControl := proxy.CacheControl
	if cacheControl == "" {
		cacheControl = DefaultProxyCacheControl
	}
	return func(c fiber.Ctx) error {
		if _, _, err := loadConfig(c, opts.Clients); err != nil {
			logProxyFailure(c, opts.Logger, "", err)
			return configNotLoaded(c)
		}

		target := expandProxyURL(proxy.URL, c)
		body, err := fetchJSON(requestContext(c), opts.HTTPClient, target)
		if err != nil {
			logProxyFailure(c, opts.Logger, target, err)
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}
		if body == nil {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}

		c.Set("Cache-Control", cacheControl)
		c.Set("Vary", "Accept-Encoding")
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(body)
	}
}

// expandProxyURL 用路由参数替换 {name} 占位符，参数值做路径转义。
func expandProxyURL(template string, c fiber.Ctx) string {
	out := template
	for _, name := range c.Route().Params {
		out = strings.ReplaceAll(out, "{"+name+"}", url.PathEscape(c.Params(name)))
	}
	return out
}

// fetchJSON 返回上游正文；值为假时返回 nil, nil。
func fetchJSON(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream answered %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBody))
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode upstream json: %w", err)
	}
	if !truthy(value) {
		return nil, nil
	}
	return raw, nil
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func logProxyFailure(c fiber.Ctx, logger *logrus.Logger, target string, err error) {
	fields := requestFields(c, c.Path())
	fields["action"] = "json_proxy"
	fields["error"] = err.Error()
	if target != "" {
		fields["target"] = target
	}
	logger.WithFields(fields).Warn("json_proxy_failed")
}
