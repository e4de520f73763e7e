package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/logging"
	"github.com/pageline/pageline/internal/metrics"
	"github.com/pageline/pageline/internal/server"
)

// Upstream 将 CMS 自有路由（/api/*、sitemap、feed 等）原样转发到 sketches host，
// 按请求 Host 选择 CMS 客户端并改写 Host 头。
type Upstream struct {
	target  *url.URL
	client  *http.Client
	clients cms.ClientSource
	logger  *logrus.Logger
	metrics bool
}

// Options configures an Upstream.
type Options struct {
	// Target is the sketches host every request is forwarded to.
	Target     string
	HTTPClient *http.Client
	Clients    cms.ClientSource
	Logger     *logrus.Logger
	// Metrics enables upstream counters.
	Metrics bool
}

// NewUpstream validates options. Redirects are passed back to the caller,
// never followed.
func NewUpstream(opts Options) (*Upstream, error) {
	target, err := url.Parse(strings.TrimSpace(opts.Target))
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream target %q", opts.Target)
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	base := opts.HTTPClient
	if base == nil {
		base = cms.NewHTTPClient(cms.DefaultTimeout)
	}
	client := *base
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Upstream{
		target:  target,
		client:  &client,
		clients: opts.Clients,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Handle streams the request to the CMS and the response back.
func (u *Upstream) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	upstreamURL := u.resolveURL(c)

	req, err := u.buildRequest(c, upstreamURL)
	if err != nil {
		u.logResult(c, upstreamURL.String(), requestID, 0, started, err)
		return u.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	resp, err := u.client.Do(req)
	if err != nil {
		u.logResult(c, upstreamURL.String(), requestID, 0, started, err)
		return u.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Status(resp.StatusCode)
	if c.Method() == http.MethodHead {
		u.logResult(c, upstreamURL.String(), requestID, resp.StatusCode, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	u.logResult(c, upstreamURL.String(), requestID, resp.StatusCode, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

func (u *Upstream) resolveURL(c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	clean := path.Clean("/" + string(uri.Path()))
	relative := &url.URL{Path: clean}
	if qs := uri.QueryString(); len(qs) > 0 {
		relative.RawQuery = string(qs)
	}
	return u.target.ResolveReference(relative)
}

func (u *Upstream) buildRequest(c fiber.Ctx, upstream *url.URL) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var body io.Reader = http.NoBody
	if raw := c.Body(); len(raw) > 0 {
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), upstream.String(), body)
	if err != nil {
		return nil, err
	}
	CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")

	host := upstream.Host
	if u.clients != nil {
		if client, err := u.clients.ForHost(server.Hostname(c)); err == nil && client.Hostname() != "" {
			host = client.Hostname()
		}
	}
	req.Host = host
	req.Header.Set("Host", host)
	req.Header.Set("X-Forwarded-Host", server.Hostname(c))
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Scheme())
	return req, nil
}

func (u *Upstream) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (u *Upstream) logResult(c fiber.Ctx, upstream, requestID string, status int, started time.Time, err error) {
	if u.metrics {
		metrics.ObserveUpstream(status)
	}
	fields := logging.RequestFields(requestID, server.Hostname(c), server.DomainSlug(c).String(), c.Path())
	fields["action"] = "proxy"
	fields["upstream"] = upstream
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		u.logger.WithFields(fields).Error("upstream_failed")
		return
	}
	u.logger.WithFields(fields).Info("upstream_complete")
}
