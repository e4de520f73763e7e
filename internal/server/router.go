package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pageline/pageline/internal/metrics"
	"github.com/pageline/pageline/internal/pipeline"
)

// AppOptions controls the shared middleware chain.
type AppOptions struct {
	Logger *logrus.Logger
	// Domains resolves the request host. Nil means every request is Unconfigured.
	Domains *DomainRegistry
	// MountAt, when set, strips the prefix before routing. Other paths get 404
	// except /ping.
	MountAt string
	// Metrics records per-request HTTP counters.
	Metrics bool
}

const (
	contextKeyRequestID = "_pageline_request_id"
	contextKeyDomain    = "_pageline_domain_slug"
	contextKeyRawPath   = "_pageline_raw_path"
)

// NewApp builds a Fiber application with the request-context middleware
// installed. Callers register endpoints on the returned app.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	mountAt := normalizeMount(opts.MountAt)

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	if opts.Metrics {
		app.Use(metricsMiddleware())
	}
	app.Use(requestContextMiddleware(opts))
	if mountAt != "" {
		app.Use(mountMiddleware(mountAt, opts.Logger))
	}
	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并基于 Host 解析 domain slug。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		rawHost := strings.TrimSpace(getHostHeader(c))
		c.Locals(contextKeyDomain, opts.Domains.Lookup(rawHost))
		return c.Next()
	}
}

// mountMiddleware 剥离挂载前缀；前缀之外的请求除 /ping 外一律 404。
func mountMiddleware(mountAt string, logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		path := c.Path()
		c.Locals(contextKeyRawPath, path)
		if path == mountAt || strings.HasPrefix(path, mountAt+"/") {
			stripped := strings.TrimPrefix(path, mountAt)
			if stripped == "" {
				stripped = "/"
			}
			c.Path(stripped)
			return c.Next()
		}
		if path == "/ping" {
			return c.Next()
		}
		logger.WithFields(logrus.Fields{
			"action":     "mount_point",
			"path":       path,
			"mount_at":   mountAt,
			"request_id": RequestID(c),
		}).Debug("outside_mount_point")
		return c.Status(fiber.StatusNotFound).SendString("Not Found: mounted at " + mountAt)
	}
}

func metricsMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		}
		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		metrics.ObserveHTTPRequest(c.Method(), route, status, time.Since(started))
		return err
	}
}

func normalizeMount(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "/" {
		return ""
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return strings.TrimRight(raw, "/")
}

func getHostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// DomainSlug returns the slug resolved for the request host.
func DomainSlug(c fiber.Ctx) pipeline.DomainSlug {
	if value := c.Locals(contextKeyDomain); value != nil {
		if slug, ok := value.(pipeline.DomainSlug); ok {
			return slug
		}
	}
	return pipeline.Unconfigured()
}

// Hostname returns the request host without port.
func Hostname(c fiber.Ctx) string {
	host, _ := normalizeHost(getHostHeader(c))
	return host
}
