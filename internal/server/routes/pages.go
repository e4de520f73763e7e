package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/logging"
	"github.com/pageline/pageline/internal/metrics"
	"github.com/pageline/pageline/internal/pipeline"
	"github.com/pageline/pageline/internal/server"
)

// PageOptions 汇总页面数据接口依赖的组件。
type PageOptions struct {
	Pipeline *pipeline.Pipeline
	Clients  cms.ClientSource
	Logger   *logrus.Logger
	// MobileEnabled 控制是否注册 /mobile-data.json。
	MobileEnabled bool
	Metrics       bool
}

// RegisterPageRoutes 注册 /route-data.json、/mobile-data.json 与 /ping。
func RegisterPageRoutes(app *fiber.App, opts PageOptions) error {
	if app == nil {
		return errors.New("app is required")
	}
	if opts.Pipeline == nil || opts.Clients == nil || opts.Logger == nil {
		return errors.New("pipeline, clients and logger are required")
	}

	app.Get("/ping", pingHandler(opts))
	app.Get("/route-data.json", pageDataHandler(opts, pipeline.SurfaceWeb))
	if opts.MobileEnabled {
		app.Get("/mobile-data.json", pageDataHandler(opts, pipeline.SurfaceMobile))
	}
	return nil
}

func pingHandler(opts PageOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		if _, _, err := loadConfig(c, opts.Clients); err != nil {
			logConfigFailure(c, opts, err)
			return configNotLoaded(c)
		}
		return c.SendString("pong")
	}
}

// pageDataHandler 读取 CMS 配置后交给 pipeline，按 Response 原样写回状态码、头与正文。
func pageDataHandler(opts PageOptions, surface pipeline.Surface) fiber.Handler {
	return func(c fiber.Ctx) error {
		query := make(map[string]any)
		for key, value := range c.Queries() {
			if key == "path" {
				continue
			}
			query[key] = value
		}
		return servePage(c, opts, surface, c.Query("path", "/"), query)
	}
}

// RegisterStaticRoutes 为每条静态路由注册 GET 处理器，直接返回该路径的页面数据。
// 路由表需同时包含这些描述（见 pages.WithStaticRoutes），/route-data.json 才能命中。
func RegisterStaticRoutes(app *fiber.App, opts PageOptions, static []pipeline.RouteDescriptor) error {
	if app == nil {
		return errors.New("app is required")
	}
	if opts.Pipeline == nil || opts.Clients == nil || opts.Logger == nil {
		return errors.New("pipeline, clients and logger are required")
	}
	for _, route := range static {
		app.Get(route.Path, func(c fiber.Ctx) error {
			query := make(map[string]any)
			for key, value := range c.Queries() {
				query[key] = value
			}
			return servePage(c, opts, pipeline.SurfaceWeb, c.Path(), query)
		})
	}
	return nil
}

func servePage(c fiber.Ctx, opts PageOptions, surface pipeline.Surface, path string, query map[string]any) error {
	client, cfg, err := loadConfig(c, opts.Clients)
	if err != nil {
		logConfigFailure(c, opts, err)
		return configNotLoaded(c)
	}

	res := opts.Pipeline.Resolve(requestContext(c), pipeline.Request{
		Path:   path,
		Query:  query,
		Host:   server.Hostname(c),
		Domain: server.DomainSlug(c),
		Config: cfg,
		Client: client,
	})
	resp, err := opts.Pipeline.Assemble(res, surface)
	if err != nil {
		fields := requestFields(c, path)
		fields["error"] = err.Error()
		opts.Logger.WithFields(fields).Error("envelope_encode_failed")
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	logPageResult(c, opts.Logger, path, res, resp.Status)
	for key, values := range resp.Header {
		for _, value := range values {
			c.Set(key, value)
		}
	}
	c.Status(resp.Status)
	if resp.Body == nil {
		return nil
	}
	return c.Send(resp.Body)
}

func logPageResult(c fiber.Ctx, logger *logrus.Logger, path string, res pipeline.Result, status int) {
	fields := requestFields(c, path)
	fields["action"] = "page_data"
	fields["page_type"] = res.PageType
	fields["state"] = res.State.String()
	fields["status"] = status

	switch res.State {
	case pipeline.StateSuccess:
		logger.WithFields(fields).Info("page_loaded")
	case pipeline.StateAborted:
		logger.WithFields(fields).Info("page_aborted")
	case pipeline.StateFailed:
		fields["error"] = errString(res.Err)
		logger.WithFields(fields).Warn("page_recovered")
	default:
		fields["error"] = errString(res.Err)
		logger.WithFields(fields).Error("error_data_failed")
	}
}

func loadConfig(c fiber.Ctx, clients cms.ClientSource) (cms.Client, cms.Config, error) {
	client, err := clients.ForHost(server.Hostname(c))
	if err != nil {
		return nil, cms.Config{}, err
	}
	cfg, err := client.Config(requestContext(c))
	if err != nil {
		return nil, cms.Config{}, err
	}
	return client, cfg, nil
}

func logConfigFailure(c fiber.Ctx, opts PageOptions, err error) {
	if opts.Metrics {
		metrics.ObserveConfigFailure()
	}
	fields := requestFields(c, c.Path())
	fields["action"] = "config_load"
	fields["error"] = err.Error()
	opts.Logger.WithFields(fields).Error("config_load_failed")
}

func configNotLoaded(c fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{"message": "Config not loaded"},
	})
}

func requestFields(c fiber.Ctx, path string) logrus.Fields {
	return logging.RequestFields(server.RequestID(c), server.Hostname(c), server.DomainSlug(c).String(), path)
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
