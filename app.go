package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pageline/pageline/internal/assets"
	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/config"
	"github.com/pageline/pageline/internal/metrics"
	"github.com/pageline/pageline/internal/pages"
	"github.com/pageline/pageline/internal/pipeline"
	"github.com/pageline/pageline/internal/proxy"
	"github.com/pageline/pageline/internal/publisher"
	"github.com/pageline/pageline/internal/server"
	"github.com/pageline/pageline/internal/server/routes"
	"github.com/pageline/pageline/internal/whitelist"
)

// buildApp 组装所有组件并注册路由。注册顺序决定匹配优先级：
// 转发路由与固定路径在前，静态页面其次，/:storySlug 兜底重定向最后注册。
func buildApp(cfg *config.Config, logger *logrus.Logger) (*fiber.App, error) {
	pub, err := publisher.Load(cfg.PublisherConfigPath)
	if err != nil {
		return nil, err
	}

	manifest, err := assets.LoadManifest(cfg.ManifestPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"action": "manifest_load",
			"path":   cfg.ManifestPath,
		}).Warn("manifest_missing")
		manifest = assets.NewManifest()
	}
	helper := assets.NewHelper(manifest, assets.Options{
		AssetHost: pub.AssetHost,
		PublicDir: cfg.PublicDir,
	})

	var rules whitelist.Rules
	if cfg.MobileAPIEnabled {
		if rules, err = whitelist.LoadRules(cfg.MobileConfigPath); err != nil {
			return nil, err
		}
	}

	httpClient := cms.NewHTTPClient(cfg.UpstreamTimeout.DurationValue())
	pool, err := cms.NewPool(pub.SketchesHost, pub.HostToAPIHost, cms.Options{
		ConfigTTL:  cfg.ConfigTTL.DurationValue(),
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}

	if cfg.MetricsEnabled {
		metrics.Init()
	}

	static := staticRoutes(pub.StaticRoutes)
	p, err := pipeline.New(pipeline.Options{
		GenerateRoutes: pages.WithStaticRoutes(static, pages.GenerateRoutes),
		LoadData:       pages.Default(),
		LoadErrorData:  errorLoader(cfg.HandleNotFound),
		LogError:       pageErrorLogger(logger),
		AppVersion:     cfg.AppVersion,
		MobileRules:    rules,
		Observe:        pageObserver(cfg.MetricsEnabled),
	})
	if err != nil {
		return nil, err
	}

	domains := server.NewDomainRegistry(pub)
	logger.WithFields(logrus.Fields{
		"action":     "domain_mapping",
		"configured": domains.Configured(),
	}).Info("domain_registry_loaded")

	app, err := server.NewApp(server.AppOptions{
		Logger:  logger,
		Domains: domains,
		MountAt: cfg.MountAt,
		Metrics: cfg.MetricsEnabled,
	})
	if err != nil {
		return nil, err
	}

	upstream, err := proxy.NewUpstream(proxy.Options{
		Target:     pub.SketchesHost,
		HTTPClient: pool.HTTPClient(),
		Clients:    pool,
		Logger:     logger,
		Metrics:    cfg.MetricsEnabled,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterUpstreamRoutes(app, upstream, proxy.RouteOptions{
		ForwardAmp:     cfg.ForwardAmp,
		ForwardFavicon: cfg.ForwardFavicon,
		ExtraRoutes:    cfg.ExtraRoutes,
	})

	pageOpts := routes.PageOptions{
		Pipeline:      p,
		Clients:       pool,
		Logger:        logger,
		MobileEnabled: cfg.MobileAPIEnabled,
		Metrics:       cfg.MetricsEnabled,
	}
	if err := routes.RegisterPageRoutes(app, pageOpts); err != nil {
		return nil, err
	}
	if err := routes.RegisterAppManifests(app, routes.AppManifestOptions{
		Clients:    pool,
		Logger:     logger,
		Manifest:   pub.Manifest,
		AssetLinks: pub.AssetLinks,
	}); err != nil {
		return nil, err
	}
	if err := routes.RegisterJSONProxies(app, routes.JSONProxyOptions{
		Proxies:    pub.JSONProxies,
		Clients:    pool,
		HTTPClient: pool.HTTPClient(),
		Logger:     logger,
	}); err != nil {
		return nil, err
	}

	if cfg.TemplateOptionsPath != "" {
		options, err := routes.LoadTemplateOptions(cfg.TemplateOptionsPath)
		if err != nil {
			return nil, fmt.Errorf("template options: %w", err)
		}
		routes.RegisterTemplateOptions(app, options)
	}

	routes.RegisterDiagnostics(app, routes.DiagnosticsOptions{
		Assets:     helper,
		Clients:    pool,
		AppVersion: p.AppVersion(),
	})
	if cfg.MetricsEnabled {
		routes.RegisterMetrics(app)
	}
	if err := routes.RegisterStaticRoutes(app, pageOpts, static); err != nil {
		return nil, err
	}
	if cfg.RedirectRootLevelStories {
		routes.RegisterStoryRedirect(app, pool, logger)
	}
	return app, nil
}

func staticRoutes(configured []publisher.StaticRoute) []pipeline.RouteDescriptor {
	out := make([]pipeline.RouteDescriptor, 0, len(configured))
	for _, route := range configured {
		out = append(out, pipeline.RouteDescriptor{
			Path:     route.Path,
			PageType: route.PageType,
			Params:   route.Params,
		})
	}
	return out
}

func errorLoader(handleNotFound bool) pipeline.ErrorLoader {
	if handleNotFound {
		return pages.NotFoundLoader
	}
	return pipeline.RethrowErrorLoader
}

// pageErrorLogger 区分未命中与真实故障：前者只是 debug 噪音。
func pageErrorLogger(logger *logrus.Logger) pipeline.LogErrorFunc {
	return func(err error) {
		entry := logger.WithFields(logrus.Fields{
			"action": "page_data",
			"error":  err.Error(),
		})
		if errors.Is(err, pipeline.ErrRouteNotFound) {
			entry.Debug("route_not_found")
			return
		}
		entry.Error("page_load_failed")
	}
}

func pageObserver(enabled bool) func(pipeline.Result, time.Duration) {
	if !enabled {
		return nil
	}
	return func(res pipeline.Result, elapsed time.Duration) {
		metrics.ObservePage(res.State.String(), res.PageType, elapsed)
	}
}
