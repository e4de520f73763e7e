package routes

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"gopkg.in/yaml.v3"

	"github.com/pageline/pageline/internal/assets"
	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/metrics"
	"github.com/pageline/pageline/internal/server"
	"github.com/pageline/pageline/internal/swupdate"
)

// DiagnosticsOptions 描述 /-/ 前缀下的诊断接口依赖。
type DiagnosticsOptions struct {
	Assets     *assets.Helper
	Clients    cms.ClientSource
	AppVersion int
}

// RegisterDiagnostics 暴露 /-/assets/:chunk 与 /-/versions。
func RegisterDiagnostics(app *fiber.App, opts DiagnosticsOptions) {
	if app == nil {
		return
	}

	if opts.Assets != nil {
		app.Get("/-/assets/:chunk", func(c fiber.Ctx) error {
			chunk := c.Params("chunk")
			if chunk == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "chunk_required"})
			}
			return c.JSON(opts.Assets.GetChunk(chunk))
		})
	}

	if opts.Clients != nil {
		app.Get("/-/versions", func(c fiber.Ctx) error {
			client, err := opts.Clients.ForHost(server.Hostname(c))
			if err != nil {
				return configNotLoaded(c)
			}
			cfg, err := client.Config(requestContext(c))
			if err != nil {
				return configNotLoaded(c)
			}
			current := swupdate.ServerVersions(cfg)
			clientVersions := swupdate.Versions{
				CacheBurst:         swupdate.ParseVersion(c.Query("configVersion")),
				PagebuilderVersion: swupdate.ParseVersion(c.Query("pbConfigVersion")),
			}
			clientApp := swupdate.ParseVersion(c.Query("appVersion"))
			return c.JSON(fiber.Map{
				"appVersion":      opts.AppVersion,
				"configVersion":   current.CacheBurst,
				"pbConfigVersion": current.PagebuilderVersion,
				"needsUpdate":     swupdate.Decide(clientVersions, clientApp, current, opts.AppVersion),
			})
		})
	}
}

// RegisterMetrics 通过 adaptor 挂载 promhttp。
func RegisterMetrics(app *fiber.App) {
	if app == nil {
		return
	}
	metrics.Init()
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

// LoadTemplateOptions 读取模板选项 YAML，返回可直接 JSON 编码的值。
func LoadTemplateOptions(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template options: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse template options: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// RegisterTemplateOptions 以 JSON 形式返回启动时加载的模板选项。
func RegisterTemplateOptions(app *fiber.App, options any) {
	if app == nil || options == nil {
		return
	}
	app.Get("/template-options.json", func(c fiber.Ctx) error {
		return c.JSON(options)
	})
}
