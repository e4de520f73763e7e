package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/publisher"
)

const handleAllURLs = "delegate_permission/common.handle_all_urls"

// AppManifestOptions 描述 /manifest.json 与 assetlinks 的来源。
// Manifest 为 nil 时不注册 /manifest.json；AssetLinks 为 nil 时 assetlinks 保持 404。
type AppManifestOptions struct {
	Clients    cms.ClientSource
	Logger     *logrus.Logger
	Manifest   map[string]any
	AssetLinks *publisher.AssetLinks
}

// RegisterAppManifests 注册 PWA 清单与 Android 应用关联文件，两者都依赖已加载的 CMS 配置。
func RegisterAppManifests(app *fiber.App, opts AppManifestOptions) error {
	if app == nil {
		return errors.New("app is required")
	}
	if opts.Clients == nil || opts.Logger == nil {
		return errors.New("clients and logger are required")
	}

	if opts.Manifest != nil {
		app.Get("/manifest.json", func(c fiber.Ctx) error {
			_, cfg, err := loadConfig(c, opts.Clients)
			if err != nil {
				logManifestFailure(c, opts.Logger, err)
				return configNotLoaded(c)
			}
			return c.JSON(BuildManifest(cfg, opts.Manifest))
		})
	}

	if opts.AssetLinks != nil {
		links := opts.AssetLinks
		app.Get("/.well-known/assetlinks.json", func(c fiber.Ctx) error {
			if _, _, err := loadConfig(c, opts.Clients); err != nil {
				logManifestFailure(c, opts.Logger, err)
				return configNotLoaded(c)
			}
			return c.JSON(BuildAssetLinks(*links))
		})
	}
	return nil
}

// BuildManifest 以 publisher-name 生成默认字段，overrides 中的同名键优先。
func BuildManifest(cfg cms.Config, overrides map[string]any) map[string]any {
	name := ""
	if raw, ok := cfg.Get("publisher-name"); ok {
		name, _ = raw.(string)
	}
	manifest := map[string]any{
		"name":       name,
		"short_name": name,
		"start_url":  "/",
		"display":    "standalone",
	}
	for key, value := range overrides {
		manifest[key] = value
	}
	return manifest
}

// BuildAssetLinks 生成 Digital Asset Links 声明。
func BuildAssetLinks(links publisher.AssetLinks) []fiber.Map {
	keys := links.AuthorizedKeys
	if keys == nil {
		keys = []string{}
	}
	return []fiber.Map{{
		"relation": []string{handleAllURLs},
		"target": fiber.Map{
			"namespace":                "android_app",
			"package_name":             links.PackageName,
			"sha256_cert_fingerprints": keys,
		},
	}}
}

func logManifestFailure(c fiber.Ctx, logger *logrus.Logger, err error) {
	fields := requestFields(c, c.Path())
	fields["action"] = "app_manifest"
	fields["error"] = err.Error()
	logger.WithFields(fields).Error("config_load_failed")
}
