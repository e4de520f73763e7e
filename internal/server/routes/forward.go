package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/pageline/pageline/internal/proxy"
)

// RegisterUpstreamRoutes 将 CMS 自有路径交给 upstream 转发。
func RegisterUpstreamRoutes(app *fiber.App, upstream *proxy.Upstream, opts proxy.RouteOptions) {
	if app == nil || upstream == nil {
		return
	}
	for _, route := range proxy.Routes(opts) {
		if route.Method != http.MethodGet {
			app.All(route.Path, upstream.Handle)
			continue
		}
		app.Get(route.Path, upstream.Handle)
	}
}
