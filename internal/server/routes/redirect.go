package routes

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/server"
)

// RegisterStoryRedirect 将根级 /:storySlug 请求 301 到故事的规范 slug；
// CMS 不认识该 slug 时交给后续路由（最终 404）。
func RegisterStoryRedirect(app *fiber.App, clients cms.ClientSource, logger *logrus.Logger) {
	if app == nil || clients == nil || logger == nil {
		return
	}

	app.Get("/:storySlug", func(c fiber.Ctx) error {
		slug, err := url.PathUnescape(strings.Trim(c.Params("storySlug"), "/"))
		if err != nil || slug == "" {
			return c.Next()
		}
		client, err := clients.ForHost(server.Hostname(c))
		if err != nil {
			return c.Next()
		}

		story, err := client.StoryBySlug(requestContext(c), slug)
		if err != nil {
			if !errors.Is(err, cms.ErrNotFound) {
				fields := requestFields(c, c.Path())
				fields["action"] = "story_redirect"
				fields["error"] = err.Error()
				logger.WithFields(fields).Warn("story_lookup_failed")
			}
			return c.Next()
		}
		target := story.Slug()
		if target == "" {
			return c.Next()
		}
		return c.Redirect().Status(fiber.StatusMovedPermanently).To("/" + strings.TrimLeft(target, "/"))
	})
}
