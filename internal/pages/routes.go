package pages

import (
	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/pipeline"
)

// Page types produced by GenerateRoutes.
const (
	HomePage    = "home-page"
	SectionPage = "section-page"
	StoryPage   = "story-page"
	NotFound    = "not-found"
)

// GenerateRoutes builds the default route table: the home page, one exact
// route per section visible on the domain (children nested under their
// parent's slug), then a catch-all story route. Malformed sections are left
// out rather than failing the whole table.
func GenerateRoutes(cfg cms.Config, slug pipeline.DomainSlug) ([]pipeline.RouteDescriptor, error) {
	view, _ := cms.DecodeView(cfg)
	domain, _ := slug.Value()

	byID := make(map[int]cms.Section, len(view.Sections))
	for _, s := range view.Sections {
		byID[s.ID] = s
	}

	routes := []pipeline.RouteDescriptor{{Path: "/", PageType: HomePage}}
	for _, s := range view.Sections {
		if s.Slug == "" || s.DomainSlug != domain {
			continue
		}
		path := "/" + s.Slug
		if parent, ok := byID[s.ParentID]; ok && s.ParentID != 0 && parent.Slug != "" {
			path = "/" + parent.Slug + "/" + s.Slug
		}
		routes = append(routes, pipeline.RouteDescriptor{
			Path:     path,
			PageType: SectionPage,
			Params:   map[string]any{"sectionId": s.ID},
		})
	}
	routes = append(routes, pipeline.RouteDescriptor{Path: "/:sectionSlug/*", PageType: StoryPage})
	return routes, nil
}

// WithStaticRoutes puts fixed routes ahead of the table built by next, so
// they win over section and story matches on the same path.
func WithStaticRoutes(static []pipeline.RouteDescriptor, next pipeline.RouteGenerator) pipeline.RouteGenerator {
	if len(static) == 0 {
		return next
	}
	return func(cfg cms.Config, slug pipeline.DomainSlug) ([]pipeline.RouteDescriptor, error) {
		routes, err := next(cfg, slug)
		if err != nil {
			return nil, err
		}
		merged := make([]pipeline.RouteDescriptor, 0, len(static)+len(routes))
		merged = append(merged, static...)
		return append(merged, routes...), nil
	}
}
