package proxy

import "net/http"

// Route is one path forwarded to the CMS.
type Route struct {
	// Method is http.MethodGet or "" for every method.
	Method string
	Path   string
}

var cmsRoutes = []string{
	"/api/*",
	"/login",
	"/qlitics.js",
	"/auth.form",
	"/auth.callback",
	"/auth",
	"/admin/*",
	"/sitemap.xml",
	"/sitemap/*",
	"/feed",
	"/rss-feed",
	"/stories.rss",
	"/news_sitemap.xml",
	"/sso-login",
	"/sso-signup",
}

// RouteOptions toggles the optional forwarded routes.
type RouteOptions struct {
	ForwardAmp     bool
	ForwardFavicon bool
	ExtraRoutes    []string
}

// Routes lists every forwarded route in registration order.
func Routes(opts RouteOptions) []Route {
	routes := make([]Route, 0, len(cmsRoutes)+len(opts.ExtraRoutes)+2)
	for _, p := range cmsRoutes {
		routes = append(routes, Route{Path: p})
	}
	if opts.ForwardAmp {
		routes = append(routes, Route{Method: http.MethodGet, Path: "/amp/*"})
	}
	if opts.ForwardFavicon {
		routes = append(routes, Route{Method: http.MethodGet, Path: "/favicon.ico"})
	}
	for _, p := range opts.ExtraRoutes {
		routes = append(routes, Route{Path: p})
	}
	return routes
}
