// Package swupdate decides whether a client's cached service worker is stale
// relative to the server's current app and config versions.
package swupdate

import (
	"strconv"

	"github.com/pageline/pageline/internal/cms"
)

// Versions is the config version pair a service worker was built against.
type Versions struct {
	CacheBurst         int `json:"configVersion"`
	PagebuilderVersion int `json:"pbConfigVersion"`
}

// ServerVersions reads the current versions out of the CMS config, defaulting
// absent or malformed values to 0.
func ServerVersions(cfg cms.Config) Versions {
	view, _ := cms.DecodeView(cfg)
	return Versions{
		CacheBurst:         view.ThemeAttributes.CacheBurst,
		PagebuilderVersion: view.PagebuilderConfig.Version,
	}
}

// NeedsUpdate reports whether either of the client's versions trails the server.
func NeedsUpdate(client, server Versions) bool {
	return client.CacheBurst < server.CacheBurst || client.PagebuilderVersion < server.PagebuilderVersion
}

// AppOutdated reports whether the client bundle predates the server's app
// version. A zero client version means unknown and never triggers an update.
func AppOutdated(clientAppVersion, serverAppVersion int) bool {
	return clientAppVersion > 0 && clientAppVersion < serverAppVersion
}

// ParseVersion converts a query-string version into an int, treating empty or
// malformed input as 0.
func ParseVersion(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

// Decide combines app and config checks into the single update signal.
func Decide(client Versions, clientAppVersion int, server Versions, serverAppVersion int) bool {
	if AppOutdated(clientAppVersion, serverAppVersion) {
		return true
	}
	return NeedsUpdate(client, server)
}
