// Package assets resolves logical bundle names ("app.js", "list.css") to the
// hashed files listed in the build manifest, prefixes them with the CDN host,
// and reads asset bodies from the public directory. The manifest and every
// asset body are loaded at most once per process; builds are immutable, so
// nothing is ever invalidated.
package assets
