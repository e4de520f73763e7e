// Package server hosts the Fiber application shared by every pageline
// endpoint: recover middleware, per-request id, Host to domain-slug
// resolution and the optional mount point. Endpoint handlers live in
// server/routes and only read what this package stored on the context.
package server
