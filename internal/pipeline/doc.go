// Package pipeline turns a request path into a page data response.
//
// A request flows through four stages: the route matcher picks a page type
// from the descriptors generated for the current CMS config and domain, the
// orchestrator runs the page loader (or the error loader when nothing matched,
// the loader passed, or it failed), the domain resolver stamps host metadata
// onto whatever was loaded, and the assembler computes status, cache headers
// and the JSON envelope.
package pipeline
