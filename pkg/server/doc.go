// Package server exposes the agent over HTTP: streamed and non-streamed
// invocation endpoints, health and knowledge-base status, Prometheus
// metrics, and the config JSON schema.
//
// Streaming uses newline-delimited JSON (application/x-ndjson), one event
// per line, flushed as produced. Authentication failures and malformed
// requests are rejected before the stream opens; a failure after the
// status line is committed surfaces as a terminal in-band error event.
package server
