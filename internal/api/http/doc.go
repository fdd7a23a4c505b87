// Package http exposes the REST and SSE surface: chat start, session
// inspection and lifecycle, stream cancellation, feedback, and wellness
// plan generation. Streaming chat is also available over WebSocket in
// the ws package; the SSE endpoint here serves clients without one.
package http
