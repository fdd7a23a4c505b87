// Package transport is the only place that talks HTTP to the wellness
// AI backend. It owns authentication, retries, rate limiting, and the
// circuit breaker, and it maps every raw failure into the shared error
// taxonomy before returning. Single-shot calls go through Send and
// SendInto; streamed chat exchanges go through OpenStream, which parses
// the server-sent event body into decoded events.
package transport
