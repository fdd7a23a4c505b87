// Package ws bridges WebSocket clients to the chat coordinator. One
// connection carries many frames: start opens a session, chat runs a
// streamed exchange (chunks flow back as they arrive), cancel tears the
// session's active stream down, ping answers pong. Writes are
// serialized because progress updates and read-loop replies race for
// the single connection writer.
package ws
