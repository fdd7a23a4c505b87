// Command companion runs the wellness chat gateway: the HTTP, SSE, and
// WebSocket surface in front of the AI backend's streaming chat,
// session, and plan generation endpoints.
package main
