// Package types defines the shared data model: messages, session
// summaries, and the wire payloads exchanged with the wellness AI
// backend. It is dependency-free so every layer can import it.
package types
