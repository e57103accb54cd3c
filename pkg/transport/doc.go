// Package transport moves framed protocol messages between two peers.
//
// A Transport knows nothing about JSON-RPC: it delivers opaque frames in the
// order they were written. Correlation, dispatch and error mapping live in
// pkg/session.
//
// # Implementations
//
// StdioTransport:
//   - Newline-delimited frames over any reader/writer pair
//   - The standard wiring for a provider launched as a subprocess
//
// CommandTransport:
//   - Spawns the provider and attaches a StdioTransport to its pipes
//   - Close ends the child's stdin, then kills it after a grace period
//
// Pipe:
//   - An in-memory connected pair for tests and in-process providers
//   - Closing either end closes both
//
// # Middleware
//
// Frame-level concerns are layered with Chain:
//
//	t := transport.Chain(base,
//		transport.Log(logger),
//		transport.Observe(metrics),
//	)
//
// The first middleware listed sees each frame first on Send and last on
// Receive.
package transport
