// Package metrics exposes Prometheus gauges and counters for the
// secure-channel handshake, the credentials issuer/server, and the node
// substrate, plus a small health/readiness/liveness HTTP surface in the
// same shape. Nothing in pkg/node, pkg/securechannel, or pkg/trust
// depends on this package — callers that want metrics call the
// package-level Inc/Set/Observe helpers from their own wiring code, the
// same way an embedding application registers its own instrumentation
// points against a shared Prometheus registry.
package metrics
