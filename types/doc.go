// Package types provides the shared type definitions and interfaces of the imgpool
// module.
//
// Keeping these in a leaf package lets the internal packages (handler, reply,
// presence, metrics) depend on them without importing the root imgpool package.
//
// Key types:
//   - State: Worker lifecycle state (Init, Running, Draining, Closed)
//   - Backend: Image generation backend contract
//   - GenerateParams / Image: Backend input and output
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
//   - Hooks: Lifecycle callbacks
package types
