// Package metrics defines the Recorder used by the session controller to
// report published commands, movement durations and broker link status.
// The Prometheus implementation lives in infra/metrics.
package metrics
