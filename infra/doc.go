// Package infra groups the adapters behind the core interfaces: the paho
// broker link, the zerolog logger and the Prometheus recorder.
package infra
