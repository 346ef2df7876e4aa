// Package sinks implements concrete progress consumers: structured logging,
// Prometheus job metrics and completion notifications. Each sink satisfies
// progress.Sink.
package sinks
