// Package otel publishes authcore counters and latency histograms through an
// OpenTelemetry Meter.
//
// [New] registers one Int64ObservableCounter per counter and, per histogram,
// a cumulative bucket gauge keyed by an "le" attribute plus a sample count.
// A single callback reads the Engine's MetricsSnapshot on every collection.
//
// The caller owns the MeterProvider.
package otel
