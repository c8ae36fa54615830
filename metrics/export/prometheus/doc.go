// Package prometheus renders authcore engine metrics in the Prometheus text
// exposition format.
//
// [New] accepts an *authcore.Engine (or any [Source]) and [Exporter.Handler]
// serves the rendered text. Counters are named authcore_*_total; latency
// histograms are authcore_*_latency_seconds and only appear when latency
// histograms are enabled. Nothing is registered globally; callers mount the
// handler.
package prometheus
