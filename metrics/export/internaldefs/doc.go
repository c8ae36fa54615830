// Package internaldefs holds the metric names, help strings and bucket bounds
// shared by exporters, so every exporter publishes identical series.
package internaldefs
