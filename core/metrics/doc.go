// Package metrics defines the sinks receiving scheduler observations.
// PublicationRecord is mandatory for every sink; the other records are
// optional interfaces. NewMetricsSink builds a MultiSink automatically when
// several sinks are configured.
package metrics
