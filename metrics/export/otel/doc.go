// Package otel bridges engine metrics to an OpenTelemetry meter. Counters
// and histogram buckets are registered as observables and read from an engine
// snapshot inside the meter's collection callback.
package otel
