// Package otel publishes famguard metrics through an OpenTelemetry meter
// as asynchronous instruments read from the engine snapshot on each
// collection.
package otel
