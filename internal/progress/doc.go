// Package progress provides the event model, per-run ordering tracker,
// non-blocking hub, and emitter interfaces the discovery pipeline uses to
// report run progress. The hub batches events on a background goroutine and
// fans them out to pluggable sinks such as Prometheus metrics or run storage.
package progress
