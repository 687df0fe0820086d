// Package metrics exposes Prometheus collectors for the bridge. A Metrics
// value is a heap.Observer, so passing it in runtime.Config.Observers counts
// handle traffic of every instance.
package metrics
