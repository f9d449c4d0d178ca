/*
Package metrics exposes dcc's Prometheus metrics and the /health, /ready and
/live HTTP probes.

Metrics are package-level variables registered once in init(); callers never
construct their own registry. The Collector samples bucket status counts from
the store plus leader/queue state from the running peer on a 15s tick and
publishes them as gauges, without importing pkg/election or pkg/queue
directly (see LeaderStatusFunc / QueueDepthFunc).

Readiness considers "store", "coordination" and "executor" the critical
components: a peer that can't open its store, hold or observe a lease, or
spawn build tasks is not ready to serve the assignment RPC even if its process
is alive.

	metrics.RegisterComponent("store", true, "")
	http.Handle("/metrics", metrics.Handler())
	http.Handle("/ready", metrics.ReadyHandler())
*/
package metrics
