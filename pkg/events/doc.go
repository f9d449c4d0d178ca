/*
Package events is an in-memory, best-effort pub/sub bus for bucket, build,
and leadership transitions.

Publish queues the event on the broker's buffered channel and blocks only
while that channel is full; a full subscriber buffer drops the event rather
than stall the broadcast to other subscribers. pkg/notify is the
primary subscriber — it turns EventBucketFailed/EventBucketRepaired into
mail and chat notifications — and pkg/metrics/collector.go could subscribe
for push-based counters, though it currently polls the store instead.

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			if ev.Type == events.EventBucketFailed {
				fmt.Println(ev.Message)
			}
		}
	}()
	broker.Publish(&events.Event{Type: events.EventBucketFailed, Message: "bucket rspec:models failed"})

There is no persistence or replay: a peer that restarts mid-build does not
see events published before it subscribed. Durable state (bucket status,
build finished_at) lives in the store, not the bus.
*/
package events
