// Package presence keeps a registry of live workers in a NATS KV bucket.
//
// Each worker writes a JSON Record under "{prefix}.{workerID}" at a fixed
// interval. The bucket TTL is about three intervals, so a worker that crashes
// disappears after three missed writes; a worker that stops cleanly deletes its
// key at once.
//
// The queue group itself needs none of this: the bus balances jobs without
// knowing who is subscribed. The registry exists for operators (imgctl workers)
// and dashboards.
//
// Example:
//
//	kv, _ := presence.OpenBucket(ctx, js, "imgpool-workers", 5*time.Second)
//	pub := presence.New(kv, "worker", 5*time.Second, worker.Snapshot)
//	_ = pub.Start(ctx)
//	defer pub.Stop()
package presence
