// Package producer is the publishing boundary between the bridge and a message queue.
//
// A Producer registers sends with SendAsync and reports each outcome through a callback,
// in whatever order the broker acknowledges them. Flush blocks until every registered
// send has settled, although some clients deliver the last callbacks shortly after Flush
// returns; callers count results rather than trusting Flush alone.
//
// Results for one submission are gathered in a Collector:
//
//	col := producer.NewCollector(metrics)
//	for _, rec := range batch {
//		p.SendAsync(ctx, producer.FromRecord(rec), col.Done())
//	}
//	_ = p.Flush(ctx)
//	// poll col.Len() until it reaches len(batch), then
//	col.Seal()
//
// Backends live in subpackages (jetstream, kafkago, sarama, franz) and are made
// available through a Registry keyed by the producer.type configuration value.
package producer
