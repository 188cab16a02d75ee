// Package broadcast provides typed one-to-many message delivery.
//
// MemoryBroadcaster fans messages out to subscribers over buffered channels.
// Broadcasting never blocks; a subscriber that falls behind loses its oldest
// pending messages rather than stalling the publisher. With WithReplayLast,
// late subscribers start from the latest message, which suits state streams:
//
//	b := broadcast.NewMemoryBroadcaster[State](8, broadcast.WithReplayLast[State]())
//	sub := b.Subscribe(ctx)
//	for msg := range sub.Receive(ctx) {
//		render(msg.Data)
//	}
package broadcast
