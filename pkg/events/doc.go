/*
Package events provides an in-memory broker that streams notification
events to connected clients.

The reconciler's notifier hands each owner's events to its dispatchers. The
Broker is one of them: it implements the notifier's dispatcher contract
through Send and forwards each event to every live subscription opened for
the same owner. The API server opens one subscription per
GET /events request and writes the events as server-sent events, which is
how a browser tab receives the in-app alerts (with their vibration and
sound flags) without polling.

# Delivery

	Notifier → Broker.Send → event channel (buffer: 100)
	                              ↓
	                        broadcast loop
	                              ↓
	          owner's subscriber channels (buffer: 50 each)

Delivery is best effort. Send returns 0 without queueing when the owner has
no subscribers, so the notifier's "undelivered" metric stays accurate. A
subscriber whose buffer is full misses the event rather than stalling the
broadcast loop; the stored node status remains the source of truth.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe("alice")
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Message)
	}
*/
package events
