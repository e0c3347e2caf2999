/*
Package events provides an in-memory event broker for control-plane pub/sub
messaging.

The events package implements a lightweight event bus for broadcasting
fleet events to interested subscribers. It enables loose coupling between
components: the manager publishes after each committed mutation, the
reconciler publishes offline transitions, and consumers such as metrics or
future webhook fan-out subscribe without the publishers knowing.

# Architecture

	Publisher → Event Channel (buffer: 100)
	     ↓
	Broadcast Loop (single goroutine)
	     ↓
	Subscriber Channels (buffer: 50 each)

Publishing never blocks a caller: the broker channel is buffered and a slow
subscriber is skipped once its own buffer fills. Events are best-effort
signals, not a durable audit trail; the durable record is the CommandLog.

# Event Types

	Revision Events:
	  - revision.published

	Command Events:
	  - command.dispatched
	  - command.acked
	  - command.failed
	  - command.retried
	  - command.cancelled

	Node Events:
	  - node.registered
	  - node.linked
	  - node.token_rotated
	  - node.offline

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s: %s\n", event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventNodeOffline,
		Message: "node n-1 went offline",
		Metadata: map[string]string{
			"nodeId":  "n-1",
			"storeId": "store-1",
		},
	})

# See Also

  - pkg/manager - Publishes events after committed mutations
  - pkg/reconciler - Publishes node.offline transitions
*/
package events
