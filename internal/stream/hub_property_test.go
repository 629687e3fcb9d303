package stream

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"nse-agent/internal/models"
)

// Property: every subscriber receives every published decision, in order,
// when buffers are large enough.
func TestProperty_SubscribersReceiveDecisionsInOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("all subscribers see all decisions in publish order", prop.ForAll(
		func(subscriberCount, eventCount int) bool {
			hub := NewHubWithConfig(HubConfig{BufferSize: 100, SubscriberBufferSize: 100})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			chans := make([]<-chan Event, subscriberCount)
			for i := range chans {
				chans[i], _ = hub.Subscribe("test")
			}

			entries := make([]*models.DecisionLogEntry, eventCount)
			for i := range entries {
				entries[i] = &models.DecisionLogEntry{ID: int64(i + 1), Kind: models.DecisionSignalEvaluated}
			}
			hub.PublishDecisions(entries)

			for _, ch := range chans {
				for want := int64(1); want <= int64(eventCount); want++ {
					select {
					case ev := <-ch:
						if ev.Type != EventDecision || ev.Decision.ID != want {
							return false
						}
					case <-time.After(time.Second):
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	ch, unsubscribe := hub.Subscribe("ws")
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", hub.SubscriberCount())
	}
	unsubscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0", hub.SubscriberCount())
	}
}

func TestSlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 10, SubscriberBufferSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	_, _ = hub.Subscribe("slow")
	for i := 0; i < 5; i++ {
		hub.Publish(Event{Type: EventStatus, Message: "tick"})
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m := hub.GetMetrics()
		if m.EventsReceived == 5 {
			if m.EventsBroadcast != 1 || m.EventsDropped != 4 {
				t.Errorf("metrics = %+v", m)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("hub did not process events: %+v", hub.GetMetrics())
}
