package webhooks

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"fieldroute/internal/model"
	"fieldroute/internal/store"
)

func TestPublisherEmitEnqueuesPerSubscription(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	_, _ = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{model.EventAssignmentCompleted}})
	_, _ = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{"*"}})
	_, _ = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t2", URL: "http://c", Events: []string{"*"}})

	id := NewPublisher(mem).Emit(ctx, "t1", model.EventAssignmentCompleted, map[string]string{"T1": "J1"})
	if !strings.HasPrefix(id, "evt_") {
		t.Fatalf("unexpected event id %q", id)
	}
	due, _ := mem.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 2 {
		t.Fatalf("want 2 deliveries, got %d", len(due))
	}
	var ev Event
	if err := json.Unmarshal(due[0].Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != id || ev.Type != model.EventAssignmentCompleted || ev.TenantID != "t1" {
		t.Fatalf("unexpected envelope %+v", ev)
	}
}

func TestPublisherEmitWithoutSubscribers(t *testing.T) {
	mem := store.NewMemory()
	if id := NewPublisher(mem).Emit(context.Background(), "t1", model.EventRouteOptimized, nil); id != "" {
		t.Fatalf("expected no event, got %q", id)
	}
}
