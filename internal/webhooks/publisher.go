package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"fieldroute/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Event is the envelope every webhook body carries.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

// Emit queues an event for every subscription of the tenant that wants it.
// It returns the event id, or "" when nobody is subscribed.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) string {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		log.Printf("[WEBHOOK] subscriptions lookup failed tenant=%s event=%s: %v", tenantID, eventType, err)
		return ""
	}
	if len(subs) == 0 {
		return ""
	}
	ev := Event{
		ID:       "evt_" + uuid.NewString(),
		Type:     eventType,
		TenantID: tenantID,
		TS:       time.Now().UTC().Format(time.RFC3339),
		Data:     data,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[WEBHOOK] encode %s: %v", eventType, err)
		return ""
	}
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			log.Printf("[WEBHOOK] enqueue %s to %s: %v", eventType, s.URL, err)
		}
	}
	return ev.ID
}
