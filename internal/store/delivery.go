package store

import "time"

// WebhookDelivery is a queued webhook POST as the worker sees it.
type WebhookDelivery struct {
    ID             string
    TenantID       string
    SubscriptionID string
    EventType      string
    URL            string
    Secret         string
    Payload        []byte
    Status         string
    Attempts       int
}

// Delivery statuses
const (
    DeliveryPending   = "pending"
    DeliveryRetry     = "retry"
    DeliveryDelivered = "delivered"
    DeliveryFailed    = "failed"
)

// DeliveryStatus is the admin view of a delivery.
type DeliveryStatus struct {
    ID            string     `json:"id"`
    EventType     string     `json:"eventType"`
    URL           string     `json:"url"`
    Status        string     `json:"status"`
    Attempts      int        `json:"attempts"`
    NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
    LastError     string     `json:"lastError,omitempty"`
    ResponseCode  int        `json:"responseCode,omitempty"`
    LatencyMs     int        `json:"latencyMs,omitempty"`
    DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
}
