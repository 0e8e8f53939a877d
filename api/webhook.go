package api

import "time"

// Webhook event names. Only EventValidatorUnhealthy and EventWebhookTest
// are emitted today; the remaining names are reserved for the alert
// lifecycle owned by the management layer.
const (
	EventValidatorUnhealthy = "validator.unhealthy"
	EventValidatorRecovered = "validator.recovered"
	EventAlertAcknowledged  = "alert.acknowledged"
	EventAlertResolved      = "alert.resolved"
	EventWebhookTest        = "webhook.test"
)

// HeaderSignature carries the hex HMAC-SHA256 of the request body keyed
// by the webhook secret.
const HeaderSignature = "X-Sentinel-Signature"

// WebhookUserAgent identifies Sentinel deliveries.
const WebhookUserAgent = "Sentinel-Webhook/1.0"

// WebhookEvent is the body of every webhook delivery.
type WebhookEvent struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}
