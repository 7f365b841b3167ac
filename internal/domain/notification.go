package domain

import "time"

type EventType string

const (
	EventOrderCreated   EventType = "order_created"
	EventStatusChanged  EventType = "status_changed"
	EventOutForDelivery EventType = "out_for_delivery"
	EventDelivered      EventType = "delivered"
)

type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "inapp"
)

// NotificationRequest is built by the orchestrator and handed to the
// dispatcher. Channels may be empty, in which case the dispatcher falls back
// to its configured routing for the event type.
type NotificationRequest struct {
	OrderID     string
	RecipientID string
	Event       EventType
	Channels    []Channel
	Payload     map[string]string
}

type AttemptOutcome string

const (
	AttemptSent    AttemptOutcome = "sent"
	AttemptFailed  AttemptOutcome = "failed"
	AttemptSkipped AttemptOutcome = "skipped"
)

// NotificationAttempt records the terminal outcome of one channel delivery.
// Failed attempts are never retried beyond the dispatcher's bounded retry.
type NotificationAttempt struct {
	Channel Channel        `json:"channel"`
	Outcome AttemptOutcome `json:"outcome"`
	At      time.Time      `json:"at"`
	Reason  string         `json:"reason,omitempty"`
}
