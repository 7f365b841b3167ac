package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/freshcart/order-engine/internal/domain"
	"github.com/freshcart/order-engine/internal/pkg/resilience"
)

// Sender delivers one notification over one channel. Each implementation
// carries its own resilience target, so breaker state never leaks across
// providers.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, req domain.NotificationRequest) error
}

// titles maps event types to the human-facing message rendered into push and
// email payloads.
var titles = map[domain.EventType]struct{ title, body string }{
	domain.EventOrderCreated:   {"Order placed", "Your order #%s has been placed."},
	domain.EventStatusChanged:  {"Order update", "Your order #%s was updated."},
	domain.EventOutForDelivery: {"Out for delivery", "Your order #%s is on its way."},
	domain.EventDelivered:      {"Delivered", "Your order #%s has been delivered. Enjoy!"},
}

func messageFor(req domain.NotificationRequest) (title, body string) {
	m, ok := titles[req.Event]
	if !ok {
		return "Order update", fmt.Sprintf("Update for order #%s.", req.OrderID)
	}
	return m.title, fmt.Sprintf(m.body, req.OrderID)
}

// PushSender posts {recipientToken, title, body} to the push gateway.
type PushSender struct {
	endpoint string
	http     *http.Client
	rc       *resilience.Client
	target   resilience.Target
}

func NewPushSender(endpoint string, rc *resilience.Client, target resilience.Target) *PushSender {
	return &PushSender{
		endpoint: endpoint,
		http:     &http.Client{Timeout: target.Timeout + time.Second},
		rc:       rc,
		target:   target,
	}
}

func (s *PushSender) Channel() domain.Channel { return domain.ChannelPush }

func (s *PushSender) Send(ctx context.Context, req domain.NotificationRequest) error {
	title, body := messageFor(req)
	token := req.Payload["push_token"]
	if token == "" {
		token = req.RecipientID
	}
	payload := map[string]string{
		"recipientToken": token,
		"title":          title,
		"body":           body,
	}
	return s.rc.Call(ctx, s.target, func(ctx context.Context) error {
		return postJSON(ctx, s.http, s.endpoint, payload)
	})
}

// EmailSender posts {to, templateId, variables} to the email provider. The
// template id is derived from the event type; payload entries become template
// variables verbatim.
type EmailSender struct {
	endpoint string
	from     string
	http     *http.Client
	rc       *resilience.Client
	target   resilience.Target
}

func NewEmailSender(endpoint, from string, rc *resilience.Client, target resilience.Target) *EmailSender {
	return &EmailSender{
		endpoint: endpoint,
		from:     from,
		http:     &http.Client{Timeout: target.Timeout + time.Second},
		rc:       rc,
		target:   target,
	}
}

func (s *EmailSender) Channel() domain.Channel { return domain.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, req domain.NotificationRequest) error {
	to := req.Payload["email"]
	if to == "" {
		to = req.RecipientID
	}
	payload := map[string]any{
		"from":       s.from,
		"to":         to,
		"templateId": "order-" + string(req.Event),
		"variables":  req.Payload,
	}
	return s.rc.Call(ctx, s.target, func(ctx context.Context) error {
		return postJSON(ctx, s.http, s.endpoint, payload)
	})
}

// InAppSender persists the notification row so it shows up in the user's
// in-app feed. Storage writes still run under the resilience policy: the
// database is a downstream like any other.
type InAppSender struct {
	store  domain.NotificationStore
	rc     *resilience.Client
	target resilience.Target
}

func NewInAppSender(store domain.NotificationStore, rc *resilience.Client, target resilience.Target) *InAppSender {
	return &InAppSender{store: store, rc: rc, target: target}
}

func (s *InAppSender) Channel() domain.Channel { return domain.ChannelInApp }

func (s *InAppSender) Send(ctx context.Context, req domain.NotificationRequest) error {
	return s.rc.Call(ctx, s.target, func(ctx context.Context) error {
		return s.store.SaveInApp(ctx, req)
	})
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
