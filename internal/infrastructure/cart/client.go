// Package cart talks to the cart store over HTTP. Both operations go through
// the shared resilience client under the "cart" target, so sustained cart
// store failure trips one breaker for reads and clears alike.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/freshcart/order-engine/internal/domain"
	"github.com/freshcart/order-engine/internal/pkg/resilience"
)

type Client struct {
	baseURL string
	http    *http.Client
	rc      *resilience.Client
	target  resilience.Target
	logger  *zap.Logger
}

func NewClient(baseURL string, rc *resilience.Client, target resilience.Target, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			// per-attempt deadlines come from the resilience target; this is
			// a hard upper bound against leaked connections
			Timeout: target.Timeout + time.Second,
		},
		rc:     rc,
		target: target,
		logger: logger,
	}
}

// Snapshot reads GET /cart/{userId}. A 404 is an empty cart, not an error.
func (c *Client) Snapshot(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	var snap domain.CartSnapshot
	err := c.rc.Call(ctx, c.target, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cartURL(userID), nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer drain(resp.Body)

		switch {
		case resp.StatusCode == http.StatusNotFound:
			snap = domain.CartSnapshot{UserID: userID}
			return nil
		case resp.StatusCode >= 300:
			return fmt.Errorf("cart store returned %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&snap)
	})
	if err != nil {
		return nil, err
	}
	if snap.UserID == "" {
		snap.UserID = userID
	}
	return &snap, nil
}

// Clear issues DELETE /cart/{userId}. The operation is idempotent downstream;
// idemKey ties retries of the same checkout together so a duplicate delete is
// recognizable on the cart store side.
func (c *Client) Clear(ctx context.Context, userID, idemKey string) error {
	return c.rc.Call(ctx, c.target, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cartURL(userID), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Idempotency-Key", idemKey)
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer drain(resp.Body)

		// 404 means the cart is already gone, which is the desired state
		if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
			return fmt.Errorf("cart clear returned %d", resp.StatusCode)
		}
		return nil
	})
}

func (c *Client) cartURL(userID string) string {
	return c.baseURL + "/cart/" + url.PathEscape(userID)
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
