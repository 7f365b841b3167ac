package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/freshcart/order-engine/internal/domain"
	"github.com/freshcart/order-engine/internal/observability"
	"github.com/freshcart/order-engine/internal/orchestrator"
	"github.com/freshcart/order-engine/internal/pkg/resilience"
)

//go:generate mockgen -source internal/httpapi/httpapi.go -destination=internal/httpapi/httpapi_mock_test.go -package=httpapi

type Service interface {
	Checkout(ctx context.Context, req orchestrator.CheckoutRequest) (*orchestrator.CheckoutResult, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.Status) (*domain.Order, error)
}

type Server struct {
	service Service
	router  chi.Router
	logger  *zap.Logger
	metrics observability.Metrics
}

func New(service Service, metricsHandler http.Handler, logger *zap.Logger, metrics observability.Metrics) *Server {
	s := &Server{
		service: service,
		logger:  logger,
		metrics: metrics,
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		ServerTimingApp(metrics),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Post("/checkout", s.checkout)
	r.Get("/orders/{order_id}", s.getOrder)
	r.Patch("/orders/{order_id}/status", s.updateStatus)

	s.router = r
	return s
}

type checkoutPayload struct {
	UserID          string `json:"userId"`
	DeliveryAddress string `json:"deliveryAddress"`
	IdempotencyKey  string `json:"idempotencyKey"`
}

type attemptPayload struct {
	Channel string `json:"channel"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

type checkoutResponse struct {
	OrderID              string           `json:"orderId"`
	Status               string           `json:"status"`
	TotalAmount          float64          `json:"totalAmount"`
	DeliveryFee          float64          `json:"deliveryFee"`
	CartClearOutcome     string           `json:"cartClearOutcome"`
	NotificationOutcomes []attemptPayload `json:"notificationOutcomes"`
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	var payload checkoutPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		s.logger.Warn("bad checkout payload", zap.Error(err))
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	result, err := s.service.Checkout(r.Context(), orchestrator.CheckoutRequest{
		UserID:          payload.UserID,
		DeliveryAddress: payload.DeliveryAddress,
		IdempotencyKey:  payload.IdempotencyKey,
	})
	if err != nil {
		s.writeCheckoutError(w, err)
		return
	}

	attempts := make([]attemptPayload, 0, len(result.Notifications))
	for _, a := range result.Notifications {
		attempts = append(attempts, attemptPayload{
			Channel: string(a.Channel),
			Outcome: string(a.Outcome),
			Reason:  a.Reason,
		})
	}

	// degraded success is still 201: the order exists, the pending side
	// effect is advisory
	writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:              result.Order.ID,
		Status:               string(result.Order.Status),
		TotalAmount:          result.Order.TotalAmount,
		DeliveryFee:          result.Order.DeliveryFee,
		CartClearOutcome:     string(result.CartClear),
		NotificationOutcomes: attempts,
	})
}

func (s *Server) writeCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrUnavailable):
		// pre-persist downstream failure: nothing was created
		writeError(w, http.StatusServiceUnavailable, "cart store unavailable, retry checkout")
	case errors.Is(err, domain.ErrPersistence):
		s.logger.Error("checkout persistence failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "order could not be saved, retry checkout")
	default:
		s.logger.Error("checkout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	order, err := s.service.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no order with this id")
			return
		}
		s.logger.Error("get order failed", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type statusPayload struct {
	Status string `json:"status"`
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	var payload statusPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	order, err := s.service.UpdateStatus(r.Context(), orderID, domain.Status(payload.Status))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "no order with this id")
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("status update failed", zap.String("order_id", orderID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv.ListenAndServe()
}
