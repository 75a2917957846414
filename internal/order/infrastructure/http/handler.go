package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/CrisDiaz2402/shoplight-backend/internal/order/application"
	"github.com/CrisDiaz2402/shoplight-backend/internal/order/domain"
)

// userIDHeader is set by the upstream auth layer after token verification.
// Authentication itself is outside this service.
const userIDHeader = "X-User-ID"

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var in application.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}

	order, err := h.service.CreateOrder(ctx, userID, in)
	if err != nil {
		if domain.IsClientError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("create order failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error while processing the order")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "order created",
		"order":   order,
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(ctx, userID)
	if err != nil {
		h.log.Error("list orders failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch order history")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}
