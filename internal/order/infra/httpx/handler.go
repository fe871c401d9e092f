package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lymian/kirbook-pedido-rest/internal/order/app"
	"github.com/lymian/kirbook-pedido-rest/internal/order/domain"
)

// OrderService is what the handler needs from the orchestrator.
type OrderService interface {
	SubmitOrder(ctx context.Context, tokenHeader string, reqs []app.LineRequest) (*app.OrderDetail, error)
	CreateOrder(ctx context.Context, tokenHeader, customerID string, reqs []app.LineRequest) (*app.OrderDetail, error)
	UpdateOrder(ctx context.Context, tokenHeader, orderID string, reqs []app.LineRequest) (*app.OrderDetail, error)
	DeleteOrder(ctx context.Context, tokenHeader, orderID string) error
	FinalizeOrder(ctx context.Context, tokenHeader, orderID string) (*app.OrderDetail, error)
	ListOwnedOrders(ctx context.Context, tokenHeader string) ([]app.OrderDetail, error)
	ListAllOrders(ctx context.Context, tokenHeader string) ([]app.OrderDetail, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
}

type Handler struct {
	service OrderService
	log     *slog.Logger
}

func NewHandler(service OrderService, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, mapOrder(*o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(*order))
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id is required")
		return
	}
	if !validLines(w, req.Lines) {
		return
	}

	detail, err := h.service.CreateOrder(r.Context(), authHeader(r), req.CustomerID, mapLineRequests(req.Lines))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapDetail(*detail))
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if !validLines(w, req.Lines) {
		return
	}

	detail, err := h.service.SubmitOrder(r.Context(), authHeader(r), mapLineRequests(req.Lines))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapDetail(*detail))
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if !validLines(w, req.Lines) {
		return
	}

	detail, err := h.service.UpdateOrder(r.Context(), authHeader(r), chi.URLParam(r, "id"), mapLineRequests(req.Lines))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDetail(*detail))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteOrder(r.Context(), authHeader(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) finalizeOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.FinalizeOrder(r.Context(), authHeader(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDetail(*detail))
}

func (h *Handler) listOwnedOrders(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.ListOwnedOrders(r.Context(), authHeader(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDetails(details))
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.ListAllOrders(r.Context(), authHeader(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDetails(details))
}

// writeServiceError translates the orchestrator's error taxonomy into status
// codes. Batch validation errors serialize as a JSON array with one entry per
// failing line.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *app.ValidationError
	var sErr *app.StockUpdateError

	switch {
	case errors.Is(err, app.ErrMissingToken), errors.Is(err, app.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, app.ErrIdentityUnavailable):
		writeError(w, http.StatusBadGateway, "identity_unavailable", err.Error())
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, mapLineErrors(vErr.Lines))
	case errors.Is(err, app.ErrOwnerNotFound):
		writeError(w, http.StatusBadRequest, "owner_not_found", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrNotPending):
		writeError(w, http.StatusConflict, "wrong_state", err.Error())
	case errors.As(err, &sErr):
		writeError(w, http.StatusBadGateway, "stock_update_failed", sErr.Error())
	case errors.Is(err, domain.ErrNoLines), errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func validLines(w http.ResponseWriter, lines []LineRequestDTO) bool {
	if len(lines) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "at least one line is required")
		return false
	}
	for _, l := range lines {
		if l.ItemID == "" || l.Quantity < 1 {
			writeError(w, http.StatusBadRequest, "invalid_line", "item_id and a quantity of at least 1 are required")
			return false
		}
	}
	return true
}

func authHeader(r *http.Request) string {
	return r.Header.Get("Authorization")
}

func mapDetails(details []app.OrderDetail) []OrderResponse {
	out := make([]OrderResponse, 0, len(details))
	for _, d := range details {
		out = append(out, mapDetail(d))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
