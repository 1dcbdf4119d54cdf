package bookings

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/weddify/backend/internal/escrow"
	"github.com/weddify/backend/internal/middleware"
	"github.com/weddify/backend/internal/models"
	"github.com/weddify/backend/internal/payments"
	"github.com/weddify/backend/internal/vendors"
)

// Request/response structs use snake_case JSON.

type CreateBookingRequest struct {
	VendorID   string    `json:"vendor_id"`
	TotalCents int64     `json:"total_cents"`
	EventDate  time.Time `json:"event_date"`
}

type CancelBookingRequest struct {
	Reason      string `json:"reason"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
}

type BookingResponse struct {
	ID              string  `json:"id"`
	CustomerID      string  `json:"customer_id"`
	VendorID        string  `json:"vendor_id"`
	VendorTier      string  `json:"vendor_tier"`
	TotalCents      int64   `json:"total_cents"`
	CommissionCents int64   `json:"commission_cents"`
	DepositCents    int64   `json:"deposit_cents"`
	EscrowCents     int64   `json:"escrow_cents"`
	RefundedCents   int64   `json:"refunded_cents"`
	Currency        string  `json:"currency"`
	State           string  `json:"state"`
	CancelReason    *string `json:"cancel_reason,omitempty"`
	EventDate       string  `json:"event_date"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// CreateBooking creates a booking and charges the customer. A processor
// decline still creates the booking: the customer sees "payment failed" and
// may retry, while partial failures are queued for the reconciliation sweep.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	vendorID, err := uuid.Parse(req.VendorID)
	if err != nil || req.TotalCents <= 0 || req.EventDate.IsZero() {
		http.Error(w, `{"error":"missing or invalid required fields"}`, http.StatusBadRequest)
		return
	}

	b, err := h.svc.CreateBooking(r.Context(), p.AccountID, vendorID, req.TotalCents, req.EventDate)
	if err != nil {
		h.writeCreateError(w, b, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookingToResponse(b))
}

func (h *Handler) writeCreateError(w http.ResponseWriter, b *models.Booking, err error) {
	switch {
	case errors.Is(err, vendors.ErrVendorNotFound):
		http.Error(w, `{"error":"vendor not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrVendorUnavailable), errors.Is(err, payments.ErrVendorNotPayable):
		http.Error(w, `{"error":"vendor cannot accept payments"}`, http.StatusConflict)
	case errors.Is(err, payments.ErrProcessorRejected):
		http.Error(w, `{"error":"payment failed"}`, http.StatusPaymentRequired)
	case errors.Is(err, payments.ErrPartialFailure):
		// Charge went through; the deposit retries in the background.
		writeJSON(w, http.StatusCreated, bookingToResponse(b))
	case errors.Is(err, payments.ErrPaymentUnconfirmed):
		http.Error(w, `{"error":"payment not confirmed, please retry"}`, http.StatusServiceUnavailable)
	default:
		h.log.Error("create booking failed", "error", err)
		http.Error(w, `{"error":"create booking failed"}`, http.StatusInternalServerError)
	}
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bookingToResponse(b))
}

// ListBookings returns the caller's bookings: a customer sees what they
// booked, a vendor what was booked with them.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var (
		list []*models.Booking
		err  error
	)
	switch p.Role {
	case models.RoleVendor:
		list, err = h.listForVendorAccount(r, p.AccountID)
	default:
		list, err = h.svc.ListByCustomer(r.Context(), p.AccountID)
	}
	if err != nil {
		h.log.Error("list bookings failed", "error", err)
		http.Error(w, `{"error":"list bookings failed"}`, http.StatusInternalServerError)
		return
	}
	resp := make([]BookingResponse, 0, len(list))
	for _, b := range list {
		resp = append(resp, bookingToResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

// MarkCompleted is the "service was rendered" entry point consumed by the
// vendor/admin dashboards. Repeated triggers are no-ops.
func (h *Handler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid booking id"}`, http.StatusBadRequest)
		return
	}
	err = h.svc.MarkCompleted(r.Context(), id, Actor{AccountID: p.AccountID, Role: p.Role})
	if err != nil {
		h.writeLifecycleError(w, "mark completed", err)
		return
	}
	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"booking not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, bookingToResponse(b))
}

// Cancel requests a refund before completion. An omitted amount refunds the
// full remaining payment; an amount requests a partial refund against the
// held escrow.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid booking id"}`, http.StatusBadRequest)
		return
	}
	var req CancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		http.Error(w, `{"error":"reason is required"}`, http.StatusBadRequest)
		return
	}

	b, err := h.svc.Cancel(r.Context(), id, req.Reason, req.AmountCents, Actor{AccountID: p.AccountID, Role: p.Role})
	if err != nil {
		h.writeLifecycleError(w, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, bookingToResponse(b))
}

// ListLedger returns the booking's append-only ledger entries for audit.
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.Entries(r.Context(), b.ID)
	if err != nil {
		h.log.Error("list ledger failed", "booking_id", b.ID, "error", err)
		http.Error(w, `{"error":"list ledger failed"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) writeLifecycleError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, escrow.ErrBookingNotFound):
		http.Error(w, `{"error":"booking not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrNotAuthorized):
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	case errors.Is(err, escrow.ErrInvalidTransition):
		http.Error(w, `{"error":"booking state does not allow this"}`, http.StatusConflict)
	case errors.Is(err, escrow.ErrStateConflict):
		http.Error(w, `{"error":"booking is being updated, retry"}`, http.StatusConflict)
	case errors.Is(err, payments.ErrRefundExceedsAvailable):
		http.Error(w, `{"error":"refund exceeds available amount"}`, http.StatusUnprocessableEntity)
	default:
		h.log.Error(op+" failed", "error", err)
		http.Error(w, `{"error":"`+op+` failed"}`, http.StatusInternalServerError)
	}
}

// loadAuthorized fetches the booking from the path id and checks the caller
// participates in it (or is an admin).
func (h *Handler) loadAuthorized(w http.ResponseWriter, r *http.Request) (*models.Booking, bool) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid booking id"}`, http.StatusBadRequest)
		return nil, false
	}
	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"booking not found"}`, http.StatusNotFound)
		return nil, false
	}
	if !h.mayView(r, p, b) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return nil, false
	}
	return b, true
}

func (h *Handler) mayView(r *http.Request, p *middleware.Principal, b *models.Booking) bool {
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCustomer:
		return b.CustomerID == p.AccountID
	case models.RoleVendor:
		list, err := h.listForVendorAccount(r, p.AccountID)
		if err != nil {
			return false
		}
		for _, vb := range list {
			if vb.ID == b.ID {
				return true
			}
		}
	}
	return false
}

func (h *Handler) listForVendorAccount(r *http.Request, accountID uuid.UUID) ([]*models.Booking, error) {
	return h.svc.ListByVendorAccount(r.Context(), accountID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bookingToResponse(b *models.Booking) BookingResponse {
	return BookingResponse{
		ID:              b.ID.String(),
		CustomerID:      b.CustomerID.String(),
		VendorID:        b.VendorID.String(),
		VendorTier:      string(b.VendorTier),
		TotalCents:      b.TotalCents,
		CommissionCents: b.CommissionCents,
		DepositCents:    b.DepositCents,
		EscrowCents:     b.EscrowCents,
		RefundedCents:   b.RefundedCents,
		Currency:        b.Currency,
		State:           string(b.State),
		CancelReason:    b.CancelReason,
		EventDate:       b.EventDate.Format(time.RFC3339),
	}
}
