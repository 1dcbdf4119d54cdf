package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/weddify/backend/internal/auth"
	"github.com/weddify/backend/internal/bookings"
	"github.com/weddify/backend/internal/middleware"
	"github.com/weddify/backend/internal/models"
	"github.com/weddify/backend/internal/vendors"
)

type Handler struct {
	authSvc    auth.Service
	bookingSvc bookings.Service
	vendorSvc  vendors.Service
	log        *slog.Logger
}

func NewHandler(authSvc auth.Service, bookingSvc bookings.Service, vendorSvc vendors.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		authSvc:    authSvc,
		bookingSvc: bookingSvc,
		vendorSvc:  vendorSvc,
		log:        log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	acc, err := h.authSvc.GetAccount(r.Context(), p.AccountID)
	if err != nil || acc == nil {
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	}
	resp := map[string]any{
		"id":           acc.ID,
		"email":        acc.Email,
		"display_name": acc.DisplayName,
		"role":         acc.Role,
		"created_at":   acc.CreatedAt,
	}
	if acc.Role == models.RoleVendor {
		if v, err := h.vendorSvc.GetByAccountID(r.Context(), p.AccountID); err == nil {
			resp["vendor"] = map[string]any{
				"id":            v.ID,
				"business_name": v.BusinessName,
				"category":      v.Category,
				"tier":          v.Tier,
				"status":        v.Status,
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/dashboard/summary
//
// Customers see what they spent and got back; vendors see what is held for
// them and what was paid out. Bookings carry their split snapshot, so the
// summary is a pure fold over the caller's bookings.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var (
		list []*models.Booking
		err  error
	)
	if p.Role == models.RoleVendor {
		list, err = h.bookingSvc.ListByVendorAccount(r.Context(), p.AccountID)
	} else {
		list, err = h.bookingSvc.ListByCustomer(r.Context(), p.AccountID)
	}
	if err != nil {
		h.log.Error("dashboard summary failed", "error", err)
		http.Error(w, `{"error":"summary failed"}`, http.StatusInternalServerError)
		return
	}

	byState := map[string]int{}
	var totalCents, escrowHeldCents, refundedCents, releasedCents int64
	for _, b := range list {
		byState[string(b.State)]++
		totalCents += b.TotalCents
		refundedCents += b.RefundedCents
		switch b.State {
		case models.StateEscrowHeld, models.StatePartiallyRefunded:
			escrowHeldCents += b.EscrowCents
		case models.StateReleased:
			releasedCents += b.EscrowCents
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bookings":          len(list),
		"bookings_by_state": byState,
		"total_cents":       totalCents,
		"escrow_held_cents": escrowHeldCents,
		"released_cents":    releasedCents,
		"refunded_cents":    refundedCents,
	})
}
