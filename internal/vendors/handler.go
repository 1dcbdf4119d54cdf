package vendors

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/weddify/backend/internal/middleware"
	"github.com/weddify/backend/internal/models"
)

// Request/response structs use snake_case JSON.

type CreateVendorRequest struct {
	BusinessName       string `json:"business_name"`
	Category           string `json:"category"`
	Tier               string `json:"tier"`
	ProcessorAccountID string `json:"processor_account_id"`
}

type ChangeTierRequest struct {
	Tier string `json:"tier"`
}

type VendorResponse struct {
	ID           string `json:"id"`
	BusinessName string `json:"business_name"`
	Category     string `json:"category"`
	Tier         string `json:"tier"`
	Status       string `json:"status"`
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

// CreateVendor registers a vendor profile for the authenticated account.
func (h *Handler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req CreateVendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.BusinessName == "" || req.Category == "" || req.ProcessorAccountID == "" {
		http.Error(w, `{"error":"missing required fields"}`, http.StatusBadRequest)
		return
	}
	tier := models.VendorTier(req.Tier)
	if req.Tier == "" {
		tier = models.TierFree
	}

	v, err := h.svc.CreateVendor(r.Context(), CreateParams{
		AccountID:          p.AccountID,
		BusinessName:       req.BusinessName,
		Category:           req.Category,
		Tier:               tier,
		ProcessorAccountID: req.ProcessorAccountID,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTier) {
			http.Error(w, `{"error":"invalid tier"}`, http.StatusBadRequest)
			return
		}
		h.log.Error("create vendor failed", "error", err)
		http.Error(w, `{"error":"create vendor failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, vendorToResponse(v))
}

func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid vendor id"}`, http.StatusBadRequest)
		return
	}
	v, err := h.svc.GetVendor(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrVendorNotFound) {
			http.Error(w, `{"error":"vendor not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("get vendor failed", "error", err)
		http.Error(w, `{"error":"get vendor failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, vendorToResponse(v))
}

func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListActive(r.Context())
	if err != nil {
		h.log.Error("list vendors failed", "error", err)
		http.Error(w, `{"error":"list vendors failed"}`, http.StatusInternalServerError)
		return
	}
	resp := make([]VendorResponse, 0, len(list))
	for _, v := range list {
		resp = append(resp, vendorToResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChangeTier moves a vendor onto another subscription tier. Only the vendor's
// own account or an admin may do this; the new rate applies to future
// bookings only.
func (h *Handler) ChangeTier(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid vendor id"}`, http.StatusBadRequest)
		return
	}
	var req ChangeTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	if p.Role != models.RoleAdmin {
		v, err := h.svc.GetVendor(r.Context(), id)
		if err != nil {
			http.Error(w, `{"error":"vendor not found"}`, http.StatusNotFound)
			return
		}
		if v.AccountID != p.AccountID {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
	}

	if err := h.svc.ChangeTier(r.Context(), id, models.VendorTier(req.Tier)); err != nil {
		switch {
		case errors.Is(err, ErrInvalidTier):
			http.Error(w, `{"error":"invalid tier"}`, http.StatusBadRequest)
		case errors.Is(err, ErrVendorNotFound):
			http.Error(w, `{"error":"vendor not found"}`, http.StatusNotFound)
		default:
			h.log.Error("change tier failed", "error", err)
			http.Error(w, `{"error":"change tier failed"}`, http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func vendorToResponse(v *models.Vendor) VendorResponse {
	return VendorResponse{
		ID:           v.ID.String(),
		BusinessName: v.BusinessName,
		Category:     v.Category,
		Tier:         string(v.Tier),
		Status:       v.Status,
	}
}
