package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/service"
	"github.com/stocktrail/stocktrail-backend/pkg/errors"
	"github.com/stocktrail/stocktrail-backend/pkg/httputil"
	"github.com/stocktrail/stocktrail-backend/pkg/logger"
)

// Handler handles HTTP requests for the stock ledger
type Handler struct {
	service    *service.LedgerService
	reconciler *service.Reconciler
	logger     *logger.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(svc *service.LedgerService, reconciler *service.Reconciler, log *logger.Logger) *Handler {
	return &Handler{
		service:    svc,
		reconciler: reconciler,
		logger:     log,
	}
}

// RegisterRoutes registers the ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/receive", h.Receive)
	r.Post("/issue", h.Issue)
	r.Post("/return", h.Return)
	r.Post("/adjust", h.Adjust)
	r.Post("/transfer", h.Transfer)

	r.Get("/history/{itemID}", h.History)
	r.Get("/positions", h.ListPositions)
	r.Get("/positions/{itemID}", h.GetPosition)
	r.Get("/low-stock", h.LowStock)
	r.Get("/expiring", h.Expiring)

	r.Post("/admin/reconcile", h.Reconcile)
	r.Post("/admin/rebuild", h.Rebuild)
}

type receiveRequest struct {
	ItemID          string  `json:"item_id" validate:"required"`
	OutletID        *string `json:"outlet_id"`
	Quantity        int     `json:"quantity"`
	BatchNumber     *string `json:"batch_number"`
	ManufactureDate *string `json:"manufacture_date"`
	ExpiryDate      *string `json:"expiry_date"`
	Reference       *string `json:"reference"`
	MinimumLevel    *int    `json:"minimum_level" validate:"omitempty,gte=0"`
}

type issueRequest struct {
	ItemID    string  `json:"item_id" validate:"required"`
	OutletID  *string `json:"outlet_id"`
	Quantity  int     `json:"quantity"`
	Reference *string `json:"reference"`
}

type returnRequest struct {
	ItemID   string  `json:"item_id" validate:"required"`
	OutletID *string `json:"outlet_id"`
	Quantity int     `json:"quantity"`
	Reason   string  `json:"reason" validate:"required"`
}

type adjustRequest struct {
	ItemID      string  `json:"item_id" validate:"required"`
	OutletID    *string `json:"outlet_id"`
	NewQuantity int     `json:"new_quantity" validate:"gte=0"`
	Remarks     *string `json:"remarks"`
}

type transferRequest struct {
	ItemID       string  `json:"item_id" validate:"required"`
	FromOutletID *string `json:"from_outlet_id"`
	ToOutletID   *string `json:"to_outlet_id"`
	Quantity     int     `json:"quantity"`
	Reference    *string `json:"reference"`
}

// parseDate accepts a bare date or a full RFC3339 timestamp.
func parseDate(value *string, field string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}

	if t, err := time.Parse("2006-01-02", *value); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, *value); err == nil {
		return &t, nil
	}
	return nil, errors.BadRequest(field + " must be a date (2006-01-02) or RFC3339 timestamp")
}

// Receive handles POST /receive
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	mfgDate, err := parseDate(req.ManufactureDate, "manufacture_date")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	expiryDate, err := parseDate(req.ExpiryDate, "expiry_date")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Receive(r.Context(), service.ReceiveInput{
		ItemID:          req.ItemID,
		OutletID:        req.OutletID,
		Quantity:        req.Quantity,
		BatchNumber:     req.BatchNumber,
		ManufactureDate: mfgDate,
		ExpiryDate:      expiryDate,
		Reference:       req.Reference,
		MinimumLevel:    req.MinimumLevel,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// Issue handles POST /issue
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Issue(r.Context(), service.IssueInput{
		ItemID:    req.ItemID,
		OutletID:  req.OutletID,
		Quantity:  req.Quantity,
		Reference: req.Reference,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// Return handles POST /return
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Return(r.Context(), service.ReturnInput{
		ItemID:   req.ItemID,
		OutletID: req.OutletID,
		Quantity: req.Quantity,
		Reason:   req.Reason,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// Adjust handles POST /adjust
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Adjust(r.Context(), service.AdjustInput{
		ItemID:      req.ItemID,
		OutletID:    req.OutletID,
		NewQuantity: req.NewQuantity,
		Remarks:     req.Remarks,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Transfer handles POST /transfer
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Transfer(r.Context(), service.TransferInput{
		ItemID:       req.ItemID,
		FromOutletID: req.FromOutletID,
		ToOutletID:   req.ToOutletID,
		Quantity:     req.Quantity,
		Reference:    req.Reference,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}
