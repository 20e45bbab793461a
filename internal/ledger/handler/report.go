package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stocktrail/stocktrail-backend/pkg/errors"
	"github.com/stocktrail/stocktrail-backend/pkg/httputil"
)

// History handles GET /history/{itemID}
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	events, err := h.service.History(r.Context(), itemID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, events)
}

// outletParam reads the optional outlet_id query parameter. Absent means
// the central warehouse.
func outletParam(r *http.Request) *string {
	if v := r.URL.Query().Get("outlet_id"); v != "" {
		return &v
	}
	return nil
}

// ListPositions handles GET /positions
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.ListPositions(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, positions)
}

// GetPosition handles GET /positions/{itemID}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	position, err := h.service.GetPosition(r.Context(), itemID, outletParam(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, position)
}

// LowStock handles GET /low-stock
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.LowStock(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, positions)
}

// Expiring handles GET /expiring?days=N
func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			httputil.Error(w, errors.BadRequest("days must be a non-negative integer"))
			return
		}
		days = parsed
	}

	positions, err := h.service.Expiring(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, positions)
}

// Reconcile handles POST /admin/reconcile. Runs a full consistency scan
// and reports how many positions were flagged.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	flagged, err := h.reconciler.ScanAll(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int{"flagged": flagged})
}

type rebuildRequest struct {
	ItemID   string  `json:"item_id" validate:"required"`
	OutletID *string `json:"outlet_id"`
}

// Rebuild handles POST /admin/rebuild. Replays a position's event history
// into the cache and clears its integrity flag.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	position, err := h.reconciler.RebuildPosition(r.Context(), req.ItemID, req.OutletID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, position)
}
