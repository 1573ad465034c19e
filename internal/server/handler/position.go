package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kterrell/tradegate/internal/domain"
	"github.com/kterrell/tradegate/internal/service"
)

// PositionService defines the methods the position handler requires from the
// service layer.
type PositionService interface {
	List(ctx context.Context, opts domain.ListOpts) ([]service.PositionView, error)
	Get(ctx context.Context, id string) (service.PositionView, error)
	Close(ctx context.Context, positionID string) (domain.Order, error)
	Sync(ctx context.Context) ([]domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and
// logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

type listPositionsResponse struct {
	Positions []service.PositionView `json:"positions"`
}

// ListPositions syncs from the broker and returns all known positions with
// their derived net exposure. Rows stay listed after closing with exposure 0.
// GET /api/v1/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	views, err := h.positions.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	if views == nil {
		views = []service.PositionView{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: views})
}

// GetPosition returns a single position by id, including net exposure.
// GET /api/v1/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	view, err := h.positions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ClosePosition neutralises a position's remaining exposure by submitting an
// opposite-side market order. Returns the closing order. A position that is
// already flat yields 409; a concurrent close of the same position yields
// 409 as well.
// DELETE /api/v1/positions/{id}
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	order, err := h.positions.Close(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"position_id":   id,
		"closing_order": order,
	})
}

// SyncPositions forces a reconciliation of local position state against the
// broker.
// POST /api/v1/positions/sync
func (h *PositionHandler) SyncPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.Sync(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"synced": len(positions),
	})
}
