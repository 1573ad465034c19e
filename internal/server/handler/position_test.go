package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kterrell/tradegate/internal/domain"
	"github.com/kterrell/tradegate/internal/service"
)

type fakePositionService struct {
	listFn  func(ctx context.Context, opts domain.ListOpts) ([]service.PositionView, error)
	getFn   func(ctx context.Context, id string) (service.PositionView, error)
	closeFn func(ctx context.Context, positionID string) (domain.Order, error)
	syncFn  func(ctx context.Context) ([]domain.Position, error)
}

func (f *fakePositionService) List(ctx context.Context, opts domain.ListOpts) ([]service.PositionView, error) {
	return f.listFn(ctx, opts)
}

func (f *fakePositionService) Get(ctx context.Context, id string) (service.PositionView, error) {
	return f.getFn(ctx, id)
}

func (f *fakePositionService) Close(ctx context.Context, positionID string) (domain.Order, error) {
	return f.closeFn(ctx, positionID)
}

func (f *fakePositionService) Sync(ctx context.Context) ([]domain.Position, error) {
	return f.syncFn(ctx)
}

func newPositionMux(svc PositionService) *http.ServeMux {
	h := NewPositionHandler(svc, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/positions", h.ListPositions)
	mux.HandleFunc("GET /api/v1/positions/{id}", h.GetPosition)
	mux.HandleFunc("DELETE /api/v1/positions/{id}", h.ClosePosition)
	mux.HandleFunc("POST /api/v1/positions/sync", h.SyncPositions)
	return mux
}

func TestClosePositionReturnsClosingOrder(t *testing.T) {
	svc := &fakePositionService{
		closeFn: func(_ context.Context, positionID string) (domain.Order, error) {
			require.Equal(t, "pos-1", positionID)
			return domain.Order{
				ID:               "ord-9",
				Status:           domain.StatusFilled,
				LinkedPositionID: positionID,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/positions/pos-1", nil)
	rec := httptest.NewRecorder()
	newPositionMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		PositionID   string       `json:"position_id"`
		ClosingOrder domain.Order `json:"closing_order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pos-1", resp.PositionID)
	assert.Equal(t, "ord-9", resp.ClosingOrder.ID)
	assert.Equal(t, "pos-1", resp.ClosingOrder.LinkedPositionID)
}

func TestClosePositionAlreadyClosedIsConflict(t *testing.T) {
	svc := &fakePositionService{
		closeFn: func(_ context.Context, _ string) (domain.Order, error) {
			return domain.Order{}, domain.ErrAlreadyClosed
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/positions/pos-1", nil)
	rec := httptest.NewRecorder()
	newPositionMux(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already closed")
}

func TestClosePositionLockHeldIsConflict(t *testing.T) {
	svc := &fakePositionService{
		closeFn: func(_ context.Context, _ string) (domain.Order, error) {
			return domain.Order{}, domain.ErrLockHeld
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/positions/pos-1", nil)
	rec := httptest.NewRecorder()
	newPositionMux(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "in progress")
}

func TestListPositionsIncludesNetExposure(t *testing.T) {
	svc := &fakePositionService{
		listFn: func(_ context.Context, _ domain.ListOpts) ([]service.PositionView, error) {
			return []service.PositionView{
				{
					Position:    domain.Position{ID: "pos-1", Symbol: "BTCUSD", Quantity: 0.01},
					NetExposure: 0.01,
				},
				{
					Position:    domain.Position{ID: "pos-2", Symbol: "ETHUSD", Quantity: 1},
					NetExposure: 0,
				},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
	rec := httptest.NewRecorder()
	newPositionMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Positions []service.PositionView `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 2)
	assert.Equal(t, 0.01, resp.Positions[0].NetExposure)
	// A flat position stays listed with zero exposure.
	assert.Zero(t, resp.Positions[1].NetExposure)
}

func TestSyncPositionsReportsCount(t *testing.T) {
	svc := &fakePositionService{
		syncFn: func(_ context.Context) ([]domain.Position, error) {
			return []domain.Position{{ID: "pos-1"}, {ID: "pos-2"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/positions/sync", nil)
	rec := httptest.NewRecorder()
	newPositionMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"synced":2`)
}
