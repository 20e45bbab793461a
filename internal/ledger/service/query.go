package service

import (
	"context"
	"time"

	"github.com/stocktrail/stocktrail-backend/internal/ledger/alerting"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/repository"
	"github.com/stocktrail/stocktrail-backend/pkg/errors"
)

// PositionStatus is a position with its read-time classification attached.
type PositionStatus struct {
	*repository.StockPosition
	StockStatus  alerting.StockStatus  `json:"stock_status"`
	ExpiryStatus alerting.ExpiryStatus `json:"expiry_status,omitempty"`
	MinimumLevel int                   `json:"effective_minimum_level"`
}

func (s *LedgerService) classify(positions []*repository.StockPosition) []*PositionStatus {
	now := time.Now().UTC()
	out := make([]*PositionStatus, 0, len(positions))
	for _, pos := range positions {
		eval := s.thresholds.Evaluate(pos, now)
		out = append(out, &PositionStatus{
			StockPosition: pos,
			StockStatus:   eval.StockStatus,
			ExpiryStatus:  eval.ExpiryStatus,
			MinimumLevel:  eval.MinimumLevel,
		})
	}
	return out
}

// History returns the full movement history of an item, most recent first.
func (s *LedgerService) History(ctx context.Context, itemID string) ([]*repository.MovementEvent, error) {
	ok, err := s.refs.ItemExists(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.UnknownReference("item", itemID)
	}

	return s.events.HistoryByItem(ctx, itemID)
}

// ListPositions returns every position with its current classification.
func (s *LedgerService) ListPositions(ctx context.Context) ([]*PositionStatus, error) {
	positions, err := s.positions.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.classify(positions), nil
}

// LowStock returns positions classified LOW or OUT.
func (s *LedgerService) LowStock(ctx context.Context) ([]*PositionStatus, error) {
	positions, err := s.positions.ListLowStock(ctx, s.thresholds.DefaultMinLevel)
	if err != nil {
		return nil, err
	}
	return s.classify(positions), nil
}

// Expiring returns positions whose batch expires within the window,
// expired ones included. A non-positive window falls back to the
// configured default.
func (s *LedgerService) Expiring(ctx context.Context, withinDays int) ([]*PositionStatus, error) {
	if withinDays <= 0 {
		withinDays = s.thresholds.ExpiryWindowDays
	}

	positions, err := s.positions.ListExpiring(ctx, withinDays)
	if err != nil {
		return nil, err
	}
	return s.classify(positions), nil
}

// GetPosition returns one position with its classification.
func (s *LedgerService) GetPosition(ctx context.Context, itemID string, outletID *string) (*PositionStatus, error) {
	pos, err := s.positions.Get(ctx, itemID, outletID)
	if err != nil {
		return nil, err
	}
	return s.classify([]*repository.StockPosition{pos})[0], nil
}
