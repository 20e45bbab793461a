// Package alerting classifies stock positions at read time. Statuses are
// never persisted; every query re-evaluates against the current instant
// and the configured thresholds.
package alerting

import (
	"time"

	"github.com/stocktrail/stocktrail-backend/internal/ledger/repository"
)

// StockStatus classifies a position's quantity against its minimum level.
type StockStatus string

const (
	StockOK  StockStatus = "OK"
	StockLow StockStatus = "LOW"
	StockOut StockStatus = "OUT"
)

// ExpiryStatus classifies a position's batch expiry against a reference time.
type ExpiryStatus string

const (
	ExpiryNone     ExpiryStatus = ""
	ExpiryFresh    ExpiryStatus = "FRESH"
	ExpiryExpiring ExpiryStatus = "EXPIRING"
	ExpiryExpired  ExpiryStatus = "EXPIRED"
)

// Thresholds holds the configurable classification policy.
type Thresholds struct {
	// DefaultMinLevel is the low-stock floor for positions without a
	// per-position minimum level.
	DefaultMinLevel int
	// ExpiryWindowDays is how far ahead a batch counts as EXPIRING.
	ExpiryWindowDays int
}

// Evaluation is the read-time classification of one position.
type Evaluation struct {
	StockStatus  StockStatus  `json:"stock_status"`
	ExpiryStatus ExpiryStatus `json:"expiry_status,omitempty"`
	MinimumLevel int          `json:"minimum_level"`
}

// MinLevelFor resolves the effective minimum level for a position.
func (t Thresholds) MinLevelFor(pos *repository.StockPosition) int {
	if pos.MinimumLevel != nil {
		return *pos.MinimumLevel
	}
	return t.DefaultMinLevel
}

// StockStatusOf classifies a quantity: OUT at zero, LOW below the minimum
// level, OK otherwise.
func (t Thresholds) StockStatusOf(quantity int, minLevel int) StockStatus {
	switch {
	case quantity == 0:
		return StockOut
	case quantity < minLevel:
		return StockLow
	default:
		return StockOK
	}
}

// ExpiryStatusOf classifies an expiry date against now. A nil expiry has
// no status.
func (t Thresholds) ExpiryStatusOf(expiry *time.Time, now time.Time) ExpiryStatus {
	if expiry == nil {
		return ExpiryNone
	}

	switch {
	case expiry.Before(now):
		return ExpiryExpired
	case !expiry.After(now.AddDate(0, 0, t.ExpiryWindowDays)):
		return ExpiryExpiring
	default:
		return ExpiryFresh
	}
}

// Evaluate classifies a position snapshot at the given instant.
func (t Thresholds) Evaluate(pos *repository.StockPosition, now time.Time) Evaluation {
	minLevel := t.MinLevelFor(pos)
	return Evaluation{
		StockStatus:  t.StockStatusOf(pos.Quantity, minLevel),
		ExpiryStatus: t.ExpiryStatusOf(pos.ExpiryDate, now),
		MinimumLevel: minLevel,
	}
}
