package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stocktrail/stocktrail-backend/pkg/database"
	"github.com/stocktrail/stocktrail-backend/pkg/errors"
)

// StockPosition is the cached current quantity for one (item, outlet) pair.
// The event store is authoritative; a position is a materialization that
// must stay equal to the sum of its events and is rebuildable by replay.
// Nil OutletID denotes the central warehouse.
type StockPosition struct {
	ID       string  `db:"id" json:"id"`
	ItemID   string  `db:"item_id" json:"item_id"`
	OutletID *string `db:"outlet_id" json:"outlet_id,omitempty"`
	Quantity int     `db:"quantity" json:"quantity"`
	// MinimumLevel is the per-position low-stock threshold. Nil falls back
	// to the configured default floor.
	MinimumLevel *int       `db:"minimum_level" json:"minimum_level,omitempty"`
	BatchNumber  *string    `db:"batch_number" json:"batch_number,omitempty"`
	ExpiryDate   *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	// IntegrityFlagged marks a position whose cache diverged from replay.
	// Flagged positions reject mutations until rebuilt.
	IntegrityFlagged bool      `db:"integrity_flagged" json:"integrity_flagged"`
	LastUpdated      time.Time `db:"last_updated" json:"last_updated"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// OutletKey normalizes the outlet id for comparisons and lock ordering.
// Central warehouse sorts first as the empty string.
func (p *StockPosition) OutletKey() string {
	return OutletKey(p.OutletID)
}

// OutletKey normalizes a nullable outlet id ("" = central warehouse).
func OutletKey(outletID *string) string {
	if outletID == nil {
		return ""
	}
	return *outletID
}

// PositionRepository handles the denormalized stock position cache
type PositionRepository struct {
	db *database.DB
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *database.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

const selectPositionColumns = `
	id, item_id, outlet_id, quantity, minimum_level, batch_number, expiry_date,
	integrity_flagged, last_updated, created_at
`

// EnsureAndLock returns the position row for (item, outlet) locked FOR
// UPDATE within the caller's transaction, creating an empty row first if
// none exists. The lock is held until the transaction ends, so the
// precondition check and the cache update are one atomic step.
func (r *PositionRepository) EnsureAndLock(ctx context.Context, tx *sqlx.Tx, itemID string, outletID *string) (*StockPosition, error) {
	insert := `
		INSERT INTO stock_positions (id, item_id, outlet_id, quantity)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (item_id, COALESCE(outlet_id, '')) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, insert, uuid.New().String(), itemID, outletID); err != nil {
		return nil, err
	}

	var pos StockPosition
	query := `
		SELECT ` + selectPositionColumns + `
		FROM stock_positions
		WHERE item_id = $1 AND COALESCE(outlet_id, '') = COALESCE($2, '')
		FOR UPDATE
	`
	if err := tx.QueryRowxContext(ctx, query, itemID, outletID).StructScan(&pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

// Update writes the cached quantity and summary fields within the caller's
// transaction. The row must already be locked by EnsureAndLock.
func (r *PositionRepository) Update(ctx context.Context, tx *sqlx.Tx, pos *StockPosition) error {
	query := `
		UPDATE stock_positions SET
			quantity = $2, minimum_level = $3, batch_number = $4, expiry_date = $5,
			integrity_flagged = $6, last_updated = NOW()
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query,
		pos.ID, pos.Quantity, pos.MinimumLevel, pos.BatchNumber, pos.ExpiryDate,
		pos.IntegrityFlagged,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("position")
	}
	return nil
}

// Get gets a position without locking. Returns NotFound if the pair has
// never moved.
func (r *PositionRepository) Get(ctx context.Context, itemID string, outletID *string) (*StockPosition, error) {
	var pos StockPosition
	query := `
		SELECT ` + selectPositionColumns + `
		FROM stock_positions
		WHERE item_id = $1 AND COALESCE(outlet_id, '') = COALESCE($2, '')
	`
	if err := r.db.GetContext(ctx, &pos, query, itemID, outletID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("position")
		}
		return nil, err
	}
	return &pos, nil
}

// ListAll lists every position, ordered for stable output.
func (r *PositionRepository) ListAll(ctx context.Context) ([]*StockPosition, error) {
	var positions []*StockPosition
	query := `
		SELECT ` + selectPositionColumns + `
		FROM stock_positions
		ORDER BY item_id, COALESCE(outlet_id, '')
	`
	if err := r.db.SelectContext(ctx, &positions, query); err != nil {
		return nil, err
	}
	return positions, nil
}

// ListLowStock lists positions at or below their low-stock threshold.
// Positions without a per-position minimum level fall back to defaultMin.
func (r *PositionRepository) ListLowStock(ctx context.Context, defaultMin int) ([]*StockPosition, error) {
	var positions []*StockPosition
	query := `
		SELECT ` + selectPositionColumns + `
		FROM stock_positions
		WHERE quantity < COALESCE(minimum_level, $1) OR quantity = 0
		ORDER BY quantity, item_id
	`
	if err := r.db.SelectContext(ctx, &positions, query, defaultMin); err != nil {
		return nil, err
	}
	return positions, nil
}

// ListExpiring lists positions whose batch summary expires within the
// window, expired ones included.
func (r *PositionRepository) ListExpiring(ctx context.Context, withinDays int) ([]*StockPosition, error) {
	var positions []*StockPosition
	query := `
		SELECT ` + selectPositionColumns + `
		FROM stock_positions
		WHERE expiry_date IS NOT NULL AND quantity > 0
		AND expiry_date <= NOW() + INTERVAL '1 day' * $1
		ORDER BY expiry_date
	`
	if err := r.db.SelectContext(ctx, &positions, query, withinDays); err != nil {
		return nil, err
	}
	return positions, nil
}

// SetIntegrityFlag marks or clears the reconciliation flag on a position.
func (r *PositionRepository) SetIntegrityFlag(ctx context.Context, itemID string, outletID *string, flagged bool) error {
	query := `
		UPDATE stock_positions SET integrity_flagged = $3, last_updated = NOW()
		WHERE item_id = $1 AND COALESCE(outlet_id, '') = COALESCE($2, '')
	`
	result, err := r.db.ExecContext(ctx, query, itemID, outletID, flagged)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("position")
	}
	return nil
}
