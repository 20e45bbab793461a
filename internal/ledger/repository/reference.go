package repository

import (
	"context"
	"time"

	"github.com/stocktrail/stocktrail-backend/pkg/database"
)

// ItemRef is a locally cached catalog item identifier, synced from catalog
// events. The ledger never owns catalog metadata; it only needs to know
// which ids exist.
type ItemRef struct {
	ItemID    string    `db:"item_id" json:"item_id"`
	Name      string    `db:"name" json:"name"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// OutletRef is a locally cached outlet identifier, synced from catalog events.
type OutletRef struct {
	OutletID  string    `db:"outlet_id" json:"outlet_id"`
	Name      string    `db:"name" json:"name"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ReferenceRepository handles the item/outlet reference caches
type ReferenceRepository struct {
	db *database.DB
}

// NewReferenceRepository creates a new reference repository
func NewReferenceRepository(db *database.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// SetItem creates or updates a cached item reference
func (r *ReferenceRepository) SetItem(ctx context.Context, ref *ItemRef) error {
	query := `
		INSERT INTO item_refs (item_id, name, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (item_id)
		DO UPDATE SET name = $2, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, ref.ItemID, ref.Name)
	return err
}

// DeleteItem removes a cached item reference
func (r *ReferenceRepository) DeleteItem(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM item_refs WHERE item_id = $1`, itemID)
	return err
}

// ItemExists reports whether an item id is known
func (r *ReferenceRepository) ItemExists(ctx context.Context, itemID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM item_refs WHERE item_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, itemID); err != nil {
		return false, err
	}
	return exists, nil
}

// SetOutlet creates or updates a cached outlet reference
func (r *ReferenceRepository) SetOutlet(ctx context.Context, ref *OutletRef) error {
	query := `
		INSERT INTO outlet_refs (outlet_id, name, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (outlet_id)
		DO UPDATE SET name = $2, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, ref.OutletID, ref.Name)
	return err
}

// DeleteOutlet removes a cached outlet reference
func (r *ReferenceRepository) DeleteOutlet(ctx context.Context, outletID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM outlet_refs WHERE outlet_id = $1`, outletID)
	return err
}

// OutletExists reports whether an outlet id is known
func (r *ReferenceRepository) OutletExists(ctx context.Context, outletID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM outlet_refs WHERE outlet_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, outletID); err != nil {
		return false, err
	}
	return exists, nil
}
