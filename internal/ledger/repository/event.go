package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stocktrail/stocktrail-backend/pkg/database"
)

// MovementKind enumerates the stock movement event kinds.
type MovementKind string

const (
	KindReceive     MovementKind = "RECEIVE"
	KindIssue       MovementKind = "ISSUE"
	KindReturn      MovementKind = "RETURN"
	KindAdjust      MovementKind = "ADJUST"
	KindTransferOut MovementKind = "TRANSFER_OUT"
	KindTransferIn  MovementKind = "TRANSFER_IN"
)

// MovementEvent is one immutable record of a stock-quantity-changing
// occurrence. Rows are append-only: corrections are made with new
// compensating events, never by updating or deleting existing rows.
type MovementEvent struct {
	ID       string       `db:"id" json:"id"`
	ItemID   string       `db:"item_id" json:"item_id"`
	Kind     MovementKind `db:"kind" json:"kind"`
	Quantity int          `db:"quantity" json:"quantity"`
	// QtyDelta is the signed contribution of this event to its position's
	// quantity. For ADJUST it carries the signed correction; for every
	// other kind its sign is fixed by the kind.
	QtyDelta        int        `db:"qty_delta" json:"qty_delta"`
	SourceOutletID  *string    `db:"source_outlet_id" json:"source_outlet_id,omitempty"`
	DestOutletID    *string    `db:"dest_outlet_id" json:"dest_outlet_id,omitempty"`
	TransferID      *string    `db:"transfer_id" json:"transfer_id,omitempty"`
	BatchNumber     *string    `db:"batch_number" json:"batch_number,omitempty"`
	ManufactureDate *time.Time `db:"manufacture_date" json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	Reference       *string    `db:"reference" json:"reference,omitempty"`
	Remarks         *string    `db:"remarks" json:"remarks,omitempty"`
	ActorID         string     `db:"actor_id" json:"actor_id"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// PositionOutletID returns the outlet whose position this event moves.
// RECEIVE and TRANSFER_IN credit the destination; every other kind debits
// or corrects the source. Nil means the central warehouse.
func (e *MovementEvent) PositionOutletID() *string {
	switch e.Kind {
	case KindReceive, KindTransferIn:
		return e.DestOutletID
	default:
		return e.SourceOutletID
	}
}

// EventRepository handles the append-only stock event store
type EventRepository struct {
	db *database.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

const insertEventQuery = `
	INSERT INTO stock_events (
		id, item_id, kind, quantity, qty_delta, source_outlet_id, dest_outlet_id,
		transfer_id, batch_number, manufacture_date, expiry_date, reference, remarks, actor_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING created_at
`

// Append inserts a movement event within the caller's transaction.
func (r *EventRepository) Append(ctx context.Context, tx *sqlx.Tx, event *MovementEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	return tx.QueryRowxContext(ctx, insertEventQuery,
		event.ID, event.ItemID, event.Kind, event.Quantity, event.QtyDelta,
		event.SourceOutletID, event.DestOutletID, event.TransferID,
		event.BatchNumber, event.ManufactureDate, event.ExpiryDate,
		event.Reference, event.Remarks, event.ActorID,
	).Scan(&event.CreatedAt)
}

// AppendPair inserts both legs of a transfer within the caller's
// transaction. The caller sets a shared TransferID on both events; the pair
// commits together or not at all.
func (r *EventRepository) AppendPair(ctx context.Context, tx *sqlx.Tx, out, in *MovementEvent) error {
	if err := r.Append(ctx, tx, out); err != nil {
		return err
	}
	return r.Append(ctx, tx, in)
}

// HistoryByItem lists all events for an item, most recent first.
func (r *EventRepository) HistoryByItem(ctx context.Context, itemID string) ([]*MovementEvent, error) {
	var events []*MovementEvent
	query := `
		SELECT id, item_id, kind, quantity, qty_delta, source_outlet_id, dest_outlet_id,
		       transfer_id, batch_number, manufacture_date, expiry_date, reference, remarks,
		       actor_id, created_at
		FROM stock_events
		WHERE item_id = $1
		ORDER BY created_at DESC, id DESC
	`
	if err := r.db.SelectContext(ctx, &events, query, itemID); err != nil {
		return nil, err
	}
	return events, nil
}

// positionOutletExpr resolves the outlet a row belongs to: RECEIVE and
// TRANSFER_IN move the destination position, everything else the source.
const positionOutletExpr = `COALESCE(CASE WHEN kind IN ('RECEIVE', 'TRANSFER_IN') THEN dest_outlet_id ELSE source_outlet_id END, '')`

// ListForPosition lists the full event history of one (item, outlet)
// position in creation order, for replay. Nil outletID selects central
// warehouse stock.
func (r *EventRepository) ListForPosition(ctx context.Context, itemID string, outletID *string) ([]*MovementEvent, error) {
	var events []*MovementEvent
	query := `
		SELECT id, item_id, kind, quantity, qty_delta, source_outlet_id, dest_outlet_id,
		       transfer_id, batch_number, manufacture_date, expiry_date, reference, remarks,
		       actor_id, created_at
		FROM stock_events
		WHERE item_id = $1 AND ` + positionOutletExpr + ` = COALESCE($2, '')
		ORDER BY created_at, id
	`
	if err := r.db.SelectContext(ctx, &events, query, itemID, outletID); err != nil {
		return nil, err
	}
	return events, nil
}

// SumDeltaForPosition returns the summed signed contribution of all events
// for one position. This is the set-based form of the projector fold.
func (r *EventRepository) SumDeltaForPosition(ctx context.Context, itemID string, outletID *string) (int, error) {
	var sum int
	query := `
		SELECT COALESCE(SUM(qty_delta), 0)
		FROM stock_events
		WHERE item_id = $1 AND ` + positionOutletExpr + ` = COALESCE($2, '')
	`
	if err := r.db.GetContext(ctx, &sum, query, itemID, outletID); err != nil {
		return 0, err
	}
	return sum, nil
}
