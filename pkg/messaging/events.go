package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Ledger events
	EventStockMoved       = "ledger.stock.moved"
	EventStockTransferred = "ledger.stock.transferred"
	EventAlertRaised      = "ledger.alert.raised"
	EventPositionFlagged  = "ledger.position.flagged"
	EventPositionRebuilt  = "ledger.position.rebuilt"

	// Catalog events (consumed)
	EventItemCreated   = "catalog.item.created"
	EventItemDeleted   = "catalog.item.deleted"
	EventOutletCreated = "catalog.outlet.created"
	EventOutletDeleted = "catalog.outlet.deleted"
)

// Exchange names
const (
	ExchangeLedgerEvents  = "ledger.events"
	ExchangeCatalogEvents = "catalog.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Ledger event payloads

// StockMovedEvent is published after any single-position movement commits.
type StockMovedEvent struct {
	EventID     string `json:"event_id"`
	ItemID      string `json:"item_id"`
	OutletID    string `json:"outlet_id,omitempty"`
	Kind        string `json:"kind"`
	Quantity    int    `json:"quantity"`
	QtyDelta    int    `json:"qty_delta"`
	NewQuantity int    `json:"new_quantity"`
	ActorID     string `json:"actor_id"`
	Reference   string `json:"reference,omitempty"`
}

// StockTransferredEvent is published after both sides of a transfer commit.
type StockTransferredEvent struct {
	TransferID   string `json:"transfer_id"`
	ItemID       string `json:"item_id"`
	FromOutletID string `json:"from_outlet_id,omitempty"`
	ToOutletID   string `json:"to_outlet_id,omitempty"`
	Quantity     int    `json:"quantity"`
	FromQuantity int    `json:"from_quantity"`
	ToQuantity   int    `json:"to_quantity"`
	ActorID      string `json:"actor_id"`
}

// AlertRaisedEvent is published when a movement leaves a position LOW or OUT.
type AlertRaisedEvent struct {
	ItemID       string `json:"item_id"`
	OutletID     string `json:"outlet_id,omitempty"`
	StockStatus  string `json:"stock_status"`
	Quantity     int    `json:"quantity"`
	MinimumLevel int    `json:"minimum_level"`
}

// PositionFlaggedEvent is published when reconciliation finds a position
// whose cache diverges from its event history.
type PositionFlaggedEvent struct {
	ItemID    string `json:"item_id"`
	OutletID  string `json:"outlet_id,omitempty"`
	Cached    int    `json:"cached"`
	Projected int    `json:"projected"`
}

// PositionRebuiltEvent is published after a flagged position is rebuilt from replay.
type PositionRebuiltEvent struct {
	ItemID   string `json:"item_id"`
	OutletID string `json:"outlet_id,omitempty"`
	Quantity int    `json:"quantity"`
}

// Catalog event payloads (produced by the catalog service)

// ItemCreatedEvent announces a new catalog item.
type ItemCreatedEvent struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
}

// ItemDeletedEvent announces a catalog item removal.
type ItemDeletedEvent struct {
	ItemID string `json:"item_id"`
}

// OutletCreatedEvent announces a new outlet.
type OutletCreatedEvent struct {
	OutletID string `json:"outlet_id"`
	Name     string `json:"name"`
}

// OutletDeletedEvent announces an outlet removal.
type OutletDeletedEvent struct {
	OutletID string `json:"outlet_id"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
