package events

import (
	"context"

	"github.com/stocktrail/stocktrail-backend/pkg/logger"
	"github.com/stocktrail/stocktrail-backend/pkg/messaging"
)

// LedgerEventPublisher publishes ledger domain events to RabbitMQ.
// A nil publisher is a no-op so the service can run without messaging.
type LedgerEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewLedgerEventPublisher creates a publisher on the ledger events exchange.
func NewLedgerEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*LedgerEventPublisher, error) {
	pub, err := messaging.NewPublisher(rmq, messaging.ExchangeLedgerEvents, "ledger-service", log)
	if err != nil {
		return nil, err
	}

	return &LedgerEventPublisher{
		publisher: pub,
		logger:    log,
	}, nil
}

// PublishStockMoved publishes a stock moved event.
func (p *LedgerEventPublisher) PublishStockMoved(ctx context.Context, event *messaging.StockMovedEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockMoved, event); err != nil {
		p.logger.Error().Err(err).
			Str("item_id", event.ItemID).
			Str("kind", event.Kind).
			Msg("failed to publish stock moved event")
	}
}

// PublishStockTransferred publishes a stock transferred event.
func (p *LedgerEventPublisher) PublishStockTransferred(ctx context.Context, event *messaging.StockTransferredEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockTransferred, event); err != nil {
		p.logger.Error().Err(err).
			Str("transfer_id", event.TransferID).
			Str("item_id", event.ItemID).
			Msg("failed to publish stock transferred event")
	}
}

// PublishAlertRaised publishes a low or out of stock alert.
func (p *LedgerEventPublisher) PublishAlertRaised(ctx context.Context, event *messaging.AlertRaisedEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertRaised, event); err != nil {
		p.logger.Error().Err(err).
			Str("item_id", event.ItemID).
			Str("stock_status", event.StockStatus).
			Msg("failed to publish alert raised event")
	}
}

// PublishPositionFlagged publishes a reconciliation divergence event.
func (p *LedgerEventPublisher) PublishPositionFlagged(ctx context.Context, event *messaging.PositionFlaggedEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventPositionFlagged, event); err != nil {
		p.logger.Error().Err(err).
			Str("item_id", event.ItemID).
			Msg("failed to publish position flagged event")
	}
}

// PublishPositionRebuilt publishes a position rebuild event.
func (p *LedgerEventPublisher) PublishPositionRebuilt(ctx context.Context, event *messaging.PositionRebuiltEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventPositionRebuilt, event); err != nil {
		p.logger.Error().Err(err).
			Str("item_id", event.ItemID).
			Msg("failed to publish position rebuilt event")
	}
}
