package consumers

import (
	"context"
	"fmt"

	"github.com/stocktrail/stocktrail-backend/internal/ledger/repository"
	"github.com/stocktrail/stocktrail-backend/pkg/logger"
	"github.com/stocktrail/stocktrail-backend/pkg/messaging"
)

const catalogQueueName = "ledger-service.catalog-events"

// CatalogEventConsumer keeps the local item and outlet reference caches in
// sync with catalog events. The ledger only stores ids and names; all
// other catalog metadata stays with the catalog service.
type CatalogEventConsumer struct {
	consumer *messaging.Consumer
	refs     *repository.ReferenceRepository
	logger   *logger.Logger
}

// NewCatalogEventConsumer creates and wires the catalog event consumer.
func NewCatalogEventConsumer(rmq *messaging.RabbitMQ, refs *repository.ReferenceRepository, log *logger.Logger) (*CatalogEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, catalogQueueName, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog consumer: %w", err)
	}

	if err := consumer.Subscribe(messaging.ExchangeCatalogEvents, "catalog.#"); err != nil {
		return nil, fmt.Errorf("failed to subscribe to catalog events: %w", err)
	}

	c := &CatalogEventConsumer{
		consumer: consumer,
		refs:     refs,
		logger:   log.WithComponent("catalog_consumer"),
	}

	consumer.RegisterHandler(messaging.EventItemCreated, c.handleItemCreated)
	consumer.RegisterHandler(messaging.EventItemDeleted, c.handleItemDeleted)
	consumer.RegisterHandler(messaging.EventOutletCreated, c.handleOutletCreated)
	consumer.RegisterHandler(messaging.EventOutletDeleted, c.handleOutletDeleted)

	return c, nil
}

// Start begins consuming catalog events.
func (c *CatalogEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *CatalogEventConsumer) handleItemCreated(ctx context.Context, event *messaging.Event) error {
	var payload messaging.ItemCreatedEvent
	if err := event.UnmarshalData(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal item created event: %w", err)
	}

	if err := c.refs.SetItem(ctx, &repository.ItemRef{ItemID: payload.ItemID, Name: payload.Name}); err != nil {
		return fmt.Errorf("failed to cache item reference: %w", err)
	}

	c.logger.Info().Str("item_id", payload.ItemID).Msg("item reference cached")
	return nil
}

func (c *CatalogEventConsumer) handleItemDeleted(ctx context.Context, event *messaging.Event) error {
	var payload messaging.ItemDeletedEvent
	if err := event.UnmarshalData(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal item deleted event: %w", err)
	}

	if err := c.refs.DeleteItem(ctx, payload.ItemID); err != nil {
		return fmt.Errorf("failed to remove item reference: %w", err)
	}

	c.logger.Info().Str("item_id", payload.ItemID).Msg("item reference removed")
	return nil
}

func (c *CatalogEventConsumer) handleOutletCreated(ctx context.Context, event *messaging.Event) error {
	var payload messaging.OutletCreatedEvent
	if err := event.UnmarshalData(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal outlet created event: %w", err)
	}

	if err := c.refs.SetOutlet(ctx, &repository.OutletRef{OutletID: payload.OutletID, Name: payload.Name}); err != nil {
		return fmt.Errorf("failed to cache outlet reference: %w", err)
	}

	c.logger.Info().Str("outlet_id", payload.OutletID).Msg("outlet reference cached")
	return nil
}

func (c *CatalogEventConsumer) handleOutletDeleted(ctx context.Context, event *messaging.Event) error {
	var payload messaging.OutletDeletedEvent
	if err := event.UnmarshalData(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal outlet deleted event: %w", err)
	}

	if err := c.refs.DeleteOutlet(ctx, payload.OutletID); err != nil {
		return fmt.Errorf("failed to remove outlet reference: %w", err)
	}

	c.logger.Info().Str("outlet_id", payload.OutletID).Msg("outlet reference removed")
	return nil
}
