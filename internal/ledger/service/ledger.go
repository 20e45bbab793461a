package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/alerting"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/events"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/repository"
	"github.com/stocktrail/stocktrail-backend/pkg/actor"
	"github.com/stocktrail/stocktrail-backend/pkg/config"
	"github.com/stocktrail/stocktrail-backend/pkg/database"
	"github.com/stocktrail/stocktrail-backend/pkg/errors"
	"github.com/stocktrail/stocktrail-backend/pkg/logger"
	"github.com/stocktrail/stocktrail-backend/pkg/messaging"
)

// LedgerService applies stock movement commands. Every command is one
// database transaction: lock the position row(s), validate the
// precondition, append the event(s), update the cache. Conflicting
// transactions are retried a bounded number of times before surfacing
// ConcurrencyConflict.
type LedgerService struct {
	db         *database.DB
	events     *repository.EventRepository
	positions  *repository.PositionRepository
	refs       *repository.ReferenceRepository
	publisher  *events.LedgerEventPublisher
	thresholds alerting.Thresholds
	maxRetries int
	logger     *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db *database.DB,
	eventRepo *repository.EventRepository,
	positionRepo *repository.PositionRepository,
	refRepo *repository.ReferenceRepository,
	publisher *events.LedgerEventPublisher,
	cfg *config.LedgerConfig,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		db:        db,
		events:    eventRepo,
		positions: positionRepo,
		refs:      refRepo,
		publisher: publisher,
		thresholds: alerting.Thresholds{
			DefaultMinLevel:  cfg.DefaultMinLevel,
			ExpiryWindowDays: cfg.ExpiryWindowDays,
		},
		maxRetries: cfg.MaxConflictRetries,
		logger:     log,
	}
}

// MovementResult is the outcome of a single-position command.
type MovementResult struct {
	Event      *repository.MovementEvent `json:"event"`
	Position   *repository.StockPosition `json:"position"`
	Evaluation alerting.Evaluation       `json:"evaluation"`
}

// TransferResult is the outcome of a transfer command.
type TransferResult struct {
	TransferID string                    `json:"transfer_id"`
	OutEvent   *repository.MovementEvent `json:"out_event"`
	InEvent    *repository.MovementEvent `json:"in_event"`
	Source     *repository.StockPosition `json:"source"`
	Dest       *repository.StockPosition `json:"dest"`
}

// ReceiveInput carries the fields of a receive command.
type ReceiveInput struct {
	ItemID          string
	OutletID        *string
	Quantity        int
	BatchNumber     *string
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
	Reference       *string
	MinimumLevel    *int
}

// IssueInput carries the fields of an issue command.
type IssueInput struct {
	ItemID    string
	OutletID  *string
	Quantity  int
	Reference *string
}

// ReturnInput carries the fields of a return command. Returns remove
// damaged or expired units from saleable stock, so they decrease the
// position like an issue.
type ReturnInput struct {
	ItemID   string
	OutletID *string
	Quantity int
	Reason   string
}

// AdjustInput carries the fields of an adjust command. NewQuantity is the
// absolute counted quantity; the service derives the signed delta.
type AdjustInput struct {
	ItemID      string
	OutletID    *string
	NewQuantity int
	Remarks     *string
}

// TransferInput carries the fields of a transfer command. Nil outlet ids
// denote the central warehouse.
type TransferInput struct {
	ItemID       string
	FromOutletID *string
	ToOutletID   *string
	Quantity     int
	Reference    *string
}

func actorID(ctx context.Context) string {
	a := actor.FromContext(ctx)
	if a == nil {
		a = actor.SystemActor()
	}
	return a.ID
}

// checkReferences validates that the item and every named outlet exist in
// the local reference cache.
func (s *LedgerService) checkReferences(ctx context.Context, itemID string, outletIDs ...*string) error {
	ok, err := s.refs.ItemExists(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.UnknownReference("item", itemID)
	}

	for _, outletID := range outletIDs {
		if outletID == nil {
			continue
		}
		ok, err := s.refs.OutletExists(ctx, *outletID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.UnknownReference("outlet", *outletID)
		}
	}
	return nil
}

// lockPosition locks the position for writing and rejects flagged ones.
func (s *LedgerService) lockPosition(ctx context.Context, tx *sqlx.Tx, itemID string, outletID *string) (*repository.StockPosition, error) {
	pos, err := s.positions.EnsureAndLock(ctx, tx, itemID, outletID)
	if err != nil {
		return nil, err
	}
	if pos.IntegrityFlagged {
		return nil, errors.PositionFlagged(itemID, repository.OutletKey(outletID))
	}
	return pos, nil
}

// evaluateAndAlert classifies the position after a commit and publishes an
// alert when it is LOW or OUT.
func (s *LedgerService) evaluateAndAlert(ctx context.Context, pos *repository.StockPosition) alerting.Evaluation {
	eval := s.thresholds.Evaluate(pos, time.Now().UTC())
	if eval.StockStatus != alerting.StockOK {
		s.publisher.PublishAlertRaised(ctx, &messaging.AlertRaisedEvent{
			ItemID:       pos.ItemID,
			OutletID:     pos.OutletKey(),
			StockStatus:  string(eval.StockStatus),
			Quantity:     pos.Quantity,
			MinimumLevel: eval.MinimumLevel,
		})
	}
	return eval
}

// Receive records incoming stock. No precondition on existing stock.
func (s *LedgerService) Receive(ctx context.Context, input ReceiveInput) (*MovementResult, error) {
	if input.Quantity <= 0 {
		return nil, errors.InvalidQuantity(input.Quantity)
	}
	if err := s.checkReferences(ctx, input.ItemID, input.OutletID); err != nil {
		return nil, err
	}

	event := &repository.MovementEvent{
		ItemID:          input.ItemID,
		Kind:            repository.KindReceive,
		Quantity:        input.Quantity,
		QtyDelta:        input.Quantity,
		DestOutletID:    input.OutletID,
		BatchNumber:     input.BatchNumber,
		ManufactureDate: input.ManufactureDate,
		ExpiryDate:      input.ExpiryDate,
		Reference:       input.Reference,
		ActorID:         actorID(ctx),
	}

	var pos *repository.StockPosition
	err := s.db.TransactionWithRetry(ctx, s.maxRetries, func(tx *sqlx.Tx) error {
		var err error
		pos, err = s.lockPosition(ctx, tx, input.ItemID, input.OutletID)
		if err != nil {
			return err
		}

		if err := s.events.Append(ctx, tx, event); err != nil {
			return err
		}

		pos.Quantity += input.Quantity
		if input.BatchNumber != nil {
			pos.BatchNumber = input.BatchNumber
		}
		if input.ExpiryDate != nil {
			pos.ExpiryDate = input.ExpiryDate
		}
		if input.MinimumLevel != nil {
			pos.MinimumLevel = input.MinimumLevel
		}
		return s.positions.Update(ctx, tx, pos)
	})
	if err != nil {
		return nil, err
	}

	s.logMovement(event, pos)
	s.publishMoved(ctx, event, pos)
	eval := s.evaluateAndAlert(ctx, pos)

	return &MovementResult{Event: event, Position: pos, Evaluation: eval}, nil
}

// Issue records stock leaving a position. Fails with InsufficientStock
// when the requested quantity exceeds the current one.
func (s *LedgerService) Issue(ctx context.Context, input IssueInput) (*MovementResult, error) {
	if input.Quantity <= 0 {
		return nil, errors.InvalidQuantity(input.Quantity)
	}
	if err := s.checkReferences(ctx, input.ItemID, input.OutletID); err != nil {
		return nil, err
	}

	event := &repository.MovementEvent{
		ItemID:         input.ItemID,
		Kind:           repository.KindIssue,
		Quantity:       input.Quantity,
		QtyDelta:       -input.Quantity,
		SourceOutletID: input.OutletID,
		Reference:      input.Reference,
		ActorID:        actorID(ctx),
	}

	pos, err := s.applyDecrease(ctx, event, input.ItemID, input.OutletID, input.Quantity)
	if err != nil {
		return nil, err
	}

	s.logMovement(event, pos)
	s.publishMoved(ctx, event, pos)
	eval := s.evaluateAndAlert(ctx, pos)

	return &MovementResult{Event: event, Position: pos, Evaluation: eval}, nil
}

// Return removes damaged or expired units from saleable stock. Same
// precondition as Issue.
func (s *LedgerService) Return(ctx context.Context, input ReturnInput) (*MovementResult, error) {
	if input.Quantity <= 0 {
		return nil, errors.InvalidQuantity(input.Quantity)
	}
	if err := s.checkReferences(ctx, input.ItemID, input.OutletID); err != nil {
		return nil, err
	}

	reason := input.Reason
	event := &repository.MovementEvent{
		ItemID:         input.ItemID,
		Kind:           repository.KindReturn,
		Quantity:       input.Quantity,
		QtyDelta:       -input.Quantity,
		SourceOutletID: input.OutletID,
		Remarks:        &reason,
		ActorID:        actorID(ctx),
	}

	pos, err := s.applyDecrease(ctx, event, input.ItemID, input.OutletID, input.Quantity)
	if err != nil {
		return nil, err
	}

	s.logMovement(event, pos)
	s.publishMoved(ctx, event, pos)
	eval := s.evaluateAndAlert(ctx, pos)

	return &MovementResult{Event: event, Position: pos, Evaluation: eval}, nil
}

// applyDecrease runs the shared transaction of Issue and Return.
func (s *LedgerService) applyDecrease(ctx context.Context, event *repository.MovementEvent, itemID string, outletID *string, quantity int) (*repository.StockPosition, error) {
	var pos *repository.StockPosition
	err := s.db.TransactionWithRetry(ctx, s.maxRetries, func(tx *sqlx.Tx) error {
		var err error
		pos, err = s.lockPosition(ctx, tx, itemID, outletID)
		if err != nil {
			return err
		}

		if pos.Quantity < quantity {
			return errors.InsufficientStock(pos.Quantity, quantity)
		}

		if err := s.events.Append(ctx, tx, event); err != nil {
			return err
		}

		pos.Quantity -= quantity
		return s.positions.Update(ctx, tx, pos)
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// Adjust reconciles a position to a counted quantity. The appended event
// carries the signed delta, so history stays a pure event log. Adjusting
// to the current quantity is a no-op and appends nothing.
func (s *LedgerService) Adjust(ctx context.Context, input AdjustInput) (*MovementResult, error) {
	if input.NewQuantity < 0 {
		return nil, errors.InvalidQuantity(input.NewQuantity)
	}
	if err := s.checkReferences(ctx, input.ItemID, input.OutletID); err != nil {
		return nil, err
	}

	var (
		pos   *repository.StockPosition
		event *repository.MovementEvent
	)
	err := s.db.TransactionWithRetry(ctx, s.maxRetries, func(tx *sqlx.Tx) error {
		event = nil

		var err error
		pos, err = s.lockPosition(ctx, tx, input.ItemID, input.OutletID)
		if err != nil {
			return err
		}

		delta := input.NewQuantity - pos.Quantity
		if delta == 0 {
			return nil
		}

		magnitude := delta
		if magnitude < 0 {
			magnitude = -magnitude
		}

		event = &repository.MovementEvent{
			ItemID:         input.ItemID,
			Kind:           repository.KindAdjust,
			Quantity:       magnitude,
			QtyDelta:       delta,
			SourceOutletID: input.OutletID,
			Remarks:        input.Remarks,
			ActorID:        actorID(ctx),
		}
		if err := s.events.Append(ctx, tx, event); err != nil {
			return err
		}

		pos.Quantity = input.NewQuantity
		return s.positions.Update(ctx, tx, pos)
	})
	if err != nil {
		return nil, err
	}

	if event != nil {
		s.logMovement(event, pos)
		s.publishMoved(ctx, event, pos)
	}
	eval := s.evaluateAndAlert(ctx, pos)

	return &MovementResult{Event: event, Position: pos, Evaluation: eval}, nil
}

// Transfer moves stock between two outlets as a TRANSFER_OUT /
// TRANSFER_IN pair sharing one transfer id. Both legs and both cache
// updates commit together or not at all. Positions are locked in
// ascending outlet order so concurrent opposite transfers cannot
// deadlock.
func (s *LedgerService) Transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if input.Quantity <= 0 {
		return nil, errors.InvalidQuantity(input.Quantity)
	}

	fromKey := repository.OutletKey(input.FromOutletID)
	toKey := repository.OutletKey(input.ToOutletID)
	if fromKey == toKey {
		return nil, errors.SameOutletTransfer(fromKey)
	}

	if err := s.checkReferences(ctx, input.ItemID, input.FromOutletID, input.ToOutletID); err != nil {
		return nil, err
	}

	transferID := uuid.New().String()
	aid := actorID(ctx)

	outEvent := &repository.MovementEvent{
		ItemID:         input.ItemID,
		Kind:           repository.KindTransferOut,
		Quantity:       input.Quantity,
		QtyDelta:       -input.Quantity,
		SourceOutletID: input.FromOutletID,
		DestOutletID:   input.ToOutletID,
		TransferID:     &transferID,
		Reference:      input.Reference,
		ActorID:        aid,
	}
	inEvent := &repository.MovementEvent{
		ItemID:         input.ItemID,
		Kind:           repository.KindTransferIn,
		Quantity:       input.Quantity,
		QtyDelta:       input.Quantity,
		SourceOutletID: input.FromOutletID,
		DestOutletID:   input.ToOutletID,
		TransferID:     &transferID,
		Reference:      input.Reference,
		ActorID:        aid,
	}

	var source, dest *repository.StockPosition
	err := s.db.TransactionWithRetry(ctx, s.maxRetries, func(tx *sqlx.Tx) error {
		// Lock in ascending outlet order regardless of direction.
		first, second := input.FromOutletID, input.ToOutletID
		if toKey < fromKey {
			first, second = second, first
		}

		firstPos, err := s.lockPosition(ctx, tx, input.ItemID, first)
		if err != nil {
			return err
		}
		secondPos, err := s.lockPosition(ctx, tx, input.ItemID, second)
		if err != nil {
			return err
		}

		source, dest = firstPos, secondPos
		if repository.OutletKey(first) != fromKey {
			source, dest = secondPos, firstPos
		}

		if source.Quantity < input.Quantity {
			return errors.InsufficientStock(source.Quantity, input.Quantity)
		}

		if err := s.events.AppendPair(ctx, tx, outEvent, inEvent); err != nil {
			return err
		}

		source.Quantity -= input.Quantity
		if err := s.positions.Update(ctx, tx, source); err != nil {
			return err
		}
		dest.Quantity += input.Quantity
		return s.positions.Update(ctx, tx, dest)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transfer_id", transferID).
		Str("item_id", input.ItemID).
		Str("from_outlet", fromKey).
		Str("to_outlet", toKey).
		Int("quantity", input.Quantity).
		Msg("stock transferred")

	s.publisher.PublishStockTransferred(ctx, &messaging.StockTransferredEvent{
		TransferID:   transferID,
		ItemID:       input.ItemID,
		FromOutletID: fromKey,
		ToOutletID:   toKey,
		Quantity:     input.Quantity,
		FromQuantity: source.Quantity,
		ToQuantity:   dest.Quantity,
		ActorID:      aid,
	})
	s.evaluateAndAlert(ctx, source)
	s.evaluateAndAlert(ctx, dest)

	return &TransferResult{
		TransferID: transferID,
		OutEvent:   outEvent,
		InEvent:    inEvent,
		Source:     source,
		Dest:       dest,
	}, nil
}

func (s *LedgerService) logMovement(event *repository.MovementEvent, pos *repository.StockPosition) {
	s.logger.Info().
		Str("event_id", event.ID).
		Str("item_id", event.ItemID).
		Str("kind", string(event.Kind)).
		Int("qty_delta", event.QtyDelta).
		Int("new_quantity", pos.Quantity).
		Str("actor_id", event.ActorID).
		Msg("stock movement recorded")
}

func (s *LedgerService) publishMoved(ctx context.Context, event *repository.MovementEvent, pos *repository.StockPosition) {
	s.publisher.PublishStockMoved(ctx, &messaging.StockMovedEvent{
		EventID:     event.ID,
		ItemID:      event.ItemID,
		OutletID:    repository.OutletKey(event.PositionOutletID()),
		Kind:        string(event.Kind),
		Quantity:    event.Quantity,
		QtyDelta:    event.QtyDelta,
		NewQuantity: pos.Quantity,
		ActorID:     event.ActorID,
		Reference:   stringOrEmpty(event.Reference),
	})
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
