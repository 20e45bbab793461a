package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/events"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/projector"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/repository"
	"github.com/stocktrail/stocktrail-backend/pkg/database"
	"github.com/stocktrail/stocktrail-backend/pkg/logger"
	"github.com/stocktrail/stocktrail-backend/pkg/messaging"
)

// Reconciler verifies that every cached position quantity still equals
// the projection of its event history, flags positions that diverged,
// and rebuilds flagged positions from replay on demand.
type Reconciler struct {
	db        *database.DB
	events    *repository.EventRepository
	positions *repository.PositionRepository
	publisher *events.LedgerEventPublisher
	interval  time.Duration
	logger    *logger.Logger
	stop      chan struct{}
	done      chan struct{}
}

// NewReconciler creates a new reconciler
func NewReconciler(
	db *database.DB,
	eventRepo *repository.EventRepository,
	positionRepo *repository.PositionRepository,
	publisher *events.LedgerEventPublisher,
	interval time.Duration,
	log *logger.Logger,
) *Reconciler {
	return &Reconciler{
		db:        db,
		events:    eventRepo,
		positions: positionRepo,
		publisher: publisher,
		interval:  interval,
		logger:    log.WithComponent("reconciler"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// CheckPosition compares one cached quantity against the summed event
// deltas. On divergence the position is flagged, which blocks further
// writes until it is rebuilt. Returns true when the position is
// consistent.
func (r *Reconciler) CheckPosition(ctx context.Context, pos *repository.StockPosition) (bool, error) {
	projected, err := r.events.SumDeltaForPosition(ctx, pos.ItemID, pos.OutletID)
	if err != nil {
		return false, err
	}

	if projected == pos.Quantity && projected >= 0 {
		return true, nil
	}

	r.logger.WithPosition(pos.ItemID, pos.OutletKey()).Error().
		Int("cached", pos.Quantity).
		Int("projected", projected).
		Msg("position diverges from event history")

	if err := r.positions.SetIntegrityFlag(ctx, pos.ItemID, pos.OutletID, true); err != nil {
		return false, err
	}

	r.publisher.PublishPositionFlagged(ctx, &messaging.PositionFlaggedEvent{
		ItemID:    pos.ItemID,
		OutletID:  pos.OutletKey(),
		Cached:    pos.Quantity,
		Projected: projected,
	})
	return false, nil
}

// ScanAll checks every position and returns how many diverged.
func (r *Reconciler) ScanAll(ctx context.Context) (int, error) {
	positions, err := r.positions.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, pos := range positions {
		ok, err := r.CheckPosition(ctx, pos)
		if err != nil {
			return flagged, err
		}
		if !ok {
			flagged++
		}
	}

	r.logger.Info().
		Int("positions", len(positions)).
		Int("flagged", flagged).
		Msg("reconciliation scan complete")
	return flagged, nil
}

// RebuildPosition replays a position's full event history, writes the
// projected quantity into the cache and clears the integrity flag. The
// replay and the cache write share one transaction with the row locked,
// so no movement can slip in between.
func (r *Reconciler) RebuildPosition(ctx context.Context, itemID string, outletID *string) (*repository.StockPosition, error) {
	var pos *repository.StockPosition
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		pos, err = r.positions.EnsureAndLock(ctx, tx, itemID, outletID)
		if err != nil {
			return err
		}

		history, err := r.events.ListForPosition(ctx, itemID, outletID)
		if err != nil {
			return err
		}

		quantity, err := projector.Project(history)
		if err != nil {
			return err
		}

		pos.Quantity = quantity
		pos.IntegrityFlagged = false
		return r.positions.Update(ctx, tx, pos)
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithPosition(itemID, repository.OutletKey(outletID)).Info().
		Int("quantity", pos.Quantity).
		Msg("position rebuilt from event history")

	r.publisher.PublishPositionRebuilt(ctx, &messaging.PositionRebuiltEvent{
		ItemID:   itemID,
		OutletID: repository.OutletKey(outletID),
		Quantity: pos.Quantity,
	})
	return pos, nil
}

// Start runs periodic reconciliation scans until Stop is called.
func (r *Reconciler) Start() {
	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := r.ScanAll(ctx); err != nil {
					r.logger.Error().Err(err).Msg("reconciliation scan failed")
				}
				cancel()
			case <-r.stop:
				r.logger.Info().Msg("reconciler stopped")
				return
			}
		}
	}()
}

// Stop halts the periodic scans and waits for the loop to exit.
func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}
