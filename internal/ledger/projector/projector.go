// Package projector derives a position's current quantity from its event
// history. The event store is authoritative: the cached quantity on a
// stock position must always equal the projection of its events, and a
// position can be rebuilt at any time by replaying them through Project.
package projector

import (
	"fmt"

	"github.com/stocktrail/stocktrail-backend/internal/ledger/repository"
	"github.com/stocktrail/stocktrail-backend/pkg/errors"
)

// Contribution returns the signed quantity an event adds to its position.
// RECEIVE and TRANSFER_IN credit, ISSUE, RETURN and TRANSFER_OUT debit,
// ADJUST carries its own signed delta. An event whose stored delta
// contradicts its kind is a data-integrity error.
func Contribution(e *repository.MovementEvent) (int, error) {
	if e.Quantity <= 0 {
		return 0, errors.Wrap(errors.ErrIntegrityViolation, "INTEGRITY_VIOLATION",
			fmt.Sprintf("event %s has non-positive quantity %d", e.ID, e.Quantity), 500)
	}

	var want int
	switch e.Kind {
	case repository.KindReceive, repository.KindTransferIn:
		want = e.Quantity
	case repository.KindIssue, repository.KindReturn, repository.KindTransferOut:
		want = -e.Quantity
	case repository.KindAdjust:
		if e.QtyDelta != e.Quantity && e.QtyDelta != -e.Quantity {
			return 0, errors.Wrap(errors.ErrIntegrityViolation, "INTEGRITY_VIOLATION",
				fmt.Sprintf("adjust event %s delta %d does not match quantity %d", e.ID, e.QtyDelta, e.Quantity), 500)
		}
		return e.QtyDelta, nil
	default:
		return 0, errors.Wrap(errors.ErrIntegrityViolation, "INTEGRITY_VIOLATION",
			fmt.Sprintf("event %s has unknown kind %q", e.ID, e.Kind), 500)
	}

	if e.QtyDelta != want {
		return 0, errors.Wrap(errors.ErrIntegrityViolation, "INTEGRITY_VIOLATION",
			fmt.Sprintf("event %s delta %d does not match kind %s quantity %d", e.ID, e.QtyDelta, e.Kind, e.Quantity), 500)
	}
	return want, nil
}

// Project folds the event history of one position into its current
// quantity. The fold is a plain sum, so the result is independent of the
// order of events with distinct ids and safe to recompute concurrently
// with new appends. A negative result is surfaced as an integrity error,
// never clamped.
func Project(events []*repository.MovementEvent) (int, error) {
	total := 0
	for _, e := range events {
		delta, err := Contribution(e)
		if err != nil {
			return 0, err
		}
		total += delta
	}

	if total < 0 {
		return total, errors.Wrap(errors.ErrIntegrityViolation, "INTEGRITY_VIOLATION",
			fmt.Sprintf("projection is negative: %d", total), 500)
	}
	return total, nil
}
