package projector_test

import (
	"testing"

	"github.com/stocktrail/stocktrail-backend/internal/ledger/projector"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/repository"
	"github.com/stocktrail/stocktrail-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(kind repository.MovementKind, quantity, delta int) *repository.MovementEvent {
	return &repository.MovementEvent{
		ID:       "evt-" + string(kind),
		ItemID:   "item-42",
		Kind:     kind,
		Quantity: quantity,
		QtyDelta: delta,
	}
}

func TestContribution(t *testing.T) {
	tests := []struct {
		name  string
		event *repository.MovementEvent
		want  int
	}{
		{"receive credits", event(repository.KindReceive, 100, 100), 100},
		{"transfer in credits", event(repository.KindTransferIn, 20, 20), 20},
		{"issue debits", event(repository.KindIssue, 30, -30), -30},
		{"return debits", event(repository.KindReturn, 10, -10), -10},
		{"transfer out debits", event(repository.KindTransferOut, 20, -20), -20},
		{"adjust up", event(repository.KindAdjust, 15, 15), 15},
		{"adjust down", event(repository.KindAdjust, 15, -15), -15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := projector.Contribution(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContribution_RejectsCorruptEvents(t *testing.T) {
	tests := []struct {
		name  string
		event *repository.MovementEvent
	}{
		{"zero quantity", event(repository.KindReceive, 0, 0)},
		{"negative quantity", event(repository.KindIssue, -5, 5)},
		{"receive with negative delta", event(repository.KindReceive, 10, -10)},
		{"issue with positive delta", event(repository.KindIssue, 10, 10)},
		{"adjust delta magnitude mismatch", event(repository.KindAdjust, 10, 7)},
		{"unknown kind", event(repository.MovementKind("DESTROY"), 10, -10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := projector.Contribution(tt.event)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrIntegrityViolation))
		})
	}
}

func TestProject(t *testing.T) {
	events := []*repository.MovementEvent{
		event(repository.KindReceive, 100, 100),
		event(repository.KindIssue, 30, -30),
		event(repository.KindTransferOut, 20, -20),
		event(repository.KindAdjust, 5, -5),
		event(repository.KindReturn, 10, -10),
	}

	quantity, err := projector.Project(events)
	require.NoError(t, err)
	assert.Equal(t, 35, quantity)
}

func TestProject_EmptyHistoryIsZero(t *testing.T) {
	quantity, err := projector.Project(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, quantity)
}

func TestProject_OrderIndependent(t *testing.T) {
	forward := []*repository.MovementEvent{
		event(repository.KindReceive, 50, 50),
		event(repository.KindIssue, 20, -20),
		event(repository.KindAdjust, 3, 3),
	}
	reversed := []*repository.MovementEvent{forward[2], forward[1], forward[0]}

	a, err := projector.Project(forward)
	require.NoError(t, err)
	b, err := projector.Project(reversed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestProject_NegativeTotalIsIntegrityError(t *testing.T) {
	events := []*repository.MovementEvent{
		event(repository.KindReceive, 10, 10),
		event(repository.KindIssue, 30, -30),
	}

	_, err := projector.Project(events)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIntegrityViolation))
}
