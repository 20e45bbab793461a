package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/alerting"
	"github.com/stocktrail/stocktrail-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerService_History(t *testing.T) {
	mockDB, svc := newTestService(t, defaultLedgerConfig())

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "item_id", "kind", "quantity", "qty_delta", "source_outlet_id", "dest_outlet_id",
		"transfer_id", "batch_number", "manufacture_date", "expiry_date", "reference", "remarks",
		"actor_id", "created_at",
	}).
		AddRow("evt-2", "item-42", "ADJUST", 6, -6, nil, nil, nil, nil, nil, nil, nil, nil, "actor-1", now).
		AddRow("evt-1", "item-42", "RECEIVE", 10, 10, nil, nil, nil, nil, nil, nil, nil, nil, "actor-1", now.Add(-time.Hour))

	expectItemExists(mockDB, "item-42", true)
	mockDB.ExpectQuery("FROM stock_events").WithArgs("item-42").WillReturnRows(rows)

	events, err := svc.History(context.Background(), "item-42")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-2", events[0].ID, "history is most recent first")
	assert.Equal(t, -6, events[0].QtyDelta)
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerService_History_UnknownItem(t *testing.T) {
	mockDB, svc := newTestService(t, defaultLedgerConfig())

	expectItemExists(mockDB, "item-99", false)

	_, err := svc.History(context.Background(), "item-99")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownReference))
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerService_LowStock(t *testing.T) {
	mockDB, svc := newTestService(t, defaultLedgerConfig())

	now := time.Now().UTC()
	rows := sqlmock.NewRows(positionColumns()).
		AddRow("pos-1", "item-1", nil, 0, nil, nil, nil, false, now, now).
		AddRow("pos-2", "item-2", nil, 3, nil, nil, nil, false, now, now)

	mockDB.ExpectQuery("FROM stock_positions").
		WithArgs(5).
		WillReturnRows(rows)

	positions, err := svc.LowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, alerting.StockOut, positions[0].StockStatus)
	assert.Equal(t, alerting.StockLow, positions[1].StockStatus)
	assert.Equal(t, 5, positions[1].MinimumLevel, "default floor applies without a per-position level")
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerService_Expiring(t *testing.T) {
	mockDB, svc := newTestService(t, defaultLedgerConfig())

	now := time.Now().UTC()
	soon := now.AddDate(0, 0, 2)
	past := now.AddDate(0, 0, -1)
	rows := sqlmock.NewRows(positionColumns()).
		AddRow("pos-1", "item-1", nil, 10, nil, nil, past, false, now, now).
		AddRow("pos-2", "item-2", nil, 10, nil, nil, soon, false, now, now)

	// A non-positive window falls back to the configured default of 7 days.
	mockDB.ExpectQuery("FROM stock_positions").
		WithArgs(7).
		WillReturnRows(rows)

	positions, err := svc.Expiring(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, alerting.ExpiryExpired, positions[0].ExpiryStatus)
	assert.Equal(t, alerting.ExpiryExpiring, positions[1].ExpiryStatus)
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerService_GetPosition_NeverMoved(t *testing.T) {
	mockDB, svc := newTestService(t, defaultLedgerConfig())

	mockDB.ExpectQuery("FROM stock_positions").
		WillReturnRows(sqlmock.NewRows(positionColumns()))

	_, err := svc.GetPosition(context.Background(), "item-99", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}
