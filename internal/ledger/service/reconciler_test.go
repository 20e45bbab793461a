package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/repository"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/service"
	"github.com/stocktrail/stocktrail-backend/pkg/database"
	"github.com/stocktrail/stocktrail-backend/pkg/errors"
	"github.com/stocktrail/stocktrail-backend/pkg/logger"
	"github.com/stocktrail/stocktrail-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T) (*testutil.MockDB, *service.Reconciler) {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "development")
	db := database.NewWithDB(mockDB.DB, log)

	rec := service.NewReconciler(
		db,
		repository.NewEventRepository(db),
		repository.NewPositionRepository(db),
		nil, // messaging disabled
		15*time.Minute,
		log,
	)
	return mockDB, rec
}

func sumRow(sum int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"coalesce"}).AddRow(sum)
}

func TestReconciler_CheckPosition_Consistent(t *testing.T) {
	mockDB, rec := newTestReconciler(t)

	mockDB.ExpectQuery("SELECT COALESCE(SUM(qty_delta), 0)").
		WillReturnRows(sumRow(70))

	ok, err := rec.CheckPosition(context.Background(), &repository.StockPosition{
		ItemID:   "item-42",
		Quantity: 70,
	})
	require.NoError(t, err)
	assert.True(t, ok)
	mockDB.ExpectationsWereMet(t)
}

func TestReconciler_CheckPosition_DivergenceFlagsPosition(t *testing.T) {
	mockDB, rec := newTestReconciler(t)

	mockDB.ExpectQuery("SELECT COALESCE(SUM(qty_delta), 0)").
		WillReturnRows(sumRow(70))
	mockDB.ExpectExec("UPDATE stock_positions SET integrity_flagged").
		WithArgs("item-42", nil, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := rec.CheckPosition(context.Background(), &repository.StockPosition{
		ItemID:   "item-42",
		Quantity: 65,
	})
	require.NoError(t, err)
	assert.False(t, ok)
	mockDB.ExpectationsWereMet(t)
}

func TestReconciler_ScanAll(t *testing.T) {
	mockDB, rec := newTestReconciler(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(positionColumns()).
		AddRow("pos-1", "item-1", nil, 10, nil, nil, nil, false, now, now).
		AddRow("pos-2", "item-2", nil, 5, nil, nil, nil, false, now, now)

	mockDB.ExpectQuery("FROM stock_positions").WillReturnRows(rows)

	// First position is consistent, second diverged.
	mockDB.ExpectQuery("SELECT COALESCE(SUM(qty_delta), 0)").WillReturnRows(sumRow(10))
	mockDB.ExpectQuery("SELECT COALESCE(SUM(qty_delta), 0)").WillReturnRows(sumRow(8))
	mockDB.ExpectExec("UPDATE stock_positions SET integrity_flagged").
		WillReturnResult(sqlmock.NewResult(0, 1))

	flagged, err := rec.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
	mockDB.ExpectationsWereMet(t)
}

func TestReconciler_RebuildPosition(t *testing.T) {
	mockDB, rec := newTestReconciler(t)

	now := time.Now().UTC()
	eventRows := sqlmock.NewRows([]string{
		"id", "item_id", "kind", "quantity", "qty_delta", "source_outlet_id", "dest_outlet_id",
		"transfer_id", "batch_number", "manufacture_date", "expiry_date", "reference", "remarks",
		"actor_id", "created_at",
	}).
		AddRow("evt-1", "item-42", "RECEIVE", 100, 100, nil, nil, nil, nil, nil, nil, nil, nil, "actor-1", now).
		AddRow("evt-2", "item-42", "ISSUE", 30, -30, nil, nil, nil, nil, nil, nil, nil, nil, "actor-1", now)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO stock_positions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The flagged row with its stale cached quantity.
	mockDB.ExpectQuery("FROM stock_positions").
		WillReturnRows(sqlmock.NewRows(positionColumns()).
			AddRow("pos-1", "item-42", nil, 55, nil, nil, nil, true, now, now))
	mockDB.ExpectQuery("FROM stock_events").WillReturnRows(eventRows)
	mockDB.ExpectExec("UPDATE stock_positions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	pos, err := rec.RebuildPosition(context.Background(), "item-42", nil)
	require.NoError(t, err)

	assert.Equal(t, 70, pos.Quantity, "cache takes the projected quantity")
	assert.False(t, pos.IntegrityFlagged, "rebuild clears the flag")
	mockDB.ExpectationsWereMet(t)
}

func TestReconciler_RebuildPosition_CorruptHistoryAborts(t *testing.T) {
	mockDB, rec := newTestReconciler(t)

	now := time.Now().UTC()
	eventRows := sqlmock.NewRows([]string{
		"id", "item_id", "kind", "quantity", "qty_delta", "source_outlet_id", "dest_outlet_id",
		"transfer_id", "batch_number", "manufacture_date", "expiry_date", "reference", "remarks",
		"actor_id", "created_at",
	}).
		AddRow("evt-1", "item-42", "RECEIVE", 10, 10, nil, nil, nil, nil, nil, nil, nil, nil, "actor-1", now).
		AddRow("evt-2", "item-42", "ISSUE", 30, -30, nil, nil, nil, nil, nil, nil, nil, nil, "actor-1", now)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO stock_positions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("FROM stock_positions").
		WillReturnRows(sqlmock.NewRows(positionColumns()).
			AddRow("pos-1", "item-42", nil, 0, nil, nil, nil, true, now, now))
	mockDB.ExpectQuery("FROM stock_events").WillReturnRows(eventRows)
	mockDB.ExpectRollback()

	_, err := rec.RebuildPosition(context.Background(), "item-42", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIntegrityViolation), "a negative projection is never written")
	mockDB.ExpectationsWereMet(t)
}

func TestReconciler_StartStop(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "development")
	db := database.NewWithDB(mockDB.DB, log)

	rec := service.NewReconciler(
		db,
		repository.NewEventRepository(db),
		repository.NewPositionRepository(db),
		nil,
		time.Hour, // never fires during the test
		log,
	)

	rec.Start()
	rec.Stop()
}
