package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/repository"
	"github.com/stocktrail/stocktrail-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positionColumns() []string {
	return []string{
		"id", "item_id", "outlet_id", "quantity", "minimum_level", "batch_number",
		"expiry_date", "integrity_flagged", "last_updated", "created_at",
	}
}

func positionRow(id, itemID string, outletID *string, quantity int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(positionColumns()).
		AddRow(id, itemID, outletID, quantity, nil, nil, nil, false, now, now)
}

func TestPositionRepository_EnsureAndLock(t *testing.T) {
	mockDB, db := newTestDB(t)
	repo := repository.NewPositionRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO stock_positions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("FROM stock_positions").
		WithArgs("item-42", nil).
		WillReturnRows(positionRow("pos-1", "item-42", nil, 50))
	mockDB.ExpectCommit()

	err := db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		pos, err := repo.EnsureAndLock(context.Background(), tx, "item-42", nil)
		if err != nil {
			return err
		}
		assert.Equal(t, "pos-1", pos.ID)
		assert.Equal(t, 50, pos.Quantity)
		assert.Nil(t, pos.OutletID)
		return nil
	})
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestPositionRepository_Update_NotFound(t *testing.T) {
	mockDB, db := newTestDB(t)
	repo := repository.NewPositionRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("UPDATE stock_positions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectRollback()

	err := db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return repo.Update(context.Background(), tx, &repository.StockPosition{ID: "missing"})
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestPositionRepository_Get(t *testing.T) {
	mockDB, db := newTestDB(t)
	repo := repository.NewPositionRepository(db)

	outletB := "outlet-b"
	mockDB.ExpectQuery("FROM stock_positions").
		WithArgs("item-42", &outletB).
		WillReturnRows(positionRow("pos-2", "item-42", &outletB, 20))

	pos, err := repo.Get(context.Background(), "item-42", &outletB)
	require.NoError(t, err)
	assert.Equal(t, 20, pos.Quantity)
	assert.Equal(t, "outlet-b", pos.OutletKey())
	mockDB.ExpectationsWereMet(t)
}

func TestPositionRepository_Get_NeverMovedIsNotFound(t *testing.T) {
	mockDB, db := newTestDB(t)
	repo := repository.NewPositionRepository(db)

	mockDB.ExpectQuery("FROM stock_positions").
		WillReturnRows(sqlmock.NewRows(positionColumns()))

	_, err := repo.Get(context.Background(), "item-99", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestPositionRepository_ListLowStock(t *testing.T) {
	mockDB, db := newTestDB(t)
	repo := repository.NewPositionRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(positionColumns()).
		AddRow("pos-1", "item-1", nil, 0, nil, nil, nil, false, now, now).
		AddRow("pos-2", "item-2", nil, 3, nil, nil, nil, false, now, now)

	mockDB.ExpectQuery("FROM stock_positions").
		WithArgs(5).
		WillReturnRows(rows)

	positions, err := repo.ListLowStock(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, 0, positions[0].Quantity)
	assert.Equal(t, 3, positions[1].Quantity)
	mockDB.ExpectationsWereMet(t)
}

func TestPositionRepository_SetIntegrityFlag(t *testing.T) {
	mockDB, db := newTestDB(t)
	repo := repository.NewPositionRepository(db)

	t.Run("flags existing position", func(t *testing.T) {
		mockDB.ExpectExec("UPDATE stock_positions SET integrity_flagged").
			WithArgs("item-42", nil, true).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SetIntegrityFlag(context.Background(), "item-42", nil, true)
		require.NoError(t, err)
	})

	t.Run("unknown position is not found", func(t *testing.T) {
		mockDB.ExpectExec("UPDATE stock_positions SET integrity_flagged").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SetIntegrityFlag(context.Background(), "item-99", nil, true)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	mockDB.ExpectationsWereMet(t)
}

func TestOutletKey(t *testing.T) {
	outlet := "outlet-a"
	assert.Equal(t, "", repository.OutletKey(nil))
	assert.Equal(t, "outlet-a", repository.OutletKey(&outlet))
}
