package repository_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stocktrail/stocktrail-backend/internal/ledger/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceRepository_SetItem(t *testing.T) {
	mockDB, db := newTestDB(t)
	repo := repository.NewReferenceRepository(db)

	mockDB.ExpectExec("INSERT INTO item_refs").
		WithArgs("item-42", "Paracetamol 500mg").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetItem(context.Background(), &repository.ItemRef{
		ItemID: "item-42",
		Name:   "Paracetamol 500mg",
	})
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestReferenceRepository_ItemExists(t *testing.T) {
	mockDB, db := newTestDB(t)
	repo := repository.NewReferenceRepository(db)

	t.Run("known item", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT EXISTS (SELECT 1 FROM item_refs").
			WithArgs("item-42").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.ItemExists(context.Background(), "item-42")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("unknown item", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT EXISTS (SELECT 1 FROM item_refs").
			WithArgs("item-99").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		exists, err := repo.ItemExists(context.Background(), "item-99")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	mockDB.ExpectationsWereMet(t)
}

func TestReferenceRepository_DeleteOutlet(t *testing.T) {
	mockDB, db := newTestDB(t)
	repo := repository.NewReferenceRepository(db)

	mockDB.ExpectExec("DELETE FROM outlet_refs").
		WithArgs("outlet-b").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.DeleteOutlet(context.Background(), "outlet-b")
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}
