package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFortunePostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFortunePostgres(db)

	mock.ExpectQuery("SELECT id, user_id FROM fortunes WHERE id = \\$1").
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow("f1", "u1"))

	got, err := repo.FindByID(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	mock.ExpectQuery("SELECT id, user_id FROM fortunes").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFortunePostgres_FindByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFortunePostgres(db)
	cols := []string{"user_id", "status", "lifetime_active", "trial_ends_at"}

	t.Run("with trial", func(t *testing.T) {
		trial := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery("FROM subscriptions").
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "inactive", false, trial))

		got, err := repo.FindByUser(context.Background(), "u1")
		require.NoError(t, err)
		require.NotNil(t, got.TrialEndsAt)
		assert.True(t, trial.Equal(*got.TrialEndsAt))
		assert.False(t, got.LifetimeActive)
	})

	t.Run("lifetime without trial", func(t *testing.T) {
		mock.ExpectQuery("FROM subscriptions").
			WithArgs("u2").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("u2", "canceled", true, nil))

		got, err := repo.FindByUser(context.Background(), "u2")
		require.NoError(t, err)
		assert.Nil(t, got.TrialEndsAt)
		assert.True(t, got.LifetimeActive)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
