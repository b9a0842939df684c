package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t.Run("applies every statement", func(t *testing.T) {
		for range schema {
			mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
		}
		require.NoError(t, Migrate(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stops on first failure", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS accounts")).
			WillReturnError(errors.New("permission denied"))

		err := Migrate(context.Background(), db)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "migration 0 failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("database.name", "ledger_test")

	cfg := GetConfig()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "ledger_test", cfg.Name)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Contains(t, cfg.DSN(), "dbname=ledger_test")
}
