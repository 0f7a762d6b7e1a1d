package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/storage/database"
)

func Test_setUpDB(t *testing.T) {
	var created, migrated int
	createDBFunc = func(ctx context.Context, conf *core.Config) error {
		created++
		return nil
	}
	migrateFunc = func(db *sql.DB) error {
		migrated++
		return nil
	}
	t.Cleanup(func() {
		createDBFunc = database.CreateIfNotExist
		migrateFunc = database.Migrate
	})

	tests := []struct {
		name         string
		debug        bool
		wantCreated  int
		wantMigrated int
	}{
		{name: "production leaves the schema alone", debug: false},
		{name: "debug creates and migrates", debug: true, wantCreated: 1, wantMigrated: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, migrated = 0, 0
			conf := core.NewTestConfig()
			conf.Debug = tt.debug

			db, err := setUpDB(conf)
			require.NoError(t, err)
			defer db.Close()
			assert.Equal(t, tt.wantCreated, created)
			assert.Equal(t, tt.wantMigrated, migrated)
		})
	}

	t.Run("migration failure", func(t *testing.T) {
		migrateFunc = func(db *sql.DB) error { return errors.New("dirty database") }
		conf := core.NewTestConfig()
		conf.Debug = true
		_, err := setUpDB(conf)
		assert.EqualError(t, err, "dirty database")
	})
}
