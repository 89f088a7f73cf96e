package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-tracker/internal/config"
	"agency-tracker/pkg/datastore"
)

func TestOpenMemory(t *testing.T) {
	s, err := OpenAndMigrate(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &datastore.MemStore{}, s)
}

func TestOpenSQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tracker.db")

	s, err := OpenAndMigrate(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, URL: path})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Insert(ctx, "clients", datastore.Row{"name": "Kedai Kopi"})
	require.NoError(t, err)
	rows, err := s.FetchOrdered(ctx, "clients")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, s.EnsureSchema(ctx), "schema creation is repeatable")
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "mysql"})
	assert.ErrorContains(t, err, "mysql")
}
