// Package db implements the opening and graceful closing of database connections.
package db

import (
	"errors"
	"fmt"

	"github.com/tarancss/stellarsvc/lib/store"
	"github.com/tarancss/stellarsvc/lib/store/mongo"
	"github.com/tarancss/stellarsvc/lib/store/postgres"
)

const (
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
)

// ErrDBType is returned for database types not supported.
var ErrDBType = errors.New("database type not supported")

// New returns a new database connection according to the options (database type).
func New(options, connection string) (store.DB, error) {
	switch options {
	case MONGODB:
		return mongo.New(connection)
	case POSTGRES:
		return postgres.New(connection)
	}

	return nil, fmt.Errorf("%w: %s", ErrDBType, options)
}

// Close gracefully closes the database connection. Connections not opened by New are left alone.
func Close(options string, dh store.DB) error {
	switch options {
	case MONGODB:
		if m, ok := dh.(*mongo.Mongo); ok {
			return m.CloseMongo()
		}
	case POSTGRES:
		if p, ok := dh.(*postgres.Postgres); ok {
			return p.ClosePostgres()
		}
	}

	return nil
}
