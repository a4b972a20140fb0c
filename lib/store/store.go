// Package store defines the interface for database implementations to the stellar service.
package store

import (
	"errors"
)

// DB defines required methods for the stellar service
type DB interface {
	// journal of ledger operations
	AddOp(Op, string) ([]byte, error)
	GetOps([]string) ([]AccountOps, error)
	// asset issuer meta data cache
	LoadMeta(string) (IssuerMeta, error)
	SaveMeta(string, IssuerMeta) error
}

// Errors returned
var (
	ErrDataNotFound = errors.New("Data was not found in store")
)
