// Package backend selects and constructs the storage backend from
// configuration.
package backend

import (
	"context"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

// Store is the full storage surface the application needs: transactional
// writes, user records, reads, dashboard aggregates and export tracking.
type Store interface {
	services.Store
	services.UserStore
	services.TransactionReader
	services.DashboardStore

	PendingExports(ctx context.Context, limit int) ([]core.Transaction, error)
	GetExportTransaction(ctx context.Context, id int64) (core.Transaction, error)
	MarkExported(ctx context.Context, id, version int64) error
	MarkExportError(ctx context.Context, id int64) error
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result contains the store instance and optional cleanup function.
type Result struct {
	Store   Store
	Cleanup CleanupFunc
}

// Type represents the kind of storage backend.
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is known.
func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
