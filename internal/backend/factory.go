package backend

import (
	"fmt"

	"fintrack/internal/log"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

// Factory creates storage backends from configuration.
type Factory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentBackend)
	}
	return &Factory{logger: logger}
}

// CreateStore builds the store named by backendType.
func (f *Factory) CreateStore(backendType Type, sqlitePath string) (*Result, error) {
	switch backendType {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", sqlitePath)
		return &Result{Store: repo, Cleanup: repo.Close}, nil

	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return &Result{Store: memory.NewStore()}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", backendType)
	}
}
