package backend

import (
	"context"

	"churchledger/internal/amqp"
	"churchledger/internal/storage"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Result is an opened backend: the store, the optional event client and a
// readiness probe.
type Result struct {
	Store storage.Store
	// Events is nil when AMQP is not configured or could not be reached.
	Events  *amqp.Client
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Type BackendType

	SQLiteDBPath string

	// Memory backend seed directory.
	DataDirectory string

	// Optional; an empty URL disables event publishing.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// RequireEvents fails backend creation when AMQP cannot be reached.
	RequireEvents bool
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
