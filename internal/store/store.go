// Package store provides storage backends for AutoSherpa.
//
// It persists the car inventory, captured leads, the per-turn message log
// and inbound de-duplication records. SQLite and PostgreSQL share one SQL
// implementation; InMemoryStore serves demos and tests.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/BTreeMap/AutoSherpa/internal/dialogue"
	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// ErrUnknownLeadKind is returned by SaveLead for lead types it cannot persist.
var ErrUnknownLeadKind = errors.New("unknown lead kind")

// ErrUnknownField is returned by ListDistinct for columns that cannot be listed.
var ErrUnknownField = errors.New("unknown inventory field")

// InventoryRepo is the car catalogue.
type InventoryRepo interface {
	dialogue.Inventory
	AddCar(ctx context.Context, car models.CarRecord) (int64, error)
	CountCars(ctx context.Context) (int, error)
}

// LeadRepo persists leads captured by the dialogue flows.
type LeadRepo interface {
	dialogue.LeadSaver
}

// MessageLogRepo appends per-turn audit records.
type MessageLogRepo interface {
	LogMessage(ctx context.Context, entry models.MessageLog) error
}

// Store is everything the service needs from persistence.
type Store interface {
	InventoryRepo
	LeadRepo
	MessageLogRepo
	DedupRepo
	Ping(ctx context.Context) error
	Close() error
}

// Opts holds configuration options for SQL stores.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithDSN sets the data source name.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option { return WithDSN(dsn) }

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option { return WithDSN(dsn) }

// DSN types understood by Open.
const (
	DSNTypeSQLite   = "sqlite3"
	DSNTypePostgres = "postgres"
)

// DetectDSNType reports whether dsn points at PostgreSQL or a SQLite file.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DSNTypePostgres
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "sslmode=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// Open returns the SQL store for dsn, or a seeded InMemoryStore when dsn is empty.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		return NewInMemoryStore(DemoInventory()...), nil
	}
	if DetectDSNType(dsn) == DSNTypePostgres {
		s, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		return nil, err
	}
	return s, nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*InMemoryStore)(nil)
)
