package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// Database is the slice of the pgx pool the repository uses. pgxpool.Pool
// satisfies it in production; pgxmock satisfies it in tests.
type Database interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	db  Database
	log *slog.Logger
}

// Interface is the full persistence boundary: the pending-address queue,
// resolution storage, the street-range database, the curated override table,
// and the resolution cache.
type Interface interface {
	FetchPendingAddresses(ctx context.Context, limit int) ([]models.RawAddress, error)
	SaveResolution(ctx context.Context, record models.ResolutionRecord) error
	DistinctStreetsInZip(ctx context.Context, zip string) ([]string, error)
	RangesByStreet(ctx context.Context, zip, streetPattern string) ([]models.AddressRange, error)
	LookupOverride(ctx context.Context, raw string) (string, bool, error)
	CachedRecord(ctx context.Context, raw string) (*models.ResolutionRecord, error)
	StoreRecord(ctx context.Context, raw string, record models.ResolutionRecord) error
}

// NewRepository creates a new instance of Repository with the provided Database.
// It returns a pointer to the newly created Repository.
func NewRepository(db Database, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log}
}
