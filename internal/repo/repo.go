package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"

	"hikenity/internal/model"
)

var (
	ErrTripNotFound      = errors.New("trip not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrBookingNotBooked  = errors.New("booking is not in booked state")
	ErrOrganiserNotFound = errors.New("organiser not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateID       = errors.New("record with this id already exists")
)

type Repository interface {
	CreateTrip(ctx context.Context, t *model.Trip) error
	GetTripByID(ctx context.Context, id string) (*model.Trip, error)
	ListTripsUntil(ctx context.Context, cutoff time.Time) ([]model.Trip, error)
	DecrementParticipantsTx(ctx context.Context, tripID string) (int, error)

	CreateBookingTx(ctx context.Context, b *model.Booking) (int, error)
	GetBookingByID(ctx context.Context, id string) (*model.Booking, error)
	ListBookingsByTripAndStatus(ctx context.Context, tripID string, status model.BookingStatus) ([]model.Booking, error)
	UnlistBooking(ctx context.Context, id string) error
	ConfirmBookingTx(ctx context.Context, id string) error

	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetOrganiserByID(ctx context.Context, id string) (*model.Organiser, error)
	UpdateOrganiserCertificateTx(ctx context.Context, id, certificateURL string, fullName *string) (before, after *model.Organiser, err error)
	ListAdmins(ctx context.Context) ([]model.Admin, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db       *dbpg.DB
	log      *zerolog.Logger
	strategy retry.Strategy
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return newRepository(db, log), nil
}

func newRepository(db *dbpg.DB, log *zerolog.Logger) *repository {
	return &repository{
		db:  db,
		log: log,
		strategy: retry.Strategy{
			Attempts: 3,
			Delay:    500 * time.Millisecond,
			Backoff:  2,
		},
	}
}

func (r *repository) MigrateUp(migrationsDir string) error {
	return r.applyDir(migrationsDir, "*.up.sql", false)
}

// MigrateDown applies the down files in reverse order so dependent tables go first.
func (r *repository) MigrateDown(migrationsDir string) error {
	return r.applyDir(migrationsDir, "*.down.sql", true)
}

func (r *repository) applyDir(dir, pattern string, reverse bool) error {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	if reverse {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Str("dir", dir).Int("files", len(files)).Msgf("migrations %s applied", pattern)
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
