package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"hikenity/internal/model"
)

const tripColumns = `id, date, place_name, organizer_id, participant_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*model.Trip, error) {
	var (
		t         model.Trip
		placeName sql.NullString
		organizer sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Date, &placeName, &organizer, &t.ParticipantCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.PlaceName = placeName.String
	t.OrganizerID = organizer.String
	return &t, nil
}

func (r *repository) CreateTrip(ctx context.Context, t *model.Trip) error {
	query := `
		INSERT INTO trips (id, date, place_name, organizer_id, participant_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		t.ID, t.Date, nullable(t.PlaceName), nullable(t.OrganizerID), t.ParticipantCount,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrDuplicateID
			case "23503":
				return ErrUserNotFound
			}
		}
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	return nil
}

func (r *repository) GetTripByID(ctx context.Context, id string) (*model.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	row, err := r.db.QueryRowWithRetry(ctx, r.strategy, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	t, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("failed to scan trip: %w", err)
	}
	return t, nil
}

// ListTripsUntil returns trips dated at or before cutoff, past trips included.
func (r *repository) ListTripsUntil(ctx context.Context, cutoff time.Time) ([]model.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE date <= $1 ORDER BY date ASC`

	rows, err := r.db.QueryWithRetry(ctx, r.strategy, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []model.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, *t)
	}

	return trips, rows.Err()
}

// DecrementParticipantsTx lowers the participant count by one, never below
// zero, while holding the trip row lock. Returns the stored value.
func (r *repository) DecrementParticipantsTx(ctx context.Context, tripID string) (int, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT participant_count
		FROM trips
		WHERE id = $1
		FOR UPDATE
	`, tripID).Scan(&count)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTripNotFound
		}
		return 0, fmt.Errorf("failed to lock trip: %w", err)
	}

	next := 0
	if count > 0 {
		next = count - 1
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE trips
		SET participant_count = $1, updated_at = NOW()
		WHERE id = $2
	`, next, tripID); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to update participant count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return next, nil
}
