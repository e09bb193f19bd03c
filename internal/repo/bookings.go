package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"hikenity/internal/model"
)

const bookingColumns = `id, trip_id, user_id, status, fcm_token, created_at, updated_at`

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b      model.Booking
		userID sql.NullString
		token  sql.NullString
	)
	if err := row.Scan(&b.ID, &b.TripID, &userID, &b.Status, &token, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.UserID = userID.String
	b.FCMToken = token.String
	return &b, nil
}

// CreateBookingTx inserts a booked booking and bumps the trip's participant
// count under the trip row lock. Returns the new count.
func (r *repository) CreateBookingTx(ctx context.Context, b *model.Booking) (int, error) {
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
	`, b.TripID).Scan(&count)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTripNotFound
		}
		return 0, fmt.Errorf("failed to lock trip: %w", err)
	}

	b.Status = model.BookingBooked
	err = tx.QueryRowContext(ctx, `
		INSERT INTO bookings (id, trip_id, user_id, status, fcm_token)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, b.ID, b.TripID, nullable(b.UserID), b.Status, nullable(b.FCMToken)).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateID
		}
		return 0, fmt.Errorf("failed to create booking: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE trips
		SET participant_count = participant_count + 1, updated_at = NOW()
		WHERE id = $1
	`, b.TripID); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to increment participant count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return count + 1, nil
}

func (r *repository) GetBookingByID(ctx context.Context, id string) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	row, err := r.db.QueryRowWithRetry(ctx, r.strategy, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	return b, nil
}

func (r *repository) ListBookingsByTripAndStatus(ctx context.Context, tripID string, status model.BookingStatus) ([]model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE trip_id = $1 AND status = $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryWithRetry(ctx, r.strategy, query, tripID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}

	return bookings, rows.Err()
}

// UnlistBooking moves a booking from booked to unlisted. Zero affected rows
// means the booking is gone or no longer booked, reported as
// ErrBookingNotBooked.
func (r *repository) UnlistBooking(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, model.BookingUnlisted, id, model.BookingBooked)
	if err != nil {
		return fmt.Errorf("failed to unlist booking: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("booking rows affected: %w", err)
	}
	if n == 0 {
		return ErrBookingNotBooked
	}
	return nil
}

func (r *repository) ConfirmBookingTx(ctx context.Context, id string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var current model.BookingStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookingNotFound
		}
		return fmt.Errorf("failed to select booking for confirmation: %w", err)
	}

	if current != model.BookingBooked {
		_ = tx.Rollback()
		return ErrBookingNotBooked
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, model.BookingConfirmed, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to confirm booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit confirmation: %w", err)
	}
	return nil
}
