package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hikenity/internal/model"
	"hikenity/internal/repo"
)

// Defaults used when Config leaves a duration unset.
const (
	DefaultWindow   = 96 * time.Hour
	DefaultInterval = 24 * time.Hour

	reminderTitle = "Trip Reminder"
)

// Store is the persistence the sweep needs. UnlistBooking must only move a
// booking that is still booked.
type Store interface {
	ListTripsUntil(ctx context.Context, cutoff time.Time) ([]model.Trip, error)
	ListBookingsByTripAndStatus(ctx context.Context, tripID string, status model.BookingStatus) ([]model.Booking, error)
	UnlistBooking(ctx context.Context, id string) error
	DecrementParticipantsTx(ctx context.Context, tripID string) (int, error)
}

// Dispatcher delivers a push message. Failures are handled by the implementation.
type Dispatcher interface {
	Send(ctx context.Context, token, title, body string)
}

// Config holds the tick interval and how far ahead of a trip bookings are unlisted.
type Config struct {
	Interval time.Duration
	Window   time.Duration
}

// Summary describes one sweep pass.
type Summary struct {
	Trips    int  `json:"trips"`
	Skipped  int  `json:"skipped"`
	Reminded int  `json:"reminded"`
	Unlisted int  `json:"unlisted"`
	Failed   bool `json:"failed"`
}

// Sweeper reminds participants of upcoming trips and unlists bookings that
// were not confirmed before the trip entered the unlist window.
type Sweeper struct {
	store    Store
	push     Dispatcher
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	log      *zerolog.Logger
}

// New builds a Sweeper. Zero durations fall back to DefaultInterval and DefaultWindow.
func New(store Store, push Dispatcher, cfg Config, log *zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Sweeper{
		store:    store,
		push:     push,
		interval: cfg.Interval,
		window:   cfg.Window,
		now:      time.Now,
		log:      log,
	}
}

// Start blocks, running a sweep on every tick until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Dur("window", s.window).Msg("sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.Run(ctx)
		}
	}
}

// Run performs one pass. Errors end the pass early and are only logged.
func (s *Sweeper) Run(ctx context.Context) Summary {
	var sum Summary
	if err := s.sweep(ctx, &sum); err != nil {
		sum.Failed = true
		s.log.Error().Err(err).Msg("sweep aborted")
	}

	s.log.Info().
		Int("trips", sum.Trips).
		Int("skipped", sum.Skipped).
		Int("reminded", sum.Reminded).
		Int("unlisted", sum.Unlisted).
		Msg("sweep finished")
	return sum
}

func (s *Sweeper) sweep(ctx context.Context, sum *Summary) error {
	cutoff := s.now().Add(s.window)

	trips, err := s.store.ListTripsUntil(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list trips: %w", err)
	}
	if len(trips) == 0 {
		s.log.Info().Time("cutoff", cutoff).Msg("no upcoming trips")
		return nil
	}

	for i := range trips {
		trip := &trips[i]
		sum.Trips++

		if trip.PlaceName == "" {
			s.log.Warn().Str("trip_id", trip.ID).Msg("trip has no place name, skipping")
			sum.Skipped++
			continue
		}

		bookings, err := s.store.ListBookingsByTripAndStatus(ctx, trip.ID, model.BookingBooked)
		if err != nil {
			return fmt.Errorf("list bookings for trip %s: %w", trip.ID, err)
		}
		if len(bookings) == 0 {
			s.log.Info().Str("trip_id", trip.ID).Msg("no unconfirmed bookings")
			continue
		}

		for _, b := range bookings {
			if b.FCMToken != "" {
				s.push.Send(ctx, b.FCMToken, reminderTitle, reminderBody(trip.PlaceName))
				sum.Reminded++
			} else {
				s.log.Warn().Str("booking_id", b.ID).Msg("booking has no fcm token, reminder not sent")
			}

			// the clock is read again: a long pass may cross the boundary
			if !trip.InUnlistWindow(s.now(), s.window) {
				continue
			}

			unlisted, err := s.unlist(ctx, trip.ID, b.ID)
			if err != nil {
				return err
			}
			if unlisted {
				sum.Unlisted++
			}
		}
	}

	return nil
}

// unlist is not cancellable: a booking that was unlisted always has its trip
// decremented.
func (s *Sweeper) unlist(ctx context.Context, tripID, bookingID string) (bool, error) {
	ctx = context.WithoutCancel(ctx)

	if err := s.store.UnlistBooking(ctx, bookingID); err != nil {
		if errors.Is(err, repo.ErrBookingNotBooked) || errors.Is(err, repo.ErrBookingNotFound) {
			s.log.Warn().Str("booking_id", bookingID).Msg("booking no longer booked, skipping")
			return false, nil
		}
		return false, fmt.Errorf("unlist booking %s: %w", bookingID, err)
	}

	count, err := s.store.DecrementParticipantsTx(ctx, tripID)
	if err != nil {
		if errors.Is(err, repo.ErrTripNotFound) {
			s.log.Warn().Str("trip_id", tripID).Str("booking_id", bookingID).Msg("trip vanished, participant count untouched")
			return true, nil
		}
		return true, fmt.Errorf("decrement participants of trip %s: %w", tripID, err)
	}

	s.log.Info().
		Str("trip_id", tripID).
		Str("booking_id", bookingID).
		Int("participant_count", count).
		Msg("booking unlisted")
	return true, nil
}

func reminderBody(placeName string) string {
	return fmt.Sprintf("Don't forget to confirm your trip for %s!", placeName)
}
