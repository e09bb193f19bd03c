package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"hikenity/internal/dto"
	"hikenity/internal/model"
	"hikenity/internal/repo"
)

const newBookingTitle = "New Booking Alert"

type Dispatcher interface {
	Send(ctx context.Context, token, title, body string)
}

type BookingStore interface {
	GetTripByID(ctx context.Context, id string) (*model.Trip, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// BookingCreated tells a trip's organiser that someone booked it.
type BookingCreated struct {
	store BookingStore
	push  Dispatcher
	log   *zerolog.Logger
}

func NewBookingCreated(store BookingStore, push Dispatcher, log *zerolog.Logger) *BookingCreated {
	return &BookingCreated{store: store, push: push, log: log}
}

func (n *BookingCreated) HandleChange(ctx context.Context, msg dto.ChangeMessage) error {
	booking, err := dto.DecodeSnapshot[model.Booking](msg.After)
	if err != nil {
		return fmt.Errorf("decode booking snapshot: %w", err)
	}
	if booking == nil {
		n.log.Warn().Str("booking_id", msg.ResourceID).Msg("booking created without snapshot")
		return nil
	}
	if booking.ID == "" {
		booking.ID = msg.ResourceID
	}

	n.Handle(ctx, booking)
	return nil
}

func (n *BookingCreated) Handle(ctx context.Context, b *model.Booking) {
	log := n.log.With().Str("booking_id", b.ID).Logger()

	if b.TripID == "" {
		log.Warn().Msg("booking has no trip id")
		return
	}

	trip, err := n.store.GetTripByID(ctx, b.TripID)
	if err != nil {
		if errors.Is(err, repo.ErrTripNotFound) {
			log.Warn().Str("trip_id", b.TripID).Msg("trip not found")
			return
		}
		log.Error().Err(err).Str("trip_id", b.TripID).Msg("failed to load trip")
		return
	}

	if trip.OrganizerID == "" {
		log.Warn().Str("trip_id", trip.ID).Msg("trip has no organizer")
		return
	}

	organizer, err := n.store.GetUserByID(ctx, trip.OrganizerID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			log.Warn().Str("user_id", trip.OrganizerID).Msg("organizer not found")
			return
		}
		log.Error().Err(err).Str("user_id", trip.OrganizerID).Msg("failed to load organizer")
		return
	}
	if organizer.FCMToken == "" {
		log.Warn().Str("user_id", organizer.ID).Msg("organizer has no fcm token")
		return
	}

	n.push.Send(ctx, organizer.FCMToken, newBookingTitle,
		fmt.Sprintf("A new participant has booked your trip: %s.", trip.PlaceName))
	log.Info().Str("trip_id", trip.ID).Str("user_id", organizer.ID).Msg("organizer notified of new booking")
}
