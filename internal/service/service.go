package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"hikenity/internal/dto"
	"hikenity/internal/model"
	"hikenity/internal/rabbit"
	"hikenity/internal/repo"
	"hikenity/internal/sweeper"
	"hikenity/pkg/validator"
)

type Service interface {
	Health(ctx *ginext.Context)
	CreateTrip(ctx *ginext.Context)
	GetTrip(ctx *ginext.Context)
	BookTrip(ctx *ginext.Context)
	GetBooking(ctx *ginext.Context)
	ConfirmBooking(ctx *ginext.Context)
	GetOrganiser(ctx *ginext.Context)
	UpdateCertificate(ctx *ginext.Context)
	CreatePaymentIntent(ctx *ginext.Context)
	RetrieveReceipt(ctx *ginext.Context)
	RunSweep(ctx *ginext.Context)
}

type Store interface {
	CreateTrip(ctx context.Context, t *model.Trip) error
	GetTripByID(ctx context.Context, id string) (*model.Trip, error)
	CreateBookingTx(ctx context.Context, b *model.Booking) (int, error)
	GetBookingByID(ctx context.Context, id string) (*model.Booking, error)
	ConfirmBookingTx(ctx context.Context, id string) error
	GetOrganiserByID(ctx context.Context, id string) (*model.Organiser, error)
	UpdateOrganiserCertificateTx(ctx context.Context, id, certificateURL string, fullName *string) (*model.Organiser, *model.Organiser, error)
}

type Payments interface {
	CreateIntent(ctx context.Context, amount int64) (*model.PaymentIntent, error)
	ReceiptURL(ctx context.Context, intentID string) (string, error)
}

type SweepRunner interface {
	Run(ctx context.Context) sweeper.Summary
}

type service struct {
	store    Store
	log      *zerolog.Logger
	pub      rabbit.Publisher
	payments Payments
	sweeper  SweepRunner
}

func NewService(store Store, logger *zerolog.Logger, pub rabbit.Publisher, payments Payments, sweeper SweepRunner) Service {
	return &service{
		store:    store,
		log:      logger,
		pub:      pub,
		payments: payments,
		sweeper:  sweeper,
	}
}

func (s *service) Health(ctx *ginext.Context) {
	ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *service) CreateTrip(ctx *ginext.Context) {
	var req dto.CreateTripRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create trip request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	date, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		dto.FieldBadFormatError(ctx, "date")
		return
	}

	trip := &model.Trip{
		ID:          req.ID,
		Date:        date.UTC(),
		PlaceName:   req.PlaceName,
		OrganizerID: req.OrganizerID,
	}
	if trip.ID == "" {
		trip.ID = uuid.NewString()
	}

	if err := s.store.CreateTrip(ctx.Request.Context(), trip); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicateID):
			dto.ConflictError(ctx, dto.DuplicateID, "Trip with this id already exists")
		case errors.Is(err, repo.ErrUserNotFound):
			dto.BadResponseError(ctx, dto.UserNotFound, "Organizer user does not exist")
		default:
			s.log.Error().Err(err).Msg("failed to create trip in DB")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().Str("trip_id", trip.ID).Time("date", trip.Date).Msg("trip created")
	dto.SuccessCreatedResponse(ctx, dto.NewTripResponse(trip))
}

func (s *service) GetTrip(ctx *ginext.Context) {
	trip, err := s.store.GetTripByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, repo.ErrTripNotFound) {
			dto.TripNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to get trip")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.NewTripResponse(trip))
}

func (s *service) BookTrip(ctx *ginext.Context) {
	var req dto.CreateBookingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	booking := &model.Booking{
		ID:       uuid.NewString(),
		TripID:   ctx.Param("id"),
		UserID:   req.UserID,
		FCMToken: req.FCMToken,
	}

	count, err := s.store.CreateBookingTx(ctx.Request.Context(), booking)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrTripNotFound):
			dto.TripNotFoundError(ctx)
		case errors.Is(err, repo.ErrDuplicateID):
			dto.ConflictError(ctx, dto.DuplicateID, "Booking with this id already exists")
		default:
			s.log.Error().Err(err).Msg("failed to book trip")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().
		Str("booking_id", booking.ID).
		Str("trip_id", booking.TripID).
		Int("participant_count", count).
		Msg("booking created")

	s.publishChange(ctx.Request.Context(), dto.KindBookingCreated, booking.ID, nil, booking)

	dto.SuccessCreatedResponse(ctx, dto.BookingResponse{
		ID:               booking.ID,
		TripID:           booking.TripID,
		UserID:           booking.UserID,
		Status:           booking.Status,
		ParticipantCount: count,
		CreatedAt:        booking.CreatedAt,
		UpdatedAt:        booking.UpdatedAt,
	})
}

func (s *service) GetBooking(ctx *ginext.Context) {
	b, err := s.store.GetBookingByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, repo.ErrBookingNotFound) {
			dto.BookingNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to get booking")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.BookingResponse{
		ID:        b.ID,
		TripID:    b.TripID,
		UserID:    b.UserID,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	})
}

func (s *service) ConfirmBooking(ctx *ginext.Context) {
	id := ctx.Param("id")

	if err := s.store.ConfirmBookingTx(ctx.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, repo.ErrBookingNotFound):
			dto.BookingNotFoundError(ctx)
		case errors.Is(err, repo.ErrBookingNotBooked):
			dto.BookingNotBookedError(ctx)
		default:
			s.log.Error().Err(err).Str("booking_id", id).Msg("failed to confirm booking")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().Str("booking_id", id).Msg("booking confirmed")
	dto.SuccessResponse(ctx, map[string]any{"id": id, "status": model.BookingConfirmed})
}

func (s *service) GetOrganiser(ctx *ginext.Context) {
	o, err := s.store.GetOrganiserByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, repo.ErrOrganiserNotFound) {
			dto.OrganiserNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to get organiser")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.OrganiserResponse{
		ID:             o.ID,
		FullName:       o.FullName,
		CertificateURL: o.CertificateURL,
		UpdatedAt:      o.UpdatedAt,
	})
}

func (s *service) UpdateCertificate(ctx *ginext.Context) {
	var req dto.UpdateCertificateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	id := ctx.Param("id")
	before, after, err := s.store.UpdateOrganiserCertificateTx(ctx.Request.Context(), id, req.CertificateURL, req.FullName)
	if err != nil {
		s.log.Error().Err(err).Str("organiser_id", id).Msg("failed to update certificate")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("organiser_id", id).Msg("organiser certificate updated")
	s.publishChange(ctx.Request.Context(), dto.KindOrganiserUpdated, id, before, after)

	dto.SuccessResponse(ctx, dto.OrganiserResponse{
		ID:             after.ID,
		FullName:       after.FullName,
		CertificateURL: after.CertificateURL,
		UpdatedAt:      after.UpdatedAt,
	})
}

// RunSweep finishes the pass even if the client goes away.
func (s *service) RunSweep(ctx *ginext.Context) {
	dto.SuccessResponse(ctx, s.sweeper.Run(context.WithoutCancel(ctx.Request.Context())))
}

// publishChange runs after the write committed; failures are only logged.
func (s *service) publishChange(ctx context.Context, kind, id string, before, after any) {
	msg, err := dto.NewChangeMessage(kind, id, before, after)
	if err != nil {
		s.log.Error().Err(err).Str("kind", kind).Msg("failed to build change message")
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Str("kind", kind).Msg("failed to marshal change message")
		return
	}

	if err := s.pub.Publish(ctx, kind, payload); err != nil {
		s.log.Error().Err(fmt.Errorf("publish %s: %w", kind, err)).Str("resource_id", id).Msg("failed to publish change")
	}
}
