package dto

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"

	"hikenity/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	TripNotFound      = "TRIP_NOT_FOUND"
	BookingNotFound   = "BOOKING_NOT_FOUND"
	BookingNotBooked  = "BOOKING_NOT_BOOKED"
	OrganiserNotFound = "ORGANISER_NOT_FOUND"
	UserNotFound      = "USER_NOT_FOUND"
	DuplicateID       = "DUPLICATE_ID"
	NoCharge          = "NO_CHARGE"
	NoReceipt         = "NO_RECEIPT"
)

type CreateTripRequest struct {
	ID          string `json:"id" validate:"omitempty,max=64"`
	Date        string `json:"date" validate:"required,rfc3339,future"`
	PlaceName   string `json:"place_name" validate:"omitempty,max=255"`
	OrganizerID string `json:"organizer_id" validate:"omitempty,max=64"`
}

type TripResponse struct {
	ID               string    `json:"id"`
	Date             time.Time `json:"date"`
	PlaceName        string    `json:"place_name,omitempty"`
	OrganizerID      string    `json:"organizer_id,omitempty"`
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func NewTripResponse(t *model.Trip) TripResponse {
	return TripResponse{
		ID:               t.ID,
		Date:             t.Date,
		PlaceName:        t.PlaceName,
		OrganizerID:      t.OrganizerID,
		ParticipantCount: t.ParticipantCount,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

type CreateBookingRequest struct {
	UserID   string `json:"user_id" validate:"omitempty,max=64"`
	FCMToken string `json:"fcm_token" validate:"omitempty,max=4096"`
}

type BookingResponse struct {
	ID               string              `json:"id"`
	TripID           string              `json:"trip_id"`
	UserID           string              `json:"user_id,omitempty"`
	Status           model.BookingStatus `json:"status"`
	ParticipantCount int                 `json:"participant_count,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type UpdateCertificateRequest struct {
	CertificateURL string  `json:"certificate_url" validate:"required,url"`
	FullName       *string `json:"full_name" validate:"omitempty,min=1,max=255"`
}

type OrganiserResponse struct {
	ID             string    `json:"id"`
	FullName       string    `json:"full_name,omitempty"`
	CertificateURL string    `json:"certificate_url,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreatePaymentIntentRequest struct {
	Amount int64 `json:"amount" validate:"positive"`
}

type PaymentIntentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

type RetrieveReceiptRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

type ReceiptResponse struct {
	ReceiptURL string `json:"receipt_url"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func errorResponse(c *ginext.Context, status int, code, desc string) {
	c.JSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	errorResponse(c, http.StatusBadRequest, code, desc)
}

func NotFoundError(c *ginext.Context, code, desc string) {
	errorResponse(c, http.StatusNotFound, code, desc)
}

func ConflictError(c *ginext.Context, code, desc string) {
	errorResponse(c, http.StatusConflict, code, desc)
}

func InternalServerError(c *ginext.Context) {
	errorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func FieldIncorrectError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldIncorrect, "Field '"+fieldName+"' is incorrect")
}

func TripNotFoundError(c *ginext.Context) {
	NotFoundError(c, TripNotFound, "Trip not found")
}

func BookingNotFoundError(c *ginext.Context) {
	NotFoundError(c, BookingNotFound, "Booking not found")
}

func OrganiserNotFoundError(c *ginext.Context) {
	NotFoundError(c, OrganiserNotFound, "Organiser not found")
}

func BookingNotBookedError(c *ginext.Context) {
	ConflictError(c, BookingNotBooked, "Only bookings in booked state can be confirmed")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
