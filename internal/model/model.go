package model

import "time"

type BookingStatus string

const (
	BookingBooked    BookingStatus = "booked"
	BookingConfirmed BookingStatus = "confirmed"
	BookingUnlisted  BookingStatus = "unlisted"
)

// Trip is a scheduled outing. Empty PlaceName or OrganizerID means the
// field was never set on the record.
type Trip struct {
	ID               string    `db:"id" json:"id"`
	Date             time.Time `db:"date" json:"date"`
	PlaceName        string    `db:"place_name,omitempty" json:"place_name,omitempty"`
	OrganizerID      string    `db:"organizer_id,omitempty" json:"organizer_id,omitempty"`
	ParticipantCount int       `db:"participant_count" json:"participant_count"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// InUnlistWindow reports whether now is already past trip date minus window.
func (t *Trip) InUnlistWindow(now time.Time, window time.Duration) bool {
	return now.After(t.Date.Add(-window))
}

type Booking struct {
	ID        string        `db:"id" json:"id"`
	TripID    string        `db:"trip_id" json:"trip_id"`
	UserID    string        `db:"user_id,omitempty" json:"user_id,omitempty"`
	Status    BookingStatus `db:"status" json:"status"`
	FCMToken  string        `db:"fcm_token,omitempty" json:"fcm_token,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

type User struct {
	ID       string `db:"id" json:"id"`
	FCMToken string `db:"fcm_token,omitempty" json:"fcm_token,omitempty"`
}

type Organiser struct {
	ID             string    `db:"id" json:"id"`
	FullName       string    `db:"full_name,omitempty" json:"full_name,omitempty"`
	CertificateURL string    `db:"certificate_url,omitempty" json:"certificate_url,omitempty"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (o *Organiser) DisplayName() string {
	if o.FullName == "" {
		return "Unknown"
	}
	return o.FullName
}

type Admin struct {
	ID       string `db:"id" json:"id"`
	FCMToken string `db:"fcm_token,omitempty" json:"fcm_token,omitempty"`
}

type PaymentIntent struct {
	ID           string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
}
