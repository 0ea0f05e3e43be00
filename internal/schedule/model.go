// Package schedule computes bookable appointment slots for a provider
// from their weekly working pattern minus existing reservations, and
// validates booking requests against both.
package schedule

import (
	"context"
	"time"
)

// Reservation statuses. Anything except cancelled blocks a slot.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Reservation is a committed appointment held in the external store.
type Reservation struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	UserID     string    `json:"user_id"`
	Date       string    `json:"date"` // "2006-01-02"
	Time       string    `json:"time"` // "15:04"
	Mode       string    `json:"mode"` // "online" or "offline"
	FeeCents   int64     `json:"fee_cents"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Active reports whether the reservation still occupies its slot.
func (r Reservation) Active() bool {
	return r.Status != StatusCancelled
}

// ReservationStore is the external persistence collaborator for
// reservations. Writes happen only on successful settlement.
type ReservationStore interface {
	ListForProvider(ctx context.Context, providerID string, from, to string) ([]Reservation, error)
	ListForUser(ctx context.Context, userID string, from, to string) ([]Reservation, error)
	Create(ctx context.Context, r Reservation) (string, error)
}

// DateOption is one bookable calendar date in both the raw form used as
// a map key and the human form shown in prompts.
type DateOption struct {
	Raw     string `json:"raw"`     // "2006-01-02"
	Display string `json:"display"` // "Monday, Jan 2"
}

// Availability is the open-slot view for one provider.
type Availability struct {
	Dates       []DateOption        `json:"dates"`
	SlotsByDate map[string][]string `json:"slots_by_date"`
}

// SlotsFor returns the open times for a raw date.
func (a *Availability) SlotsFor(raw string) []string {
	if a == nil {
		return nil
	}
	return a.SlotsByDate[raw]
}

// Alternatives is offered when a requested slot conflicts.
type Alternatives struct {
	SameDay    []string     `json:"same_day"`
	LaterDates []DateOption `json:"later_dates"`
	// LaterSlots holds up to three open times per later date.
	LaterSlots map[string][]string `json:"later_slots"`
}

// BookingRequest is validated immediately before committing a reservation.
type BookingRequest struct {
	ProviderID string
	UserID     string
	Date       string
	Time       string
}
