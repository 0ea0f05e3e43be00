// Package booking drives the multi-step appointment booking dialog:
// provider selection through payment to a receipt. The flow is a
// deterministic state machine; invalid input re-prompts and never
// advances a step.
package booking

import (
	"time"

	"github.com/consultly/dialog-engine/internal/directory"
	"github.com/consultly/dialog-engine/internal/schedule"
)

// Step identifies the current position in the booking flow.
type Step string

const (
	StepSelectProvider Step = "SELECT_PROVIDER"
	StepSelectDate     Step = "SELECT_DATE"
	StepSelectTime     Step = "SELECT_TIME"
	StepSelectMode     Step = "SELECT_MODE"
	StepConfirm        Step = "CONFIRM"
	StepSelectPayment  Step = "SELECT_PAYMENT"
	StepProcessPayment Step = "PROCESS_PAYMENT"
	StepCompleted      Step = "COMPLETED"
	StepCancelled      Step = "CANCELLED"
)

// Terminal reports whether the flow accepts no further input.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepCancelled
}

// State is the record for one active booking flow. A session holds at
// most one non-terminal State.
type State struct {
	Step       Step                 `json:"step"`
	Provider   *directory.Provider  `json:"provider,omitempty"`
	Candidates []directory.Provider `json:"candidates,omitempty"`

	// Availability shown to the user; date/time selection indexes into
	// these, so both sides agree on what "option 2" meant.
	Dates       []schedule.DateOption `json:"dates,omitempty"`
	SlotsByDate map[string][]string   `json:"slots_by_date,omitempty"`

	Date          string `json:"date,omitempty"`
	Time          string `json:"time,omitempty"`
	Mode          string `json:"mode,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`

	Receipt *Receipt `json:"receipt,omitempty"`
}

// Receipt snapshots a completed booking.
type Receipt struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservation_id"`
	ProviderID    string    `json:"provider_id"`
	ProviderName  string    `json:"provider_name"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Mode          string    `json:"mode"`
	FeeCents      int64     `json:"fee_cents"`
	PaymentMethod string    `json:"payment_method"`
	IssuedAt      time.Time `json:"issued_at"`
}
