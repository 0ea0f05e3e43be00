package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/consultly/dialog-engine/internal/directory"
)

const (
	rawDateLayout     = "2006-01-02"
	displayDateLayout = "Monday, Jan 2"

	defaultHorizonDays = 14
	defaultMaxDates    = 7
	maxAlternatives    = 3
)

var (
	// ErrSlotTaken means the requested slot conflicts with an existing
	// reservation or falls outside the provider's open slots.
	ErrSlotTaken = errors.New("schedule: slot not available")
	// ErrDoubleBooked means the user already holds an active reservation
	// at the same date and time.
	ErrDoubleBooked = errors.New("schedule: user already booked at this time")
)

// Engine computes availability. It holds no state of its own; every call
// recomputes from the provider's working pattern and the reservation store.
type Engine struct {
	reservations ReservationStore

	horizonDays int
	maxDates    int
	now         func() time.Time
}

// EngineOption tunes the engine.
type EngineOption func(*Engine)

// WithHorizon overrides how many calendar days ahead are scanned.
func WithHorizon(days int) EngineOption {
	return func(e *Engine) {
		if days > 0 {
			e.horizonDays = days
		}
	}
}

// WithMaxDates caps how many qualifying dates are offered.
func WithMaxDates(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxDates = n
		}
	}
}

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a slot availability engine over the reservation store.
func NewEngine(reservations ReservationStore, opts ...EngineOption) *Engine {
	if reservations == nil {
		panic("schedule: reservation store cannot be nil")
	}
	e := &Engine{
		reservations: reservations,
		horizonDays:  defaultHorizonDays,
		maxDates:     defaultMaxDates,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AvailableSlots scans the horizon for dates the provider works, fills
// each with hourly and half-hourly marks inside working hours, and
// removes times held by active reservations. Dates left with no open
// time are dropped entirely. When selectedDate is non-empty only that
// date is considered.
func (e *Engine) AvailableSlots(ctx context.Context, p directory.Provider, selectedDate string) (*Availability, error) {
	today := e.now()
	from := today.AddDate(0, 0, 1).Format(rawDateLayout)
	to := today.AddDate(0, 0, e.horizonDays).Format(rawDateLayout)

	reserved, err := e.reservedTimes(ctx, p.ID, from, to)
	if err != nil {
		return nil, err
	}

	avail := &Availability{SlotsByDate: map[string][]string{}}
	qualifying := 0
	for offset := 1; offset <= e.horizonDays; offset++ {
		day := today.AddDate(0, 0, offset)
		if !p.WorksOn(day.Weekday()) {
			continue
		}
		qualifying++
		if qualifying > e.maxDates {
			break
		}
		raw := day.Format(rawDateLayout)
		if selectedDate != "" && raw != selectedDate {
			continue
		}

		var open []string
		for _, t := range candidateTimes(p.WorkStart, p.WorkEnd) {
			if _, taken := reserved[raw+" "+t]; !taken {
				open = append(open, t)
			}
		}
		if len(open) == 0 {
			continue
		}
		avail.Dates = append(avail.Dates, DateOption{Raw: raw, Display: day.Format(displayDateLayout)})
		avail.SlotsByDate[raw] = open
	}
	return avail, nil
}

// SuggestAlternatives offers up to three other same-day slots and up to
// three later dates, each with up to three open times.
func (e *Engine) SuggestAlternatives(ctx context.Context, p directory.Provider, preferredDate, preferredTime string) (*Alternatives, error) {
	avail, err := e.AvailableSlots(ctx, p, "")
	if err != nil {
		return nil, err
	}

	alt := &Alternatives{LaterSlots: map[string][]string{}}
	for _, t := range avail.SlotsFor(preferredDate) {
		if t == preferredTime {
			continue
		}
		if len(alt.SameDay) < maxAlternatives {
			alt.SameDay = append(alt.SameDay, t)
		}
	}
	for _, d := range avail.Dates {
		if d.Raw <= preferredDate {
			continue
		}
		if len(alt.LaterDates) >= maxAlternatives {
			break
		}
		slots := avail.SlotsFor(d.Raw)
		if len(slots) > maxAlternatives {
			slots = slots[:maxAlternatives]
		}
		alt.LaterDates = append(alt.LaterDates, d)
		alt.LaterSlots[d.Raw] = slots
	}
	return alt, nil
}

// ValidateBooking re-runs availability for the requested date and checks
// the user is not already booked at the same moment. Runs right before
// the reservation commit so the slot view is as fresh as possible.
func (e *Engine) ValidateBooking(ctx context.Context, p directory.Provider, req BookingRequest) error {
	avail, err := e.AvailableSlots(ctx, p, req.Date)
	if err != nil {
		return err
	}
	open := false
	for _, t := range avail.SlotsFor(req.Date) {
		if t == req.Time {
			open = true
			break
		}
	}
	if !open {
		return ErrSlotTaken
	}

	if req.UserID != "" {
		existing, err := e.reservations.ListForUser(ctx, req.UserID, req.Date, req.Date)
		if err != nil {
			return fmt.Errorf("schedule: list user reservations: %w", err)
		}
		for _, r := range existing {
			if r.Active() && r.Date == req.Date && r.Time == req.Time {
				return ErrDoubleBooked
			}
		}
	}
	return nil
}

func (e *Engine) reservedTimes(ctx context.Context, providerID, from, to string) (map[string]struct{}, error) {
	list, err := e.reservations.ListForProvider(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("schedule: list provider reservations: %w", err)
	}
	out := make(map[string]struct{}, len(list))
	for _, r := range list {
		if r.Active() {
			out[r.Date+" "+r.Time] = struct{}{}
		}
	}
	return out, nil
}

// candidateTimes yields hourly and half-hourly marks in [start, end).
func candidateTimes(start, end int) []string {
	var out []string
	for h := start; h < end; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h), fmt.Sprintf("%02d:30", h))
	}
	return out
}
