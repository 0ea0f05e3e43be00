package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/consultly/dialog-engine/internal/directory"
	"github.com/consultly/dialog-engine/internal/observability/metrics"
	"github.com/consultly/dialog-engine/internal/schedule"
	"github.com/consultly/dialog-engine/pkg/logging"
)

// Flow actions reported to the orchestrator.
const (
	ActionPrompt         = "booking_prompt"
	ActionCompleted      = "booking_completed"
	ActionCancelled      = "booking_cancelled"
	ActionPaymentRetry   = "booking_payment_retry"
	ActionSlotConflict   = "booking_slot_conflict"
	ActionNoAvailability = "booking_no_availability"
)

// ErrTerminalState is returned when input arrives for a completed or
// cancelled flow; the caller should drop the state and reclassify.
var ErrTerminalState = errors.New("booking: flow already terminal")

var paymentMethods = []string{"card", "paypal", "bank transfer"}

var affirmatives = []string{
	"yes", "yeah", "yep", "y", "sure", "ok", "okay",
	"confirm", "confirmed", "correct", "go ahead",
}

// Result is the outcome of one flow step.
type Result struct {
	State  *State
	Reply  string
	Action string
}

// Flow advances booking states. It holds no per-conversation state of
// its own; everything lives in the State record passed in and out.
type Flow struct {
	slots        *schedule.Engine
	reservations schedule.ReservationStore
	settle       SettlementDecider
	logger       *logging.Logger
	metrics      *metrics.DialogMetrics
	now          func() time.Time
}

// FlowOption tunes the flow.
type FlowOption func(*Flow)

// WithMetrics publishes settlement results and accepted resolution
// scores.
func WithMetrics(m *metrics.DialogMetrics) FlowOption {
	return func(f *Flow) {
		f.metrics = m
	}
}

// NewFlow wires the state machine to its collaborators.
func NewFlow(slots *schedule.Engine, reservations schedule.ReservationStore, settle SettlementDecider, logger *logging.Logger, opts ...FlowOption) *Flow {
	if slots == nil {
		panic("booking: slot engine cannot be nil")
	}
	if reservations == nil {
		panic("booking: reservation store cannot be nil")
	}
	if settle == nil {
		panic("booking: settlement decider cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	f := &Flow{
		slots:        slots,
		reservations: reservations,
		settle:       settle,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start opens a new flow over the candidate list. When providerHint
// resolves against the candidates the provider step is skipped and date
// selection begins immediately.
func (f *Flow) Start(ctx context.Context, candidates []directory.Provider, providerHint string) (*Result, error) {
	st := &State{Step: StepSelectProvider, Candidates: candidates}

	if providerHint != "" {
		if m, ok := directory.Resolve(providerHint, candidates, directory.PrimaryThreshold); ok {
			f.metrics.ObserveResolutionScore(m.Score)
			return f.beginDateSelection(ctx, st, m.Provider)
		}
	}
	if len(candidates) == 0 {
		return &Result{
			State:  st,
			Reply:  "Who would you like to book with? Tell me the provider's name, or search for one first.",
			Action: ActionPrompt,
		}, nil
	}
	return &Result{State: st, Reply: providerPrompt(candidates), Action: ActionPrompt}, nil
}

// Advance feeds one user input into the flow. The returned State is a
// new record; on upstream failure the caller's State is untouched so no
// partial transition is ever committed.
func (f *Flow) Advance(ctx context.Context, st *State, input, userID string) (*Result, error) {
	if st == nil || st.Step.Terminal() {
		return nil, ErrTerminalState
	}
	input = strings.TrimSpace(input)

	switch st.Step {
	case StepSelectProvider:
		return f.selectProvider(ctx, st, input)
	case StepSelectDate:
		return f.selectDate(st, input)
	case StepSelectTime:
		return f.selectTime(st, input)
	case StepSelectMode:
		return f.selectMode(st, input)
	case StepConfirm:
		return f.confirm(st, input)
	case StepSelectPayment:
		return f.selectPayment(ctx, st, input, userID)
	default:
		return nil, ErrTerminalState
	}
}

func (f *Flow) selectProvider(ctx context.Context, st *State, input string) (*Result, error) {
	if idx, ok := parseIndex(input, len(st.Candidates)); ok {
		return f.beginDateSelection(ctx, st, st.Candidates[idx])
	}
	// The user was shown the list already, so the looser threshold is
	// acceptable here.
	if m, ok := directory.Resolve(input, st.Candidates, directory.LooseThreshold); ok {
		f.metrics.ObserveResolutionScore(m.Score)
		return f.beginDateSelection(ctx, st, m.Provider)
	}

	reply := "I couldn't match that to a provider."
	if len(st.Candidates) > 0 {
		reply += " " + providerPrompt(st.Candidates)
	} else {
		reply += " Tell me the provider's name, or search for one first."
	}
	return &Result{State: st, Reply: reply, Action: ActionPrompt}, nil
}

func (f *Flow) beginDateSelection(ctx context.Context, st *State, p directory.Provider) (*Result, error) {
	avail, err := f.slots.AvailableSlots(ctx, p, "")
	if err != nil {
		return nil, err
	}
	if len(avail.Dates) == 0 {
		return &Result{
			State:  st,
			Reply:  fmt.Sprintf("%s has no open slots in the next two weeks. Would you like to pick someone else?", p.Name),
			Action: ActionNoAvailability,
		}, nil
	}

	next := *st
	next.Provider = &p
	next.Step = StepSelectDate
	next.Dates = avail.Dates
	next.SlotsByDate = avail.SlotsByDate
	next.Date, next.Time = "", ""
	return &Result{
		State:  &next,
		Reply:  fmt.Sprintf("Booking with %s. %s", p.Name, datePrompt(avail.Dates)),
		Action: ActionPrompt,
	}, nil
}

func (f *Flow) selectDate(st *State, input string) (*Result, error) {
	raw, ok := matchDate(input, st.Dates)
	if !ok {
		return &Result{
			State:  st,
			Reply:  "That date isn't available. " + datePrompt(st.Dates),
			Action: ActionPrompt,
		}, nil
	}

	next := *st
	next.Date = raw
	next.Step = StepSelectTime
	return &Result{
		State:  &next,
		Reply:  timePrompt(displayFor(st.Dates, raw), st.SlotsByDate[raw]),
		Action: ActionPrompt,
	}, nil
}

func (f *Flow) selectTime(st *State, input string) (*Result, error) {
	slots := st.SlotsByDate[st.Date]
	chosen, ok := matchTime(input, slots)
	if !ok {
		return &Result{
			State:  st,
			Reply:  "That time isn't available. " + timePrompt(displayFor(st.Dates, st.Date), slots),
			Action: ActionPrompt,
		}, nil
	}

	next := *st
	next.Time = chosen
	next.Step = StepSelectMode
	return &Result{
		State:  &next,
		Reply:  "Would you prefer the session online or offline (in person)?",
		Action: ActionPrompt,
	}, nil
}

func (f *Flow) selectMode(st *State, input string) (*Result, error) {
	mode, ok := matchMode(input)
	if !ok {
		return &Result{
			State:  st,
			Reply:  `Please answer "online" or "offline".`,
			Action: ActionPrompt,
		}, nil
	}

	next := *st
	next.Mode = mode
	next.Step = StepConfirm
	return &Result{
		State:  &next,
		Reply:  confirmPrompt(&next),
		Action: ActionPrompt,
	}, nil
}

func (f *Flow) confirm(st *State, input string) (*Result, error) {
	if !isAffirmative(input) {
		next := *st
		next.Step = StepCancelled
		return &Result{
			State:  &next,
			Reply:  "No problem, I've cancelled that booking. Let me know if you'd like to start over.",
			Action: ActionCancelled,
		}, nil
	}

	next := *st
	next.Step = StepSelectPayment
	return &Result{State: &next, Reply: paymentPrompt(), Action: ActionPrompt}, nil
}

func (f *Flow) selectPayment(ctx context.Context, st *State, input, userID string) (*Result, error) {
	method, ok := matchPaymentMethod(input)
	if !ok {
		return &Result{
			State:  st,
			Reply:  "I didn't catch that payment method. " + paymentPrompt(),
			Action: ActionPrompt,
		}, nil
	}

	next := *st
	next.PaymentMethod = method
	next.Step = StepProcessPayment
	return f.processPayment(ctx, &next, userID)
}

// processPayment is not user-input-driven: it validates the slot once
// more, runs the simulated settlement, and either completes the flow or
// sends the user back to payment selection.
func (f *Flow) processPayment(ctx context.Context, st *State, userID string) (*Result, error) {
	p := st.Provider
	req := schedule.BookingRequest{
		ProviderID: p.ID,
		UserID:     userID,
		Date:       st.Date,
		Time:       st.Time,
	}

	if err := f.slots.ValidateBooking(ctx, *p, req); err != nil {
		switch {
		case errors.Is(err, schedule.ErrSlotTaken), errors.Is(err, schedule.ErrDoubleBooked):
			return f.offerAlternatives(ctx, st, err)
		default:
			return nil, err
		}
	}

	approved := f.settle.Approve(ctx, p.PriceCents)
	f.metrics.ObservePayment(approved)
	if !approved {
		next := *st
		next.Step = StepSelectPayment
		next.PaymentMethod = ""
		f.logger.Info("simulated settlement declined",
			"provider_id", p.ID, "fee_cents", p.PriceCents)
		return &Result{
			State:  &next,
			Reply:  "The payment didn't go through. " + paymentPrompt(),
			Action: ActionPaymentRetry,
		}, nil
	}

	reservationID, err := f.reservations.Create(ctx, schedule.Reservation{
		ProviderID: p.ID,
		UserID:     userID,
		Date:       st.Date,
		Time:       st.Time,
		Mode:       st.Mode,
		FeeCents:   p.PriceCents,
		Status:     schedule.StatusConfirmed,
	})
	if err != nil {
		return nil, err
	}

	next := *st
	next.Step = StepCompleted
	next.Receipt = &Receipt{
		ID:            "RCP-" + uuid.NewString(),
		ReservationID: reservationID,
		ProviderID:    p.ID,
		ProviderName:  p.Name,
		Date:          next.Date,
		Time:          next.Time,
		Mode:          next.Mode,
		FeeCents:      p.PriceCents,
		PaymentMethod: next.PaymentMethod,
		IssuedAt:      f.now().UTC(),
	}
	f.logger.Info("booking completed",
		"provider_id", p.ID, "reservation_id", reservationID, "date", next.Date, "time", next.Time)
	return &Result{
		State:  &next,
		Reply:  receiptText(next.Receipt),
		Action: ActionCompleted,
	}, nil
}

// offerAlternatives handles a conflict discovered at settlement time:
// the availability list is refreshed and the user returns to date
// selection with concrete options.
func (f *Flow) offerAlternatives(ctx context.Context, st *State, cause error) (*Result, error) {
	alt, err := f.slots.SuggestAlternatives(ctx, *st.Provider, st.Date, st.Time)
	if err != nil {
		return nil, err
	}
	avail, err := f.slots.AvailableSlots(ctx, *st.Provider, "")
	if err != nil {
		return nil, err
	}

	next := *st
	next.Step = StepSelectDate
	next.Dates = avail.Dates
	next.SlotsByDate = avail.SlotsByDate
	next.Date, next.Time = "", ""

	var b strings.Builder
	if errors.Is(cause, schedule.ErrDoubleBooked) {
		b.WriteString("You already have a booking at that time.")
	} else {
		b.WriteString("Sorry, that slot was just taken.")
	}
	if len(alt.SameDay) > 0 {
		b.WriteString(" Same day I still have " + strings.Join(alt.SameDay, ", ") + ".")
	}
	if len(next.Dates) > 0 {
		b.WriteString(" " + datePrompt(next.Dates))
	}
	return &Result{State: &next, Reply: b.String(), Action: ActionSlotConflict}, nil
}

func providerPrompt(candidates []directory.Provider) string {
	var b strings.Builder
	b.WriteString("Who would you like to book with?")
	for i, p := range candidates {
		fmt.Fprintf(&b, "\n%d. %s (%s, %s)", i+1, p.Name, p.Category, money(p.PriceCents))
	}
	return b.String()
}

func datePrompt(dates []schedule.DateOption) string {
	var b strings.Builder
	b.WriteString("Which date works for you?")
	for i, d := range dates {
		fmt.Fprintf(&b, "\n%d. %s", i+1, d.Display)
	}
	return b.String()
}

func timePrompt(display string, slots []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Available times on %s:", display)
	for i, t := range slots {
		fmt.Fprintf(&b, "\n%d. %s", i+1, t)
	}
	return b.String()
}

func confirmPrompt(st *State) string {
	return fmt.Sprintf("To confirm: %s on %s at %s, %s, fee %s. Shall I book it?",
		st.Provider.Name, displayFor(st.Dates, st.Date), st.Time, st.Mode, money(st.Provider.PriceCents))
}

func paymentPrompt() string {
	var b strings.Builder
	b.WriteString("How would you like to pay?")
	for i, m := range paymentMethods {
		fmt.Fprintf(&b, "\n%d. %s", i+1, m)
	}
	return b.String()
}

func receiptText(r *Receipt) string {
	return fmt.Sprintf("You're booked! %s on %s at %s (%s). Fee %s paid by %s. Your receipt id is %s.",
		r.ProviderName, r.Date, r.Time, r.Mode, money(r.FeeCents), r.PaymentMethod, r.ID)
}

func displayFor(dates []schedule.DateOption, raw string) string {
	for _, d := range dates {
		if d.Raw == raw {
			return d.Display
		}
	}
	return raw
}

func money(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}

func parseIndex(input string, n int) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(input), "."))
	if err != nil || idx < 1 || idx > n {
		return 0, false
	}
	return idx - 1, true
}

func matchDate(input string, dates []schedule.DateOption) (string, bool) {
	if idx, ok := parseIndex(input, len(dates)); ok {
		return dates[idx].Raw, true
	}
	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" {
		return "", false
	}
	for _, d := range dates {
		if needle == d.Raw || needle == strings.ToLower(d.Display) {
			return d.Raw, true
		}
	}
	// Partial display match ("mar 2") only when long enough to be
	// unambiguous in a 7-entry list.
	if len(needle) >= 5 {
		for _, d := range dates {
			if strings.Contains(strings.ToLower(d.Display), needle) {
				return d.Raw, true
			}
		}
	}
	return "", false
}

func matchTime(input string, slots []string) (string, bool) {
	if idx, ok := parseIndex(input, len(slots)); ok {
		return slots[idx], true
	}
	needle := strings.TrimSpace(input)
	// "9:00" means "09:00".
	if len(needle) == 4 && needle[1] == ':' {
		needle = "0" + needle
	}
	for _, s := range slots {
		if s == needle {
			return s, true
		}
	}
	return "", false
}

func matchMode(input string) (string, bool) {
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "online") || strings.Contains(lower, "virtual") || strings.Contains(lower, "remote"):
		return "online", true
	case strings.Contains(lower, "offline") || strings.Contains(lower, "in person") || strings.Contains(lower, "in-person"):
		return "offline", true
	}
	return "", false
}

func matchPaymentMethod(input string) (string, bool) {
	if idx, ok := parseIndex(input, len(paymentMethods)); ok {
		return paymentMethods[idx], true
	}
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "card") || strings.Contains(lower, "credit") || strings.Contains(lower, "debit"):
		return "card", true
	case strings.Contains(lower, "paypal"):
		return "paypal", true
	case strings.Contains(lower, "bank") || strings.Contains(lower, "transfer"):
		return "bank transfer", true
	}
	return "", false
}

func isAffirmative(input string) bool {
	lower := strings.ToLower(strings.TrimSpace(input))
	for _, a := range affirmatives {
		if lower == a || strings.HasPrefix(lower, a+" ") || strings.HasPrefix(lower, a+",") || strings.HasPrefix(lower, a+"!") {
			return true
		}
	}
	return false
}
