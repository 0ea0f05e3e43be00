package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultly/dialog-engine/internal/directory"
	"github.com/consultly/dialog-engine/internal/observability/metrics"
	"github.com/consultly/dialog-engine/internal/schedule"
	"github.com/consultly/dialog-engine/pkg/logging"
)

// fixedNow is a Sunday; the following Monday is 2026-03-02.
var fixedNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type fakeReservations struct {
	reservations []schedule.Reservation
	created      []schedule.Reservation
	createErr    error
	listErr      error
}

func (f *fakeReservations) ListForProvider(_ context.Context, providerID string, from, to string) ([]schedule.Reservation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []schedule.Reservation
	for _, r := range f.reservations {
		if r.ProviderID == providerID && r.Date >= from && r.Date <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReservations) ListForUser(_ context.Context, userID string, from, to string) ([]schedule.Reservation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []schedule.Reservation
	for _, r := range f.reservations {
		if r.UserID == userID && r.Date >= from && r.Date <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReservations) Create(_ context.Context, r schedule.Reservation) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, r)
	return "res-42", nil
}

func testProvider() directory.Provider {
	return directory.Provider{
		ID:       "p1",
		Name:     "Strategic Business Partners",
		Category: "business",
		Mode:     "both",
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		WorkStart:  9,
		WorkEnd:    17,
		PriceCents: 15000,
	}
}

func newTestFlow(store *fakeReservations, decider SettlementDecider) *Flow {
	engine := schedule.NewEngine(store, schedule.WithClock(func() time.Time { return fixedNow }))
	return NewFlow(engine, store, decider, logging.Default())
}

// driveToConfirm walks a fresh flow to the CONFIRM step.
func driveToConfirm(t *testing.T, f *Flow) *State {
	t.Helper()
	ctx := context.Background()

	res, err := f.Start(ctx, []directory.Provider{testProvider()}, "Strategic Business Partners")
	require.NoError(t, err)
	require.Equal(t, StepSelectDate, res.State.Step)

	res, err = f.Advance(ctx, res.State, "1", "u1")
	require.NoError(t, err)
	require.Equal(t, StepSelectTime, res.State.Step)

	res, err = f.Advance(ctx, res.State, "10:00", "u1")
	require.NoError(t, err)
	require.Equal(t, StepSelectMode, res.State.Step)

	res, err = f.Advance(ctx, res.State, "online please", "u1")
	require.NoError(t, err)
	require.Equal(t, StepConfirm, res.State.Step)
	return res.State
}

func TestStartWithResolvableHintSkipsProviderStep(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})

	res, err := f.Start(context.Background(), []directory.Provider{testProvider()}, "Strategic Busines Partner")
	require.NoError(t, err)

	assert.Equal(t, StepSelectDate, res.State.Step)
	require.NotNil(t, res.State.Provider)
	assert.Equal(t, "p1", res.State.Provider.ID)
	assert.Len(t, res.State.Dates, 7)
	assert.Contains(t, res.Reply, "Which date")
}

func TestStartWithoutHintPromptsForProvider(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})

	res, err := f.Start(context.Background(), []directory.Provider{testProvider()}, "")
	require.NoError(t, err)

	assert.Equal(t, StepSelectProvider, res.State.Step)
	assert.Contains(t, res.Reply, "1. Strategic Business Partners")
}

func TestSelectProviderByIndex(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})

	res, err := f.Start(context.Background(), []directory.Provider{testProvider()}, "")
	require.NoError(t, err)

	res, err = f.Advance(context.Background(), res.State, "1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StepSelectDate, res.State.Step)
}

func TestSelectProviderUnresolvableReprompts(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})

	res, err := f.Start(context.Background(), []directory.Provider{testProvider()}, "")
	require.NoError(t, err)

	res, err = f.Advance(context.Background(), res.State, "xyzzy 999", "u1")
	require.NoError(t, err)
	assert.Equal(t, StepSelectProvider, res.State.Step)
	assert.Contains(t, res.Reply, "couldn't match")
}

func TestSelectDateInvalidInputLeavesStateUnchanged(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})

	res, err := f.Start(context.Background(), []directory.Provider{testProvider()}, "Strategic Business Partners")
	require.NoError(t, err)
	before := *res.State

	res, err = f.Advance(context.Background(), res.State, "31/02/2025", "u1")
	require.NoError(t, err)

	assert.Equal(t, StepSelectDate, res.State.Step)
	assert.Equal(t, before.Dates, res.State.Dates)
	assert.Empty(t, res.State.Date)
	assert.Contains(t, res.Reply, "isn't available")
	assert.Contains(t, res.Reply, before.Dates[0].Display, "re-prompt must list the original dates")
}

func TestSelectDateByDisplayText(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})

	res, err := f.Start(context.Background(), []directory.Provider{testProvider()}, "Strategic Business Partners")
	require.NoError(t, err)

	res, err = f.Advance(context.Background(), res.State, "monday, mar 2", "u1")
	require.NoError(t, err)
	assert.Equal(t, StepSelectTime, res.State.Step)
	assert.Equal(t, "2026-03-02", res.State.Date)
}

func TestSelectTimeInvalidReprompts(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})

	res, err := f.Start(context.Background(), []directory.Provider{testProvider()}, "Strategic Business Partners")
	require.NoError(t, err)
	res, err = f.Advance(context.Background(), res.State, "1", "u1")
	require.NoError(t, err)

	res, err = f.Advance(context.Background(), res.State, "23:59", "u1")
	require.NoError(t, err)
	assert.Equal(t, StepSelectTime, res.State.Step)
	assert.Empty(t, res.State.Time)
}

func TestSelectTimeWithoutLeadingZero(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})

	res, err := f.Start(context.Background(), []directory.Provider{testProvider()}, "Strategic Business Partners")
	require.NoError(t, err)
	res, err = f.Advance(context.Background(), res.State, "1", "u1")
	require.NoError(t, err)

	res, err = f.Advance(context.Background(), res.State, "9:30", "u1")
	require.NoError(t, err)
	assert.Equal(t, "09:30", res.State.Time)
}

func TestSelectModeInvalidReprompts(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})

	res, err := f.Start(context.Background(), []directory.Provider{testProvider()}, "Strategic Business Partners")
	require.NoError(t, err)
	res, err = f.Advance(context.Background(), res.State, "1", "u1")
	require.NoError(t, err)
	res, err = f.Advance(context.Background(), res.State, "10:00", "u1")
	require.NoError(t, err)

	res, err = f.Advance(context.Background(), res.State, "carrier pigeon", "u1")
	require.NoError(t, err)
	assert.Equal(t, StepSelectMode, res.State.Step)
}

func TestConfirmRejectionCancels(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})
	st := driveToConfirm(t, f)

	res, err := f.Advance(context.Background(), st, "actually no", "u1")
	require.NoError(t, err)
	assert.Equal(t, StepCancelled, res.State.Step)
	assert.Equal(t, ActionCancelled, res.Action)
}

func TestHappyPathCompletesWithReceipt(t *testing.T) {
	store := &fakeReservations{}
	f := newTestFlow(store, StaticDecider{Outcome: true})
	st := driveToConfirm(t, f)

	res, err := f.Advance(context.Background(), st, "yes", "u1")
	require.NoError(t, err)
	require.Equal(t, StepSelectPayment, res.State.Step)

	res, err = f.Advance(context.Background(), res.State, "card", "u1")
	require.NoError(t, err)

	assert.Equal(t, StepCompleted, res.State.Step)
	assert.Equal(t, ActionCompleted, res.Action)
	require.NotNil(t, res.State.Receipt)
	assert.Equal(t, "res-42", res.State.Receipt.ReservationID)
	assert.Equal(t, "card", res.State.Receipt.PaymentMethod)
	assert.Equal(t, int64(15000), res.State.Receipt.FeeCents)
	assert.Contains(t, res.State.Receipt.ID, "RCP-")

	require.Len(t, store.created, 1)
	assert.Equal(t, "2026-03-02", store.created[0].Date)
	assert.Equal(t, "10:00", store.created[0].Time)
	assert.Equal(t, "online", store.created[0].Mode)
}

func TestPaymentFailureReturnsToSelectPayment(t *testing.T) {
	store := &fakeReservations{}
	f := newTestFlow(store, StaticDecider{Outcome: false})
	st := driveToConfirm(t, f)

	res, err := f.Advance(context.Background(), st, "yes", "u1")
	require.NoError(t, err)
	res, err = f.Advance(context.Background(), res.State, "paypal", "u1")
	require.NoError(t, err)

	assert.Equal(t, StepSelectPayment, res.State.Step)
	assert.Equal(t, ActionPaymentRetry, res.Action)
	assert.Empty(t, store.created, "declined settlement must not create a reservation")
}

func TestInvalidPaymentMethodReprompts(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})
	st := driveToConfirm(t, f)

	res, err := f.Advance(context.Background(), st, "yes", "u1")
	require.NoError(t, err)
	res, err = f.Advance(context.Background(), res.State, "cowrie shells", "u1")
	require.NoError(t, err)

	assert.Equal(t, StepSelectPayment, res.State.Step)
	assert.Contains(t, res.Reply, "payment method")
}

func TestSlotConflictAtSettlementOffersAlternatives(t *testing.T) {
	store := &fakeReservations{}
	f := newTestFlow(store, StaticDecider{Outcome: true})
	st := driveToConfirm(t, f)

	// Someone grabs the slot between confirmation and payment.
	store.reservations = append(store.reservations, schedule.Reservation{
		ProviderID: "p1", Date: "2026-03-02", Time: "10:00", Status: schedule.StatusConfirmed,
	})

	res, err := f.Advance(context.Background(), st, "yes", "u1")
	require.NoError(t, err)
	res, err = f.Advance(context.Background(), res.State, "card", "u1")
	require.NoError(t, err)

	assert.Equal(t, ActionSlotConflict, res.Action)
	assert.Equal(t, StepSelectDate, res.State.Step)
	assert.Contains(t, res.Reply, "just taken")
	assert.Empty(t, store.created)
}

func TestUpstreamFailureLeavesStateUntouched(t *testing.T) {
	store := &fakeReservations{}
	f := newTestFlow(store, StaticDecider{Outcome: true})
	st := driveToConfirm(t, f)

	res, err := f.Advance(context.Background(), st, "yes", "u1")
	require.NoError(t, err)
	paymentState := res.State

	store.listErr = errors.New("store down")
	_, err = f.Advance(context.Background(), paymentState, "card", "u1")
	require.Error(t, err)
	assert.Equal(t, StepSelectPayment, paymentState.Step, "caller's state must be unchanged on upstream failure")
	assert.Empty(t, paymentState.PaymentMethod)
}

func TestFlowPublishesSettlementAndResolutionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDialogMetrics(reg)

	store := &fakeReservations{}
	engine := schedule.NewEngine(store, schedule.WithClock(func() time.Time { return fixedNow }))
	f := NewFlow(engine, store, StaticDecider{Outcome: true}, logging.Default(), WithMetrics(m))

	st := driveToConfirm(t, f)
	res, err := f.Advance(context.Background(), st, "yes", "u1")
	require.NoError(t, err)
	_, err = f.Advance(context.Background(), res.State, "card", "u1")
	require.NoError(t, err)

	assert.EqualValues(t, 1, histogramSampleCount(t, reg, "consultly_dialog_provider_resolution_score"))
	assert.InDelta(t, 1, counterValue(t, reg, "consultly_dialog_payment_attempts_total", "result", "approved"), 0.001)
}

func TestDeclinedSettlementCountsAsDeclined(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDialogMetrics(reg)

	store := &fakeReservations{}
	engine := schedule.NewEngine(store, schedule.WithClock(func() time.Time { return fixedNow }))
	f := NewFlow(engine, store, StaticDecider{Outcome: false}, logging.Default(), WithMetrics(m))

	st := driveToConfirm(t, f)
	res, err := f.Advance(context.Background(), st, "yes", "u1")
	require.NoError(t, err)
	res, err = f.Advance(context.Background(), res.State, "paypal", "u1")
	require.NoError(t, err)
	require.Equal(t, ActionPaymentRetry, res.Action)

	assert.InDelta(t, 1, counterValue(t, reg, "consultly_dialog_payment_attempts_total", "result", "declined"), 0.001)
}

func histogramSampleCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, mm := range mf.GetMetric() {
			for _, lp := range mm.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return mm.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}

func TestAdvanceTerminalStateErrors(t *testing.T) {
	f := newTestFlow(&fakeReservations{}, StaticDecider{Outcome: true})

	_, err := f.Advance(context.Background(), &State{Step: StepCompleted}, "hello", "u1")
	assert.ErrorIs(t, err, ErrTerminalState)

	_, err = f.Advance(context.Background(), nil, "hello", "u1")
	assert.ErrorIs(t, err, ErrTerminalState)
}
