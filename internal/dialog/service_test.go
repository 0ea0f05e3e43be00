package dialog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultly/dialog-engine/internal/booking"
	"github.com/consultly/dialog-engine/internal/directory"
	"github.com/consultly/dialog-engine/internal/intent"
	"github.com/consultly/dialog-engine/internal/llm"
	"github.com/consultly/dialog-engine/internal/memory"
	"github.com/consultly/dialog-engine/internal/schedule"
	"github.com/consultly/dialog-engine/internal/session"
	"github.com/consultly/dialog-engine/pkg/logging"
)

// fixedNow is a Sunday; the following Monday is 2026-03-02.
var fixedNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type fakeDirectory struct {
	providers []directory.Provider
	listErr   error
}

func (f *fakeDirectory) ListProviders(_ context.Context, filter directory.Filter) ([]directory.Provider, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []directory.Provider
	for _, p := range f.providers {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.MaxPriceCents > 0 && p.PriceCents > filter.MaxPriceCents {
			continue
		}
		if filter.Mode != "" && p.Mode != "both" && p.Mode != filter.Mode {
			continue
		}
		out = append(out, p)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeDirectory) GetProvider(_ context.Context, id string) (*directory.Provider, error) {
	for _, p := range f.providers {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, directory.ErrProviderNotFound
}

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

type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, llm.Request) (string, error) {
	return "", errors.New("provider unavailable")
}

func testProviders() []directory.Provider {
	weekdays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	}
	return []directory.Provider{
		{
			ID: "p1", Name: "LegalEase Advisors", Category: "legal", Mode: "both",
			PriceCents: 20000, WorkingDays: weekdays, WorkStart: 9, WorkEnd: 17,
		},
		{
			ID: "p2", Name: "Strategic Business Partners", Category: "business", Mode: "both",
			PriceCents: 15000, WorkingDays: weekdays, WorkStart: 9, WorkEnd: 17,
		},
		{
			ID: "p3", Name: "Budget Legal Help", Category: "legal", Mode: "online",
			PriceCents: 8000, WorkingDays: weekdays, WorkStart: 10, WorkEnd: 14,
		},
	}
}

type testEnv struct {
	svc          *Service
	sessions     *session.Store
	dir          *fakeDirectory
	reservations *fakeReservations
	memory       *memory.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.Default()
	dir := &fakeDirectory{providers: testProviders()}
	reservations := &fakeReservations{}
	engine := schedule.NewEngine(reservations, schedule.WithClock(func() time.Time { return fixedNow }))
	flow := booking.NewFlow(engine, reservations, &booking.StaticDecider{Outcome: true}, logger)
	sessions := session.NewStore(logger, session.WithClock(func() time.Time { return fixedNow }))
	t.Cleanup(sessions.Close)
	mem := memory.New(memory.NewInMemoryStore(), logger)

	svc := NewService(sessions, intent.NewClassifier(), dir, flow, mem, llm.NewTemplateCompleter(), nil, logger)
	return &testEnv{svc: svc, sessions: sessions, dir: dir, reservations: reservations, memory: mem}
}

func TestProcessMessageRejectsEmptyText(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.ProcessMessage(context.Background(), Request{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestProcessMessageAssignsSessionID(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.svc.ProcessMessage(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, ActionGeneralReply, resp.ActionType)
}

func TestProcessMessageSearchPath(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.svc.ProcessMessage(context.Background(), Request{
		Text:      "I need a lawyer for contract review",
		SessionID: "s1",
		UserID:    "u1",
	})
	require.NoError(t, err)

	assert.Equal(t, ActionSearchResults, resp.ActionType)
	assert.Equal(t, "legal", resp.Entities.Category)
	require.Len(t, resp.CandidateProviders, 2)
	assert.Contains(t, resp.Reply, "LegalEase Advisors")
	assert.Contains(t, resp.Reply, "Budget Legal Help")
	assert.NotEmpty(t, resp.SuggestedActions)
	assert.LessOrEqual(t, len(resp.SuggestedActions), 3)

	sctx, ok := env.sessions.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 1, sctx.MessageCount)
	assert.Len(t, sctx.LastResults, 2)
}

func TestProcessMessageNoResults(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.svc.ProcessMessage(context.Background(), Request{
		Text:      "I need a lawyer under $10",
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, ActionNoResults, resp.ActionType)
	assert.Empty(t, resp.CandidateProviders)
}

func TestProcessMessageBookingFlowEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	send := func(text string) *Response {
		t.Helper()
		resp, err := env.svc.ProcessMessage(ctx, Request{Text: text, SessionID: "s1", UserID: "u1"})
		require.NoError(t, err)
		return resp
	}

	send("I need a lawyer")
	resp := send("book with Budget Legal Help")
	assert.Equal(t, booking.ActionPrompt, resp.ActionType)
	require.NotNil(t, resp.BookingState)
	assert.Equal(t, booking.StepSelectDate, resp.BookingState.Step)

	resp = send("1") // first date
	assert.Equal(t, booking.StepSelectTime, resp.BookingState.Step)
	resp = send("10:00")
	assert.Equal(t, booking.StepSelectMode, resp.BookingState.Step)
	resp = send("online")
	assert.Equal(t, booking.StepConfirm, resp.BookingState.Step)
	resp = send("yes")
	assert.Equal(t, booking.StepSelectPayment, resp.BookingState.Step)
	resp = send("card")

	assert.Equal(t, booking.ActionCompleted, resp.ActionType)
	require.NotNil(t, resp.BookingState.Receipt)
	assert.Contains(t, resp.Reply, resp.BookingState.Receipt.ID)
	require.Len(t, env.reservations.created, 1)
	assert.Equal(t, "p3", env.reservations.created[0].ProviderID)

	// The completed flow is destroyed; the next message reclassifies.
	sctx, ok := env.sessions.Get("s1")
	require.True(t, ok)
	assert.Nil(t, sctx.Booking)
}

func TestProcessMessageInvalidDateStaysInPlace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ProcessMessage(ctx, Request{Text: "I need a lawyer", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)
	resp, err := env.svc.ProcessMessage(ctx, Request{Text: "book with LegalEase", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, booking.StepSelectDate, resp.BookingState.Step)
	originalDates := resp.BookingState.Dates

	resp, err = env.svc.ProcessMessage(ctx, Request{Text: "31/02/2025", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, booking.StepSelectDate, resp.BookingState.Step)
	assert.Equal(t, originalDates, resp.BookingState.Dates)
	for _, d := range originalDates {
		assert.Contains(t, resp.Reply, d.Display)
	}
}

func TestProcessMessageMemoryRecall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ProcessMessage(ctx, Request{Text: "I need a lawyer", SessionID: "s1"})
	require.NoError(t, err)

	resp, err := env.svc.ProcessMessage(ctx, Request{Text: "show me the previous ones again", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, ActionMemoryRecall, resp.ActionType)
	assert.Contains(t, resp.Reply, "LegalEase Advisors")
}

func TestProcessMessageCheaperRecall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ProcessMessage(ctx, Request{Text: "I need a lawyer", SessionID: "s1"})
	require.NoError(t, err)
	// Pin the last result set to the pricier provider only, as if that
	// was all the earlier search surfaced.
	env.sessions.Update("s1", session.Changes{
		LastResults: []directory.Provider{testProviders()[0]},
	})

	resp, err := env.svc.ProcessMessage(ctx, Request{Text: "do you have something cheaper", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, ActionMemoryRecall, resp.ActionType)
	require.Len(t, resp.CandidateProviders, 1)
	assert.Equal(t, "Budget Legal Help", resp.CandidateProviders[0].Name)
}

func TestProcessMessageRecallWithoutResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// One prior turn so the backreference has history, but no results.
	_, err := env.svc.ProcessMessage(ctx, Request{Text: "hello", SessionID: "s1"})
	require.NoError(t, err)

	resp, err := env.svc.ProcessMessage(ctx, Request{Text: "show me the same as before", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, ActionMemoryRecall, resp.ActionType)
	assert.Contains(t, resp.Reply, "don't have earlier results")
}

func TestProcessMessageProblemGuidance(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.svc.ProcessMessage(context.Background(), Request{
		Text:      "I'm struggling with my business finances",
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, ActionProblemGuidance, resp.ActionType)
	assert.NotEmpty(t, resp.Reply)
}

func TestProcessMessageCompletionFailureDegradesToTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.svc.completer = failingCompleter{}

	resp, err := env.svc.ProcessMessage(context.Background(), Request{
		Text:      "I'm struggling with my business finances",
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, ActionProblemGuidance, resp.ActionType)
	assert.Contains(t, resp.Reply, "consultant")
}

func TestProcessMessageUpstreamFailureLeavesSessionUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ProcessMessage(ctx, Request{Text: "I need a lawyer", SessionID: "s1"})
	require.NoError(t, err)
	before, ok := env.sessions.Get("s1")
	require.True(t, ok)

	env.dir.listErr = errors.New("connection refused")
	resp, err := env.svc.ProcessMessage(ctx, Request{Text: "find me a marketing expert", SessionID: "s1"})

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.NotNil(t, resp)
	assert.Equal(t, ActionUpstreamError, resp.ActionType)
	assert.Equal(t, apologyReply, resp.Reply)

	after, ok := env.sessions.Get("s1")
	require.True(t, ok)
	assert.Equal(t, before.MessageCount, after.MessageCount)
	assert.Equal(t, before.Entities, after.Entities)
}

func TestProcessMessageClarification(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.svc.ProcessMessage(context.Background(), Request{Text: "I'm not sure what I need", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, ActionClarification, resp.ActionType)
}

func TestProcessMessageClarificationUsesKnownCategory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ProcessMessage(ctx, Request{Text: "I need a lawyer", SessionID: "s1"})
	require.NoError(t, err)
	resp, err := env.svc.ProcessMessage(ctx, Request{Text: "not sure about this", SessionID: "s1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "legal")
}

func TestProcessMessageEntitiesAccumulate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ProcessMessage(ctx, Request{Text: "I need a lawyer", SessionID: "s1"})
	require.NoError(t, err)
	resp, err := env.svc.ProcessMessage(ctx, Request{Text: "looking for one under $100", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, "legal", resp.Entities.Category)
	assert.Equal(t, int64(10000), resp.Entities.BudgetCents)
	require.Len(t, resp.CandidateProviders, 1)
	assert.Equal(t, "Budget Legal Help", resp.CandidateProviders[0].Name)
}

func TestProcessMessageAppendsTurnsToMemory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ProcessMessage(ctx, Request{Text: "I need a lawyer", SessionID: "s1"})
	require.NoError(t, err)

	turns, err := env.memory.RecentTurns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "I need a lawyer", turns[0].UserText)
	assert.Equal(t, ActionSearchResults, turns[0].Metadata.ActionType)
	assert.Equal(t, "legal", turns[0].Metadata.Category)

	sum, err := env.memory.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"legal"}, sum.Categories)
}

func TestSuggestionsFollowBookingStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ProcessMessage(ctx, Request{Text: "I need a lawyer", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)
	resp, err := env.svc.ProcessMessage(ctx, Request{Text: "book with LegalEase", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, booking.StepSelectDate, resp.BookingState.Step)
	assert.Contains(t, strings.Join(resp.SuggestedActions, " "), "number")

	for _, step := range []string{"1", "09:00", "online"} {
		resp, err = env.svc.ProcessMessage(ctx, Request{Text: step, SessionID: "s1", UserID: "u1"})
		require.NoError(t, err)
	}
	require.Equal(t, booking.StepConfirm, resp.BookingState.Step)
	assert.Equal(t, []string{"yes", "no"}, resp.SuggestedActions)
}
