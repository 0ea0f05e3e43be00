// Package dialog is the orchestrator: it owns the turn lifecycle of
// resolving session context, delegating to the booking flow or intent
// handlers, committing the resulting changes, and composing the reply.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/consultly/dialog-engine/internal/booking"
	"github.com/consultly/dialog-engine/internal/directory"
	"github.com/consultly/dialog-engine/internal/intent"
	"github.com/consultly/dialog-engine/internal/llm"
	"github.com/consultly/dialog-engine/internal/memory"
	"github.com/consultly/dialog-engine/internal/observability/metrics"
	"github.com/consultly/dialog-engine/internal/session"
	"github.com/consultly/dialog-engine/pkg/logging"
)

// Action types produced by the orchestrator itself. Booking steps carry
// the booking package's own action strings.
const (
	ActionSearchResults   = "search_results"
	ActionNoResults       = "no_results"
	ActionProblemGuidance = "problem_guidance"
	ActionMemoryRecall    = "memory_recall"
	ActionClarification   = "clarification"
	ActionGeneralReply    = "general_reply"
	ActionUpstreamError   = "upstream_error"
)

const (
	defaultMaxCandidates  = 5
	defaultRecentTurns    = 5
	defaultMaxSuggestions = 3
)

// Request is one inbound user message.
type Request struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Response is the composed result of one processed message.
type Response struct {
	Reply              string               `json:"reply"`
	SessionID          string               `json:"session_id"`
	ActionType         string               `json:"action_type"`
	Entities           session.Entities     `json:"entities"`
	CandidateProviders []directory.Provider `json:"candidate_providers,omitempty"`
	SuggestedActions   []string             `json:"suggested_actions,omitempty"`
	BookingState       *booking.State       `json:"booking_state,omitempty"`
}

// outcome is what a dispatch path hands back before the context commit.
type outcome struct {
	reply        string
	action       string
	state        string
	entities     session.Entities
	results      []directory.Provider
	booking      *booking.State
	clearBooking bool
}

// Service processes messages end to end.
type Service struct {
	sessions   *session.Store
	classifier *intent.Classifier
	dir        directory.Directory
	flow       *booking.Flow
	memory     *memory.Memory
	completer  llm.Completer
	metrics    *metrics.DialogMetrics
	logger     *logging.Logger

	maxCandidates int
	recentTurns   int
	now           func() time.Time
}

// ServiceOption tunes the orchestrator.
type ServiceOption func(*Service)

// WithMaxCandidates caps how many providers a search returns.
func WithMaxCandidates(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxCandidates = n
		}
	}
}

// WithRecentTurns sets how many prior turns prime classification.
func WithRecentTurns(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.recentTurns = n
		}
	}
}

// NewService wires the orchestrator. Metrics may be nil; a nil
// completer degrades to fixed template replies.
func NewService(
	sessions *session.Store,
	classifier *intent.Classifier,
	dir directory.Directory,
	flow *booking.Flow,
	mem *memory.Memory,
	completer llm.Completer,
	m *metrics.DialogMetrics,
	logger *logging.Logger,
	opts ...ServiceOption,
) *Service {
	if sessions == nil {
		panic("dialog: session store cannot be nil")
	}
	if classifier == nil {
		panic("dialog: classifier cannot be nil")
	}
	if dir == nil {
		panic("dialog: directory cannot be nil")
	}
	if flow == nil {
		panic("dialog: booking flow cannot be nil")
	}
	if mem == nil {
		panic("dialog: memory cannot be nil")
	}
	if completer == nil {
		completer = llm.NewTemplateCompleter()
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		sessions:      sessions,
		classifier:    classifier,
		dir:           dir,
		flow:          flow,
		memory:        mem,
		completer:     completer,
		metrics:       m,
		logger:        logger,
		maxCandidates: defaultMaxCandidates,
		recentTurns:   defaultRecentTurns,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessMessage runs one full turn. On an upstream failure the session
// is left exactly as it was, the returned Response carries a generic
// apology, and a non-nil *UpstreamError rides along for logging — the
// Response is valid to send in both cases.
func (s *Service) ProcessMessage(ctx context.Context, req Request) (*Response, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	release := s.sessions.Acquire(sessionID)
	defer release()
	started := s.now()

	sctx, found := s.sessions.Get(sessionID)
	if !found {
		sctx = s.sessions.Create(sessionID, req.UserID)
	}
	history := s.recentUserTexts(ctx, sessionID)

	var (
		out          *outcome
		intentLabel  string
		staleBooking bool
	)
	if sctx.Booking != nil && !sctx.Booking.Step.Terminal() {
		res, err := s.flow.Advance(ctx, sctx.Booking, text, req.UserID)
		switch {
		case errors.Is(err, booking.ErrTerminalState):
			// Stale or unrecognized booking state: drop it and fall
			// through to classification.
			sctx.Booking = nil
			staleBooking = true
		case err != nil:
			return s.upstreamFailure(sessionID, sctx, "booking step", err)
		default:
			out = fromFlowResult(res)
			intentLabel = "booking_flow"
		}
	}

	if out == nil {
		it := s.classifier.Recognize(text, history)
		intentLabel = string(it.Type)

		var err error
		switch it.Type {
		case intent.TypeBooking:
			out, err = s.startBooking(ctx, sctx, it)
		case intent.TypeSearch:
			out, err = s.search(ctx, sctx, it)
		case intent.TypeMemoryReference:
			out, err = s.recall(ctx, sessionID, sctx, it)
		case intent.TypeProblem:
			out = s.problem(ctx, text)
		case intent.TypeClarification:
			out = s.clarify(sctx)
		default:
			out = s.general(ctx, text)
		}
		if err != nil {
			return s.upstreamFailure(sessionID, sctx, fmt.Sprintf("%s intent", it.Type), err)
		}
	}

	updated := s.sessions.Update(sessionID, session.Changes{
		UserID:       req.UserID,
		State:        out.state,
		Entities:     out.entities,
		LastResults:  out.results,
		Booking:      out.booking,
		ClearBooking: out.clearBooking || (staleBooking && out.booking == nil),
	})

	meta := memory.TurnMetadata{
		ActionType:  out.action,
		Category:    out.entities.Category,
		ResultNames: providerNames(out.results),
	}
	if err := s.memory.AddTurn(ctx, sessionID, text, out.reply, meta); err != nil {
		// The transcript is advisory; the turn itself already committed.
		s.logger.Warn("failed to append turn to memory", "session_id", sessionID, "error", err)
	}

	s.observe(intentLabel, out, started)

	return &Response{
		Reply:              out.reply,
		SessionID:          sessionID,
		ActionType:         out.action,
		Entities:           updated.Entities,
		CandidateProviders: out.results,
		SuggestedActions:   s.suggest(updated),
		BookingState:       out.booking,
	}, nil
}

func (s *Service) startBooking(ctx context.Context, sctx session.Context, it intent.Intent) (*outcome, error) {
	hint := ""
	if it.Booking != nil {
		hint = it.Booking.ProviderHint
	}
	res, err := s.flow.Start(ctx, sctx.LastResults, hint)
	if err != nil {
		return nil, err
	}
	return fromFlowResult(res), nil
}

func (s *Service) search(ctx context.Context, sctx session.Context, it intent.Intent) (*outcome, error) {
	ent := session.Entities{}
	if it.Search != nil {
		ent = session.Entities{
			Category:    it.Search.Category,
			BudgetCents: it.Search.BudgetCents,
			Location:    it.Search.Location,
			Mode:        it.Search.Mode,
			Urgency:     it.Search.Urgency,
		}
	}
	effective := overlay(sctx.Entities, ent)

	providers, err := s.dir.ListProviders(ctx, directory.Filter{
		Category:      effective.Category,
		Location:      effective.Location,
		Mode:          effective.Mode,
		MaxPriceCents: effective.BudgetCents,
		Limit:         s.maxCandidates,
	})
	if err != nil {
		return nil, err
	}

	if len(providers) == 0 {
		what := "consultants"
		if effective.Category != "" {
			what = effective.Category + " consultants"
		}
		return &outcome{
			reply:    fmt.Sprintf("I couldn't find any %s matching your constraints. Try relaxing the budget or dropping a filter.", what),
			action:   ActionNoResults,
			state:    "searching",
			entities: ent,
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d consultants for you:", len(providers))
	writeProviderList(&b, providers)
	b.WriteString("\nReply with a number, or say \"book with <name>\" to schedule a session.")

	return &outcome{
		reply:    b.String(),
		action:   ActionSearchResults,
		state:    "searching",
		entities: ent,
		results:  providers,
	}, nil
}

func (s *Service) recall(ctx context.Context, sessionID string, sctx session.Context, it intent.Intent) (*outcome, error) {
	direction := ""
	if it.Memory != nil {
		direction = it.Memory.Direction
	}

	if len(sctx.LastResults) == 0 {
		return &outcome{
			reply:  "I don't have earlier results in this conversation yet. Tell me what kind of expert you're looking for.",
			action: ActionMemoryRecall,
		}, nil
	}

	switch direction {
	case "cheaper":
		cheapest := sctx.LastResults[0].PriceCents
		for _, p := range sctx.LastResults[1:] {
			if p.PriceCents < cheapest {
				cheapest = p.PriceCents
			}
		}
		providers, err := s.dir.ListProviders(ctx, directory.Filter{
			Category:      sctx.Entities.Category,
			Location:      sctx.Entities.Location,
			Mode:          sctx.Entities.Mode,
			MaxPriceCents: cheapest - 1,
			Limit:         s.maxCandidates,
		})
		if err != nil {
			return nil, err
		}
		if len(providers) == 0 {
			return &outcome{
				reply:   "Those were already the most affordable options I have. Want me to widen the search?",
				action:  ActionMemoryRecall,
				results: sctx.LastResults,
			}, nil
		}
		var b strings.Builder
		b.WriteString("Here are more affordable options:")
		writeProviderList(&b, providers)
		return &outcome{
			reply:   b.String(),
			action:  ActionMemoryRecall,
			state:   "searching",
			results: providers,
		}, nil

	case "better":
		providers, err := s.dir.ListProviders(ctx, directory.Filter{
			Category: sctx.Entities.Category,
			Location: sctx.Entities.Location,
			Mode:     sctx.Entities.Mode,
			Limit:    s.maxCandidates,
		})
		if err != nil {
			return nil, err
		}
		if len(providers) == 0 {
			providers = sctx.LastResults
		}
		var b strings.Builder
		b.WriteString("If budget allows, here's the full range I have in that area:")
		writeProviderList(&b, providers)
		return &outcome{
			reply:   b.String(),
			action:  ActionMemoryRecall,
			state:   "searching",
			results: providers,
		}, nil

	default:
		var b strings.Builder
		if ref := s.memory.ContextualReference(ctx, sessionID); ref != "" {
			b.WriteString(ref)
			b.WriteString(" ")
		}
		b.WriteString("Here they are again:")
		writeProviderList(&b, sctx.LastResults)
		return &outcome{
			reply:   b.String(),
			action:  ActionMemoryRecall,
			results: sctx.LastResults,
		}, nil
	}
}

func (s *Service) problem(ctx context.Context, text string) *outcome {
	fallback := "That sounds challenging. A consultant could help you work through it — tell me the area (legal, finance, marketing, technology, HR) and I'll find the right expert."
	system := "You are a booking assistant for a business consultancy marketplace. " +
		"The user described a difficulty. In at most three sentences, empathize briefly and " +
		"suggest which kind of consultant could help. End by offering to search for one."
	reply := s.complete(ctx, system, text, fallback)
	return &outcome{reply: reply, action: ActionProblemGuidance, state: "consulting"}
}

func (s *Service) clarify(sctx session.Context) *outcome {
	reply := "Happy to help you narrow it down. Are you looking for help with legal, financial, marketing, technology, or HR matters?"
	if sctx.Entities.Category != "" {
		reply = fmt.Sprintf("Earlier you mentioned %s — want me to find %s consultants, or is this about something else?",
			sctx.Entities.Category, sctx.Entities.Category)
	}
	return &outcome{reply: reply, action: ActionClarification}
}

func (s *Service) general(ctx context.Context, text string) *outcome {
	fallback := "I can help you find consultants, check their availability, and book sessions. Tell me what kind of expert you're looking for."
	system := "You are a friendly booking assistant for a business consultancy marketplace. " +
		"Answer in at most two sentences and steer the user toward finding or booking a consultant."
	reply := s.complete(ctx, system, text, fallback)
	return &outcome{reply: reply, action: ActionGeneralReply}
}

// complete asks the completion service for decorative text and falls
// back to the template on any failure. It never influences state.
func (s *Service) complete(ctx context.Context, system, userText, fallback string) string {
	reply, err := s.completer.Complete(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userText}},
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			s.logger.Warn("completion failed, using template reply", "error", err)
		}
		return fallback
	}
	return reply
}

func (s *Service) upstreamFailure(sessionID string, sctx session.Context, op string, err error) (*Response, error) {
	wrapped := &UpstreamError{Op: op, Err: err}
	s.logger.Error("upstream failure while processing message",
		"session_id", sessionID, "op", op, "error", err)
	s.metrics.ObserveMessage("unknown", ActionUpstreamError)

	return &Response{
		Reply:        apologyReply,
		SessionID:    sessionID,
		ActionType:   ActionUpstreamError,
		Entities:     sctx.Entities,
		BookingState: sctx.Booking,
	}, wrapped
}

func (s *Service) recentUserTexts(ctx context.Context, sessionID string) []string {
	turns, err := s.memory.RecentTurns(ctx, sessionID, s.recentTurns)
	if err != nil {
		s.logger.Warn("failed to load recent turns", "session_id", sessionID, "error", err)
		return nil
	}
	texts := make([]string, 0, len(turns))
	for _, t := range turns {
		texts = append(texts, t.UserText)
	}
	return texts
}

// suggest derives up to three next-step hints from the committed state.
func (s *Service) suggest(sctx session.Context) []string {
	if sctx.Booking != nil && !sctx.Booking.Step.Terminal() {
		switch sctx.Booking.Step {
		case booking.StepSelectProvider:
			return []string{"Reply with a number", "Say the provider's name", "Search for someone else"}
		case booking.StepSelectDate:
			return []string{"Reply with a number", "Say a date from the list"}
		case booking.StepSelectTime:
			return []string{"Reply with a number", "Say a time like 09:30"}
		case booking.StepSelectMode:
			return []string{"online", "offline"}
		case booking.StepConfirm:
			return []string{"yes", "no"}
		case booking.StepSelectPayment:
			return []string{"card", "paypal", "bank transfer"}
		}
	}
	if len(sctx.LastResults) > 0 {
		out := []string{
			"Book with " + sctx.LastResults[0].Name,
			"Show cheaper options",
		}
		if sctx.Entities.Category == "" {
			out = append(out, "Tell me more about what you need")
		} else {
			out = append(out, "Find more "+sctx.Entities.Category+" consultants")
		}
		return out[:min(len(out), defaultMaxSuggestions)]
	}
	if sctx.Entities.Category != "" {
		return []string{"Find " + sctx.Entities.Category + " consultants"}
	}
	return []string{
		"Find me a marketing consultant",
		"I need legal advice",
		"I'm not sure what I need",
	}
}

func (s *Service) observe(intentLabel string, out *outcome, started time.Time) {
	s.metrics.ObserveMessage(intentLabel, out.action)
	s.metrics.ObserveProcessLatency(intentLabel, s.now().Sub(started).Seconds())
	s.metrics.SetActiveSessions(s.sessions.Len())
	switch out.action {
	case booking.ActionCompleted:
		s.metrics.ObserveBookingOutcome("completed")
	case booking.ActionCancelled:
		s.metrics.ObserveBookingOutcome("cancelled")
	}
}

func fromFlowResult(res *booking.Result) *outcome {
	o := &outcome{
		reply:   res.Reply,
		action:  res.Action,
		state:   "booking",
		booking: res.State,
	}
	if res.State != nil && res.State.Step.Terminal() {
		// Flows are destroyed on completion or cancellation; the final
		// record still goes out in the response.
		o.clearBooking = true
		o.state = "idle"
	}
	return o
}

func overlay(base, add session.Entities) session.Entities {
	if add.Category != "" {
		base.Category = add.Category
	}
	if add.BudgetCents > 0 {
		base.BudgetCents = add.BudgetCents
	}
	if add.Location != "" {
		base.Location = add.Location
	}
	if add.Mode != "" {
		base.Mode = add.Mode
	}
	if add.Urgency != "" {
		base.Urgency = add.Urgency
	}
	return base
}

func writeProviderList(b *strings.Builder, providers []directory.Provider) {
	for i, p := range providers {
		fmt.Fprintf(b, "\n%d. %s — %s, %s, $%.2f", i+1, p.Name, p.Category, p.Mode, float64(p.PriceCents)/100)
	}
}

func providerNames(providers []directory.Provider) []string {
	if len(providers) == 0 {
		return nil
	}
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name
	}
	return names
}
