// Package trading owns the trade lifecycle: creating proposals and moving
// them through pending -> accepted -> completed or pending -> rejected.
//
// Authorization is a comparison of wallet identity strings. The service
// never verifies signatures and never moves assets; it is a bookkeeping layer.
package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/storage"
	"github.com/PxPatel/p2p-swap/internal/types"
)

const (
	tracerName    = "github.com/PxPatel/p2p-swap/internal/trading"
	maxIDAttempts = 5
)

// Publisher receives lifecycle events after they are stored
type Publisher interface {
	Publish(ctx context.Context, event types.TradeEvent)
}

// Service validates and executes trade state transitions against a TradeStore
type Service struct {
	store      storage.TradeStore
	newID      IDGenerator
	now        func() time.Time
	publishers []Publisher
	locks      *tradeLocks
	tracer     trace.Tracer
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides trade id generation
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Service) { s.newID = gen }
}

// WithPublisher adds an event publisher; may be given more than once
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publishers = append(s.publishers, p)
		}
	}
}

// NewService creates a lifecycle service over store
func NewService(store storage.TradeStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		newID:  NewTradeID,
		now:    time.Now,
		locks:  newTradeLocks(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock returns the current time at the millisecond precision trades carry
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Create validates a proposal and stores it as a pending trade
func (s *Service) Create(ctx context.Context, creatorWallet, counterpartyWallet string, creatorOffer, counterpartyOffer types.TradeOffer) (*types.Trade, error) {
	ctx, span := s.tracer.Start(ctx, "trading.Create", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	creatorWallet = strings.TrimSpace(creatorWallet)
	counterpartyWallet = strings.TrimSpace(counterpartyWallet)

	if creatorWallet == "" {
		return nil, s.fail(span, validationError("creatorWallet", "Creator wallet is required"))
	}
	if counterpartyWallet == "" {
		return nil, s.fail(span, validationError("counterpartyWallet", "Counterparty wallet is required"))
	}
	if err := validateOffer("creatorOffer", creatorOffer); err != nil {
		return nil, s.fail(span, err)
	}
	if err := validateOffer("counterpartyOffer", counterpartyOffer); err != nil {
		return nil, s.fail(span, err)
	}
	if creatorOffer.IsEmpty() {
		return nil, s.fail(span, validationError("creatorOffer", "Creator offer cannot be empty"))
	}

	now := s.clock()
	trade := &types.Trade{
		CreatorWallet:      creatorWallet,
		CounterpartyWallet: counterpartyWallet,
		CreatorOffer:       creatorOffer.Normalize().Clone(),
		CounterpartyOffer:  counterpartyOffer.Normalize().Clone(),
		Status:             types.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		trade.ID = s.newID()
		err := s.store.Insert(ctx, trade)
		if errors.Is(err, storage.ErrDuplicateID) {
			logger.Warn("Trade id collision, regenerating", map[string]interface{}{
				"trade_id": trade.ID,
				"attempt":  attempt,
			})
			continue
		}
		if err != nil {
			return nil, s.fail(span, unexpectedError("Failed to store trade", err))
		}

		span.SetAttributes(attribute.String("trade.id", trade.ID))
		logger.Info("Trade created", map[string]interface{}{
			"trade_id":     trade.ID,
			"creator":      types.FormatWalletAddress(trade.CreatorWallet),
			"counterparty": types.FormatWalletAddress(trade.CounterpartyWallet),
		})
		s.publish(ctx, types.EventTradeCreated, trade)
		return trade, nil
	}

	return nil, s.fail(span, unexpectedError("Failed to allocate a unique trade id", storage.ErrDuplicateID))
}

func validateOffer(field string, offer types.TradeOffer) *Error {
	if offer.SolAmount.IsNegative() {
		return validationError(field+".solAmount", "SOL amount cannot be negative")
	}
	for i, token := range offer.Tokens {
		if token.Amount.IsNegative() {
			return validationError(
				fmt.Sprintf("%s.tokens[%d].amount", field, i),
				fmt.Sprintf("Token amount for %s cannot be negative", token.Symbol),
			)
		}
	}
	return nil
}

// transition describes one edge of the lifecycle state machine
type transition struct {
	op        string
	from      types.Status
	to        types.Status
	authorize func(trade *types.Trade, wallet string) *Error
	apply     func(trade *types.Trade)
}

func onlyCounterparty(message string) func(*types.Trade, string) *Error {
	return func(trade *types.Trade, wallet string) *Error {
		if wallet != trade.CounterpartyWallet {
			return authorizationError(message)
		}
		return nil
	}
}

func anyParticipant(message string) func(*types.Trade, string) *Error {
	return func(trade *types.Trade, wallet string) *Error {
		if !trade.Involves(wallet) {
			return authorizationError(message)
		}
		return nil
	}
}

// Accept moves a pending trade to accepted. Only the counterparty may accept.
func (s *Service) Accept(ctx context.Context, tradeID, actingWallet string) (*types.Trade, error) {
	return s.transition(ctx, tradeID, actingWallet, transition{
		op:        "Accept",
		from:      types.StatusPending,
		to:        types.StatusAccepted,
		authorize: onlyCounterparty("Only the counterparty can accept this trade"),
	})
}

// Reject moves a pending trade to rejected. Either participant may reject.
func (s *Service) Reject(ctx context.Context, tradeID, actingWallet string) (*types.Trade, error) {
	return s.transition(ctx, tradeID, actingWallet, transition{
		op:        "Reject",
		from:      types.StatusPending,
		to:        types.StatusRejected,
		authorize: anyParticipant("Only trade participants can reject this trade"),
	})
}

// Complete records settlement of an accepted trade. settlementRef identifies
// the settlement (for example a transaction signature) reported by whoever
// watched it land; it is stored as given.
func (s *Service) Complete(ctx context.Context, tradeID, actingWallet, settlementRef string) (*types.Trade, error) {
	settlementRef = strings.TrimSpace(settlementRef)
	if settlementRef == "" {
		return nil, validationError("settlementRef", "Settlement reference is required")
	}
	return s.transition(ctx, tradeID, actingWallet, transition{
		op:        "Complete",
		from:      types.StatusAccepted,
		to:        types.StatusCompleted,
		authorize: anyParticipant("Only trade participants can complete this trade"),
		apply: func(trade *types.Trade) {
			trade.SettlementRef = settlementRef
		},
	})
}

func (s *Service) transition(ctx context.Context, tradeID, actingWallet string, tr transition) (*types.Trade, error) {
	ctx, span := s.tracer.Start(ctx, "trading."+tr.op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("trade.id", tradeID),
			attribute.String("trade.to", string(tr.to)),
		),
	)
	defer span.End()

	unlock := s.locks.lock(tradeID)
	defer unlock()

	current, err := s.store.Get(ctx, tradeID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, s.fail(span, notFoundError(tradeID))
	}
	if err != nil {
		return nil, s.fail(span, unexpectedError("Failed to load trade", err))
	}

	if authErr := tr.authorize(current, strings.TrimSpace(actingWallet)); authErr != nil {
		return nil, s.fail(span, authErr)
	}
	if current.Status != tr.from {
		return nil, s.fail(span, invalidStateError(string(current.Status), string(tr.from)))
	}

	next := current.Clone()
	next.Status = tr.to
	next.UpdatedAt = s.clock()
	if next.UpdatedAt.Before(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt
	}
	if tr.apply != nil {
		tr.apply(next)
	}

	err = s.store.UpdateStatus(ctx, next, tr.from)
	switch {
	case errors.Is(err, storage.ErrStatusConflict):
		// Another process won the compare-and-swap; report what it wrote
		status := "no longer " + string(tr.from)
		if latest, getErr := s.store.Get(ctx, tradeID); getErr == nil {
			status = string(latest.Status)
		}
		return nil, s.fail(span, invalidStateError(status, string(tr.from)))
	case errors.Is(err, storage.ErrNotFound):
		return nil, s.fail(span, notFoundError(tradeID))
	case err != nil:
		return nil, s.fail(span, unexpectedError("Failed to update trade", err))
	}

	logger.Info("Trade status changed", map[string]interface{}{
		"trade_id": tradeID,
		"from":     tr.from,
		"to":       tr.to,
		"wallet":   types.FormatWalletAddress(actingWallet),
	})
	s.publish(ctx, types.EventForStatus(tr.to), next)
	return next, nil
}

// GetByID looks a trade up. A missing trade is reported by found=false, not an error.
func (s *Service) GetByID(ctx context.Context, tradeID string) (*types.Trade, bool, error) {
	trade, err := s.store.Get(ctx, tradeID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unexpectedError("Failed to load trade", err)
	}
	return trade, true, nil
}

// GetByWallet returns every trade the wallet takes part in, oldest first.
// A blank wallet yields an empty list.
func (s *Service) GetByWallet(ctx context.Context, wallet string) ([]*types.Trade, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return []*types.Trade{}, nil
	}
	trades, err := s.store.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, unexpectedError("Failed to load trades", err)
	}
	if trades == nil {
		trades = []*types.Trade{}
	}
	return trades, nil
}

// Ping reports whether the backing store is reachable
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(storage.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType types.EventType, trade *types.Trade) {
	if len(s.publishers) == 0 {
		return
	}
	event := types.TradeEvent{
		Type:       eventType,
		Trade:      trade.Clone(),
		OccurredAt: trade.UpdatedAt,
	}
	for _, p := range s.publishers {
		p.Publish(ctx, event)
	}
}

// fail records err on the span and logs unexpected failures in full
func (s *Service) fail(span trace.Span, err *Error) error {
	span.SetAttributes(attribute.String("trade.error_kind", err.Kind.String()))
	if err.Kind == KindUnexpected {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Message)
		logger.Error("Trade operation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return err
}
