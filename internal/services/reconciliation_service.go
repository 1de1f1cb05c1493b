package services

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

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/repositories"
)

const (
	paymentEventReconciled            = "payment.reconciled"
	inventoryEventDecrementFailed     = "inventory.decrement_failed"
	defaultPaymentFailureReason       = "Payment failed"
	reconciliationInstrumentationName = "github.com/malistore/api/internal/services"
)

// Reconciliation results reported to metrics.
const (
	ReconcileResultApplied   = "applied"
	ReconcileResultNoop      = "noop"
	ReconcileResultUnmatched = "unmatched"
	ReconcileResultRejected  = "rejected"
	ReconcileResultError     = "error"
)

// ReconciliationMetrics records reconciliation outcomes.
type ReconciliationMetrics interface {
	ObserveReconciliation(outcome string, result string)
	ObserveDecrementFailure()
}

// ReconciliationServiceDeps bundles collaborators required to construct the reconciliation service.
type ReconciliationServiceDeps struct {
	Orders     repositories.OrderRepository
	Payments   repositories.PaymentRepository
	Inventory  InventoryService
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Events     EventPublisher
	Metrics    ReconciliationMetrics
	Tracer     trace.Tracer
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type reconciliationService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	inventory  InventoryService
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	events     EventPublisher
	metrics    ReconciliationMetrics
	tracer     trace.Tracer
	logger     logFunc
}

// NewReconciliationService wires dependencies into a concrete ReconciliationService.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reconciliation service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("reconciliation service: payment repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("reconciliation service: inventory service is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(reconciliationInstrumentationName)
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &reconciliationService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		inventory:  deps.Inventory,
		unitOfWork: unit,
		clock:      utcClock(deps.Clock),
		events:     deps.Events,
		metrics:    deps.Metrics,
		tracer:     tracer,
		logger:     logger,
	}, nil
}

var outcomeStatuses = map[PaymentOutcome]domain.PaymentStatus{
	PaymentOutcomeSucceeded: domain.PaymentStatusSucceeded,
	PaymentOutcomeFailed:    domain.PaymentStatusFailed,
	PaymentOutcomeCancelled: domain.PaymentStatusCancelled,
}

// Reconcile applies a provider outcome to the matching payment. Repeating an outcome the payment
// already carries is a no-op. A successful payment moves a PENDING order to PAID and then
// decrements stock; a decrement failure is recorded on the result and never rolls the payment
// back.
func (s *reconciliationService) Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	intentID := strings.TrimSpace(cmd.PaymentIntentID)
	target, ok := outcomeStatuses[cmd.Outcome]
	if !ok {
		return ReconcileResult{}, fmt.Errorf("%w: unknown outcome %q", ErrPaymentInvalidInput, cmd.Outcome)
	}
	if sessionID == "" && intentID == "" {
		return ReconcileResult{}, fmt.Errorf("%w: session id or payment intent id is required", ErrPaymentInvalidInput)
	}

	ctx, span := s.tracer.Start(ctx, "payments.reconcile", trace.WithAttributes(
		attribute.String("payment.session_id", sessionID),
		attribute.String("payment.intent_id", intentID),
		attribute.String("payment.outcome", string(cmd.Outcome)),
		attribute.String("payment.source", cmd.Source),
	))
	defer span.End()

	var (
		result    ReconcileResult
		prevOrder domain.OrderStatus
		now       = s.clock()
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		result = ReconcileResult{}

		payment, err := s.findPayment(txCtx, sessionID, intentID)
		if err != nil {
			return err
		}
		if payment.Status == target {
			result.Payment = payment
			return nil
		}
		if err := checkPaymentTransition(payment.Status, target); err != nil {
			return err
		}

		// Concurrent successes for one order queue on the order row, so the sibling
		// check below sees any payment that won the race.
		var order Order
		if target == domain.PaymentStatusSucceeded {
			if order, err = s.orders.FindByID(txCtx, payment.OrderID); err != nil {
				return err
			}
			siblings, err := s.payments.ListByOrder(txCtx, payment.OrderID)
			if err != nil {
				return err
			}
			for _, other := range siblings {
				if other.ID != payment.ID && other.Status == domain.PaymentStatusSucceeded {
					return fmt.Errorf("%w: payment %s already succeeded for order %s", ErrPaymentDuplicate, other.ID, payment.OrderID)
				}
			}
		}

		applyPaymentOutcome(&payment, target, intentID, cmd.FailureReason, now)
		if err := s.payments.Update(txCtx, payment); err != nil {
			if target == domain.PaymentStatusSucceeded && repositories.IsConflict(err) {
				return fmt.Errorf("%w: order %s: %v", ErrPaymentDuplicate, payment.OrderID, err)
			}
			return err
		}
		result.Payment = payment
		result.Applied = true

		if target != domain.PaymentStatusSucceeded {
			return nil
		}

		prevOrder = order.Status
		switch order.Status {
		case domain.OrderStatusPending:
			if err := applyStatusTransition(&order, domain.OrderStatusPaid, now); err != nil {
				return err
			}
			if err := s.orders.Update(txCtx, order); err != nil {
				return err
			}
			result.OrderPaid = true
		case domain.OrderStatusPaid:
		default:
			s.logger(txCtx, "payment.reconcile.order_not_pending", map[string]any{
				"paymentId":   payment.ID,
				"orderId":     order.ID,
				"orderStatus": string(order.Status),
			})
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, s.fail(ctx, span, cmd, err)
	}

	if !result.Applied {
		s.logger(ctx, "payment.reconcile.noop", map[string]any{
			"paymentId": result.Payment.ID,
			"status":    string(result.Payment.Status),
			"source":    cmd.Source,
		})
		s.observe(cmd.Outcome, ReconcileResultNoop)
	} else {
		s.logger(ctx, "payment.reconciled", map[string]any{
			"paymentId": result.Payment.ID,
			"orderId":   result.Payment.OrderID,
			"status":    string(result.Payment.Status),
			"orderPaid": result.OrderPaid,
			"source":    cmd.Source,
		})
		s.observe(cmd.Outcome, ReconcileResultApplied)
		s.publishReconciled(ctx, result, cmd, prevOrder, now)
	}

	if target == domain.PaymentStatusSucceeded {
		s.decrementStock(ctx, span, &result)
	}
	span.SetAttributes(
		attribute.Bool("payment.applied", result.Applied),
		attribute.Bool("order.paid", result.OrderPaid),
		attribute.Bool("inventory.decremented", result.StockDecremented),
	)
	return result, nil
}

// decrementStock runs in its own transaction after the payment committed. Redelivered success
// events reach it again, so an earlier failed decrement is retried; the order marker keeps it
// at most once.
func (s *reconciliationService) decrementStock(ctx context.Context, span trace.Span, result *ReconcileResult) {
	orderID := result.Payment.OrderID
	decremented, err := s.inventory.DecrementStockForPaidOrder(ctx, orderID)
	if err == nil {
		result.StockDecremented = decremented
		return
	}

	result.DecrementError = err
	span.RecordError(err)
	fields := map[string]any{
		"orderId":   orderID,
		"paymentId": result.Payment.ID,
		"error":     err.Error(),
	}
	data := map[string]any{
		"paymentId": result.Payment.ID,
		"error":     err.Error(),
	}
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		fields["productId"] = stockErr.ProductID
		data["productId"] = stockErr.ProductID
		data["available"] = stockErr.Available
		data["requested"] = stockErr.Requested
	}
	s.logger(ctx, "inventory.decrement.failed", fields)
	if s.metrics != nil {
		s.metrics.ObserveDecrementFailure()
	}
	publish(ctx, s.events, s.logger, DomainEvent{
		Type:       inventoryEventDecrementFailed,
		OrderID:    orderID,
		PaymentID:  result.Payment.ID,
		OccurredAt: s.clock(),
		Data:       data,
	})
}

func (s *reconciliationService) findPayment(ctx context.Context, sessionID, intentID string) (Payment, error) {
	if sessionID != "" {
		payment, err := s.payments.FindBySessionID(ctx, sessionID)
		if err == nil {
			return payment, nil
		}
		if !repositories.IsNotFound(err) || intentID == "" {
			return Payment{}, err
		}
	}
	return s.payments.FindByIntentID(ctx, intentID)
}

func (s *reconciliationService) fail(ctx context.Context, span trace.Span, cmd ReconcileCommand, err error) error {
	mapped := mapPaymentRepositoryError(err)
	fields := map[string]any{
		"sessionId": cmd.SessionID,
		"intentId":  cmd.PaymentIntentID,
		"outcome":   string(cmd.Outcome),
		"source":    cmd.Source,
		"error":     err.Error(),
	}
	switch {
	case errors.Is(mapped, ErrPaymentNotFound):
		s.logger(ctx, "payment.reconcile.unmatched", fields)
		s.observe(cmd.Outcome, ReconcileResultUnmatched)
	case errors.Is(mapped, ErrPaymentInvalidState), errors.Is(mapped, ErrPaymentDuplicate):
		s.logger(ctx, "payment.reconcile.rejected", fields)
		s.observe(cmd.Outcome, ReconcileResultRejected)
	default:
		s.logger(ctx, "payment.reconcile.failed", fields)
		s.observe(cmd.Outcome, ReconcileResultError)
		span.SetStatus(codes.Error, err.Error())
	}
	span.RecordError(err)
	return mapped
}

func (s *reconciliationService) observe(outcome PaymentOutcome, result string) {
	if s.metrics != nil {
		s.metrics.ObserveReconciliation(string(outcome), result)
	}
}

func (s *reconciliationService) publishReconciled(ctx context.Context, result ReconcileResult, cmd ReconcileCommand, prevOrder domain.OrderStatus, now time.Time) {
	payment := result.Payment
	data := map[string]any{
		"status": string(payment.Status),
		"source": cmd.Source,
	}
	if payment.FailureReason != "" {
		data["failureReason"] = payment.FailureReason
	}
	publish(ctx, s.events, s.logger, DomainEvent{
		Type:       paymentEventReconciled,
		OrderID:    payment.OrderID,
		PaymentID:  payment.ID,
		OccurredAt: now,
		Data:       data,
	})
	if result.OrderPaid {
		publish(ctx, s.events, s.logger, DomainEvent{
			Type:       orderEventStatusChanged,
			OrderID:    payment.OrderID,
			PaymentID:  payment.ID,
			OccurredAt: now,
			Data: map[string]any{
				"previousStatus": string(prevOrder),
				"status":         string(domain.OrderStatusPaid),
			},
		})
	}
}

// checkPaymentTransition rejects outcomes that would overwrite a success or a refund. A late
// success after a failure or cancellation is accepted since the provider is authoritative.
func checkPaymentTransition(current, target domain.PaymentStatus) error {
	switch current {
	case domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded, domain.PaymentStatusPartiallyRefunded:
		return fmt.Errorf("%w: payment is %s, cannot become %s", ErrPaymentInvalidState, current, target)
	}
	return nil
}

func applyPaymentOutcome(payment *Payment, target domain.PaymentStatus, intentID string, failureReason string, now time.Time) {
	payment.Status = target
	payment.WebhookReceivedAt = &now
	payment.UpdatedAt = now
	if intentID != "" && payment.PaymentIntentID == "" {
		payment.PaymentIntentID = intentID
	}
	switch target {
	case domain.PaymentStatusSucceeded:
		payment.FailureReason = ""
		if payment.TransactionID == "" {
			payment.TransactionID = payment.PaymentIntentID
		}
	case domain.PaymentStatusFailed:
		payment.FailureReason = firstNonEmpty(failureReason, defaultPaymentFailureReason)
	case domain.PaymentStatusCancelled:
		payment.FailureReason = strings.TrimSpace(failureReason)
	}
}
