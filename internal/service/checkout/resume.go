package checkout

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// Resume продолжает оформление заказа с сохранённого состояния чека: строит и загружает
// чек заново, если его нет, и отправляет письмо, если оно ещё не ушло.
// Для заказов в конечном состоянии ничего не делает.
func (s *Service) Resume(ctx context.Context, orderID string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.resume", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	// Один заказ не восстанавливается параллельно несколькими экземплярами.
	release, err := s.deps.Locker.Acquire(ctx, "resume:"+orderID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	order, err := s.deps.Orders.Get(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if order.ReceiptState.Terminal() {
		return newResult(order, nil), nil
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"state":    order.ReceiptState,
		"attempt":  order.RecoveryAttempts + 1,
	})

	user, err := s.deps.Users.Get(ctx, order.CustomerID)
	if err != nil {
		s.recordRecoveryFailure(ctx, &order, fmt.Errorf("load customer: %w", err))
		span.SetStatus(codes.Error, err.Error())
		return newResult(order, nil), fmt.Errorf("load customer %s: %w", order.CustomerID, err)
	}

	pdf, warnings := s.produceReceipt(ctx, &order, user)
	warnings = append(warnings, s.notify(ctx, &order, user, pdf)...)

	if len(warnings) > 0 {
		s.recordRecoveryFailure(ctx, &order, errors.Join(warningErrors(warnings)...))
		logger.WithField("warnings", len(warnings)).Warn("order recovery attempt incomplete")
		span.SetStatus(codes.Error, "recovery incomplete")
	} else {
		logger.Info("order recovery completed")
	}
	return newResult(order, warnings), nil
}

func (s *Service) recordRecoveryFailure(ctx context.Context, order *domain.Order, cause error) {
	err := s.updateOrder(ctx, order, func(o *domain.Order) error {
		o.RecoveryAttempts++
		o.LastError = cause.Error()
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to record recovery attempt")
	}
	s.emitEvent(ctx, order, domain.EventRecoveryAttemptFailed, map[string]any{
		"reason":  cause.Error(),
		"attempt": order.RecoveryAttempts,
	})
}

func warningErrors(warnings []Warning) []error {
	errs := make([]error, 0, len(warnings))
	for _, w := range warnings {
		errs = append(errs, w)
	}
	return errs
}
