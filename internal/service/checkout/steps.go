package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/mail"
)

// ReceiptKey возвращает ключ объекта чека в хранилище.
func ReceiptKey(orderID string) string {
	return fmt.Sprintf("receipts/order-%s.pdf", orderID)
}

// step выполняет внешний вызов с таймаутом, span и метрикой длительности.
func (s *Service) step(ctx context.Context, name domain.CheckoutStep, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "checkout."+string(name))
	defer span.End()

	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	started := time.Now()
	err := fn(stepCtx)
	if s.metrics != nil {
		s.metrics.RecordStepDuration(string(name), time.Since(started))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// produceReceipt строит и загружает чек, затем сохраняет ссылку в заказе.
// Возвращает PDF, если он был построен, чтобы приложить его к письму.
func (s *Service) produceReceipt(ctx context.Context, order *domain.Order, user domain.User) ([]byte, []Warning) {
	if order.ReceiptState != domain.ReceiptStateCreated && order.ReceiptState != domain.ReceiptStatePending {
		return nil, nil
	}
	logger := s.logger.WithField("order_id", order.ID)

	var pdf []byte
	err := s.step(ctx, domain.CheckoutStepRender, func(context.Context) error {
		var renderErr error
		pdf, renderErr = s.deps.Renderer.Render(receiptData(*order, user))
		return renderErr
	})
	if err != nil {
		logger.WithError(err).Warn("receipt generation failed")
		s.markReceiptPending(ctx, order, err)
		return nil, []Warning{s.warn(domain.CheckoutStepRender, err)}
	}

	var url string
	err = s.step(ctx, domain.CheckoutStepUpload, func(ctx context.Context) error {
		var uploadErr error
		url, uploadErr = s.deps.Store.Upload(ctx, domain.Object{
			Key:         ReceiptKey(order.ID),
			ContentType: "application/pdf",
			Body:        pdf,
		})
		return uploadErr
	})
	if err != nil {
		logger.WithError(err).Warn("receipt upload failed")
		s.markReceiptPending(ctx, order, err)
		return pdf, []Warning{s.warn(domain.CheckoutStepUpload, err)}
	}

	err = s.step(ctx, domain.CheckoutStepAttach, func(ctx context.Context) error {
		return s.updateOrder(ctx, order, func(o *domain.Order) error {
			o.ReceiptURL = url
			o.LastError = ""
			return o.AdvanceReceipt(domain.ReceiptStateReady)
		})
	})
	if err != nil {
		// Файл уже загружен: ссылку отдаём клиенту, восстановление перезапишет её в заказе.
		logger.WithError(err).Error("failed to attach receipt url to order")
		order.ReceiptURL = url
		return pdf, []Warning{s.warn(domain.CheckoutStepAttach, err)}
	}

	s.emitEvent(ctx, order, domain.EventReceiptReady, map[string]any{"receipt_url": url})
	return pdf, nil
}

// notify отправляет письмо с чеком. При ошибке заказ остаётся в receipt_ready,
// и восстановление повторит отправку (доставка at-least-once).
func (s *Service) notify(ctx context.Context, order *domain.Order, user domain.User, pdf []byte) []Warning {
	if order.ReceiptState != domain.ReceiptStateReady {
		return nil
	}
	logger := s.logger.WithFields(log.Fields{"order_id": order.ID, "to": user.Email})

	if pdf == nil {
		// Чек детерминирован, поэтому при восстановлении его можно построить заново.
		var err error
		pdf, err = s.deps.Renderer.Render(receiptData(*order, user))
		if err != nil {
			logger.WithError(err).Warn("receipt re-generation for email failed")
			s.recordLastError(ctx, order, err)
			return []Warning{s.warn(domain.CheckoutStepRender, err)}
		}
	}

	msg, err := mail.BuildReceiptMessage(mail.ReceiptEmail{
		To:          user.Email,
		Name:        user.DisplayName(),
		Order:       *order,
		DownloadURL: order.ReceiptURL,
		PDF:         pdf,
	})
	if err == nil {
		err = s.step(ctx, domain.CheckoutStepEmail, func(ctx context.Context) error {
			// По таймауту SMTP-отправка не прерывается: письмо может уйти, а recovery отправит его ещё раз (at-least-once).
			return s.deps.Mailer.Send(ctx, msg)
		})
	}
	if err != nil {
		logger.WithError(err).Warn("receipt email delivery failed")
		s.recordLastError(ctx, order, err)
		s.emitEvent(ctx, order, domain.EventNotificationFailed, map[string]any{"reason": err.Error()})
		return []Warning{s.warn(domain.CheckoutStepEmail, err)}
	}

	if err := s.updateOrder(ctx, order, func(o *domain.Order) error {
		o.LastError = ""
		return o.AdvanceReceipt(domain.ReceiptStateNotified)
	}); err != nil {
		// Письмо ушло; при восстановлении оно может уйти повторно.
		logger.WithError(err).Error("failed to record notification state")
		return nil
	}
	s.emitEvent(ctx, order, domain.EventNotificationSent, map[string]any{"to": user.Email})
	return nil
}

// notifyAsync отправляет письмо после ответа клиенту. Ошибки видны только в логах
// и в состоянии заказа, откуда их подберёт восстановление.
func (s *Service) notifyAsync(ctx context.Context, order domain.Order, user domain.User, pdf []byte) {
	bg := context.WithoutCancel(ctx)
	if s.metrics != nil {
		s.metrics.NotificationQueued()
	}
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		if s.metrics != nil {
			defer s.metrics.NotificationDone()
		}
		s.notify(bg, &order, user, pdf)
	}()
}

func (s *Service) markReceiptPending(ctx context.Context, order *domain.Order, cause error) {
	err := s.updateOrder(ctx, order, func(o *domain.Order) error {
		o.LastError = cause.Error()
		return o.AdvanceReceipt(domain.ReceiptStatePending)
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to mark receipt pending")
		order.ReceiptState = domain.ReceiptStatePending
		return
	}
	s.emitEvent(ctx, order, domain.EventReceiptPending, map[string]any{"reason": cause.Error()})
}

func (s *Service) recordLastError(ctx context.Context, order *domain.Order, cause error) {
	err := s.updateOrder(ctx, order, func(o *domain.Order) error {
		o.LastError = cause.Error()
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to record order error")
	}
}

// updateOrder применяет mutate и сохраняет заказ. При конфликте версий заказ
// перечитывается и изменение применяется заново (до трёх попыток).
func (s *Service) updateOrder(ctx context.Context, order *domain.Order, mutate func(*domain.Order) error) error {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		candidate := *order
		candidate.Lines = append([]domain.OrderLine(nil), order.Lines...)
		if err := mutate(&candidate); err != nil {
			return err
		}
		candidate.UpdatedAt = s.now()

		saveCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
		err := s.deps.Orders.Save(saveCtx, candidate)
		cancel()
		if err == nil {
			candidate.Version++
			*order = candidate
			return nil
		}
		if !domain.IsVersionConflict(err) || attempt == maxRetries-1 {
			return err
		}

		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		fresh, loadErr := s.deps.Orders.Get(ctx, order.ID)
		if loadErr != nil {
			return loadErr
		}
		*order = fresh

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay * time.Duration(1<<uint(attempt))):
		}
	}
	return domain.ErrOrderVersionConflict
}

// emitEvent пишет событие в outbox и timeline. Ошибки только логируются.
func (s *Service) emitEvent(ctx context.Context, order *domain.Order, eventType string, payload map[string]any) {
	occurred := s.now()
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["order_id"] = order.ID
	payload["receipt_state"] = string(order.ReceiptState)
	payload["ts"] = occurred.Format(time.RFC3339Nano)

	trace.SpanFromContext(ctx).AddEvent(eventType, trace.WithAttributes(attribute.String("order.id", order.ID)))
	logger := s.logger.WithFields(log.Fields{"order_id": order.ID, "event": eventType})

	if s.deps.Outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.WithError(err).Error("marshal event failed")
		} else if _, err := s.deps.Outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     eventType,
			Payload:       data,
			CreatedAt:     occurred,
		}); err != nil {
			logger.WithError(err).Error("enqueue event failed")
		} else if s.metrics != nil {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.deps.Timeline != nil {
		reason, _ := payload["reason"].(string)
		err := s.deps.Timeline.Append(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Reason:   reason,
			Occurred: occurred,
		})
		if err != nil {
			logger.WithError(err).Warn("append timeline event failed")
		} else if s.metrics != nil {
			s.metrics.RecordTimelineEvent()
		}
	}
}

func receiptData(order domain.Order, user domain.User) domain.ReceiptData {
	return domain.ReceiptData{
		OrderID:       order.ID,
		CustomerName:  user.DisplayName(),
		CustomerEmail: user.Email,
		Lines:         order.Lines,
		TotalPrice:    order.TotalPrice,
		Currency:      order.Currency,
		PaymentMethod: order.PaymentMethod,
		PlacedAt:      order.CreatedAt,
	}
}
