// Package checkout реализует оформление заказа: проверка корзины, запись заказа,
// PDF чек, загрузка чека, письмо покупателю и очистка корзины.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/metrics"
)

const (
	defaultStepTimeout   = 10 * time.Second
	maxCartDrainAttempts = 3
	tracerName           = "github.com/vladislavdragonenkov/vegshop/internal/service/checkout"
)

// Dependencies — хранилища и внешние адаптеры, без которых оформление невозможно.
// Outbox и Timeline опциональны.
type Dependencies struct {
	Carts    domain.CartRepository
	Products domain.ProductRepository
	Orders   domain.OrderRepository
	Users    domain.UserRepository
	Renderer domain.ReceiptRenderer
	Store    domain.ObjectStore
	Mailer   domain.Mailer
	Locker   domain.CheckoutLocker
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
}

func (d Dependencies) validate() error {
	switch {
	case d.Carts == nil:
		return errors.New("checkout: cart repository is required")
	case d.Products == nil:
		return errors.New("checkout: product repository is required")
	case d.Orders == nil:
		return errors.New("checkout: order repository is required")
	case d.Users == nil:
		return errors.New("checkout: user repository is required")
	case d.Renderer == nil:
		return errors.New("checkout: receipt renderer is required")
	case d.Store == nil:
		return errors.New("checkout: object store is required")
	case d.Mailer == nil:
		return errors.New("checkout: mailer is required")
	case d.Locker == nil:
		return errors.New("checkout: locker is required")
	}
	return nil
}

// Option настраивает сервис.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает Prometheus метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStepTimeout ограничивает длительность каждого внешнего вызова.
func WithStepTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.stepTimeout = timeout
		}
	}
}

// WithAsyncNotification отправляет письмо после ответа клиенту.
func WithAsyncNotification(enabled bool) Option {
	return func(s *Service) {
		s.asyncNotify = enabled
	}
}

// WithTracer задаёт tracer вместо глобального.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов (для тестов).
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// Service — сервис оформления заказов.
type Service struct {
	deps        Dependencies
	logger      *log.Entry
	metrics     *metrics.CheckoutMetrics
	tracer      trace.Tracer
	stepTimeout time.Duration
	asyncNotify bool
	now         func() time.Time
	newID       func() string

	notifications sync.WaitGroup
}

// New создаёт сервис оформления заказов.
func New(deps Dependencies, opts ...Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	s := &Service{
		deps:        deps,
		logger:      log.WithField("component", "checkout"),
		tracer:      otel.Tracer(tracerName),
		stepTimeout: defaultStepTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PlaceOptions — параметры оформления, пришедшие от клиента.
type PlaceOptions struct {
	PaymentMethod domain.PaymentMethod
}

// PlaceOrder оформляет заказ по корзине пользователя.
//
// Шаги до записи заказа атомарны: при ошибке ничего не сохраняется и корзина не меняется.
// Ошибки после записи (чек, загрузка, письмо, очистка корзины) не отменяют заказ и
// возвращаются как предупреждения в Result.
func (s *Service) PlaceOrder(ctx context.Context, actorID string, opts PlaceOptions) (Result, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "checkout.place_order", trace.WithAttributes(attribute.String("actor.id", actorID)))
	defer span.End()

	if s.metrics != nil {
		s.metrics.CheckoutStarted()
		defer s.metrics.CheckoutFinished()
	}

	result, err := s.placeOrder(ctx, actorID, opts)

	outcome := metrics.ResultSuccess
	switch {
	case err != nil && isRejection(err):
		outcome = metrics.ResultRejected
	case err != nil:
		outcome = metrics.ResultFailed
	case len(result.Warnings) > 0:
		outcome = metrics.ResultDegraded
	}
	if s.metrics != nil {
		s.metrics.RecordCheckout(outcome, time.Since(started))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("order.id", result.OrderID), attribute.Int("checkout.warnings", len(result.Warnings)))
	}
	return result, err
}

func (s *Service) placeOrder(ctx context.Context, actorID string, opts PlaceOptions) (Result, error) {
	if actorID == "" {
		return Result{}, domain.ErrActorRequired
	}
	method := opts.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodCOD
	}
	if !method.Valid() {
		return Result{}, domain.ErrPaymentMethodInvalid
	}

	release, err := s.deps.Locker.Acquire(ctx, actorID)
	if err != nil {
		if errors.Is(err, domain.ErrCheckoutInProgress) {
			s.logger.WithField("actor_id", actorID).Info("checkout rejected, another checkout in progress")
			return Result{}, err
		}
		return Result{}, fmt.Errorf("acquire checkout lock: %w", err)
	}
	defer release()

	// 1. Корзина.
	var cart domain.Cart
	err = s.step(ctx, domain.CheckoutStepLoadCart, func(ctx context.Context) error {
		var loadErr error
		cart, loadErr = s.deps.Carts.GetByActor(ctx, actorID)
		return loadErr
	})
	if errors.Is(err, domain.ErrCartNotFound) || (err == nil && cart.IsEmpty()) {
		return Result{}, domain.ErrEmptyCart
	}
	if err != nil {
		return Result{}, fmt.Errorf("load cart: %w", err)
	}

	// Покупатель нужен для письма и чека; без него заказ не оформляем.
	var user domain.User
	err = s.step(ctx, domain.CheckoutStepLoadCustomer, func(ctx context.Context) error {
		var userErr error
		user, userErr = s.deps.Users.Get(ctx, actorID)
		return userErr
	})
	if err != nil {
		return Result{}, fmt.Errorf("load customer: %w", err)
	}

	// 2-3. Снимок цен и сумма.
	var lines []domain.OrderLine
	err = s.step(ctx, domain.CheckoutStepPricing, func(ctx context.Context) error {
		var priceErr error
		lines, priceErr = s.priceLines(ctx, cart)
		return priceErr
	})
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:            s.newID(),
		CustomerID:    actorID,
		Lines:         lines,
		TotalPrice:    domain.ComputeTotal(lines),
		Currency:      domain.DefaultCurrency,
		Status:        domain.OrderStatusCompleted,
		PaymentMethod: method,
		ReceiptState:  domain.ReceiptStateCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrOrderPersist, errors.Join(errs...))
	}

	// 4. Запись заказа — последний атомарный шаг.
	if err := s.step(ctx, domain.CheckoutStepPersist, func(ctx context.Context) error {
		return s.deps.Orders.Create(ctx, order)
	}); err != nil {
		s.logger.WithError(err).WithField("actor_id", actorID).Error("failed to persist order")
		return Result{}, fmt.Errorf("%w: %v", domain.ErrOrderPersist, err)
	}

	// Заказ записан: дальнейшие шаги не должны обрываться вместе с запросом клиента.
	// Каждый из них по-прежнему ограничен stepTimeout.
	ctx = context.WithoutCancel(ctx)

	logger := s.logger.WithFields(log.Fields{"order_id": order.ID, "actor_id": actorID})
	logger.WithField("total", order.TotalPrice.StringFixed(2)).Info("order placed")
	s.emitEvent(ctx, &order, domain.EventOrderPlaced, map[string]any{
		"customer_id":    order.CustomerID,
		"total":          order.TotalPrice.StringFixed(2),
		"currency":       order.Currency,
		"payment_method": string(order.PaymentMethod),
		"items":          len(order.Lines),
	})

	// 5-7. Чек.
	var warnings []Warning
	pdf, receiptWarnings := s.produceReceipt(ctx, &order, user)
	warnings = append(warnings, receiptWarnings...)

	// 8. Письмо.
	if order.ReceiptState == domain.ReceiptStateReady {
		if s.asyncNotify {
			s.notifyAsync(ctx, order, user, pdf)
		} else {
			warnings = append(warnings, s.notify(ctx, &order, user, pdf)...)
		}
	}

	// 9. Из корзины убираются ровно оформленные позиции.
	if err := s.drainCart(ctx, actorID, order.Lines); err != nil {
		logger.WithError(err).Warn("failed to clear cart after checkout")
		warnings = append(warnings, s.warn(domain.CheckoutStepClearCart, err))
		s.emitEvent(ctx, &order, domain.EventCartClearFailed, map[string]any{"reason": err.Error()})
	} else {
		s.emitEvent(ctx, &order, domain.EventCartCleared, nil)
	}

	return newResult(order, warnings), nil
}

// drainCart вычитает оформленные позиции из текущей корзины. При конфликте версий
// корзина перечитывается, поэтому позиции, добавленные во время оформления, остаются.
func (s *Service) drainCart(ctx context.Context, actorID string, ordered []domain.OrderLine) error {
	var err error
	for range maxCartDrainAttempts {
		err = s.step(ctx, domain.CheckoutStepClearCart, func(ctx context.Context) error {
			cart, getErr := s.deps.Carts.GetByActor(ctx, actorID)
			if errors.Is(getErr, domain.ErrCartNotFound) {
				return nil
			}
			if getErr != nil {
				return getErr
			}
			if !cart.Deduct(ordered) {
				return nil
			}
			if cart.IsEmpty() {
				return s.deps.Carts.Clear(ctx, actorID, cart.Version)
			}
			_, saveErr := s.deps.Carts.Save(ctx, cart)
			return saveErr
		})
		if !domain.IsVersionConflict(err) {
			return err
		}
	}
	return err
}

// priceLines фиксирует название и цену со скидкой каждого товара на момент оформления.
func (s *Service) priceLines(ctx context.Context, cart domain.Cart) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(cart.Lines))
	for _, item := range cart.Lines {
		if item.Quantity < 1 {
			return nil, domain.ErrCartQtyInvalid
		}
		product, err := s.deps.Products.Get(ctx, item.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, &domain.MissingProductError{ProductID: item.ProductID, Name: item.Name}
		}
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		lines = append(lines, domain.OrderLine{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.FinalPrice(),
			Quantity:  item.Quantity,
		})
	}
	return lines, nil
}

// Wait дожидается завершения асинхронных отправок писем либо отмены ctx.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.notifications.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isRejection отделяет ошибки клиента от сбоев сервиса.
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrEmptyCart) ||
		errors.Is(err, domain.ErrProductNotFound) ||
		errors.Is(err, domain.ErrCheckoutInProgress) ||
		errors.Is(err, domain.ErrPaymentMethodInvalid) ||
		errors.Is(err, domain.ErrCartQtyInvalid) ||
		errors.Is(err, domain.ErrActorRequired)
}
