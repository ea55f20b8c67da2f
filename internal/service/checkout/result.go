package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// Warning — шаг после записи заказа, который не удался. Заказ при этом остаётся оформленным.
type Warning struct {
	Step domain.CheckoutStep
	// Kind: одна из sentinel ошибок domain (ErrReceiptUpload, ErrEmailDelivery, ...).
	Kind  error
	Cause error
}

// Message возвращает текст для клиента без внутренних подробностей.
func (w Warning) Message() string {
	return w.Kind.Error()
}

func (w Warning) Error() string {
	if w.Cause == nil {
		return w.Kind.Error()
	}
	return w.Kind.Error() + ": " + w.Cause.Error()
}

func (w Warning) Unwrap() []error {
	if w.Cause == nil {
		return []error{w.Kind}
	}
	return []error{w.Kind, w.Cause}
}

// Result — итог оформления или восстановления заказа.
type Result struct {
	OrderID      string
	TotalPrice   decimal.Decimal
	Currency     string
	ReceiptURL   string
	ReceiptState domain.ReceiptState
	Warnings     []Warning
}

// ReceiptPending сообщает, что ссылка на чек пока недоступна.
func (r Result) ReceiptPending() bool {
	return r.ReceiptURL == ""
}

func newResult(order domain.Order, warnings []Warning) Result {
	return Result{
		OrderID:      order.ID,
		TotalPrice:   order.TotalPrice,
		Currency:     order.Currency,
		ReceiptURL:   order.ReceiptURL,
		ReceiptState: order.ReceiptState,
		Warnings:     warnings,
	}
}

var stepKinds = map[domain.CheckoutStep]error{
	domain.CheckoutStepRender:    domain.ErrReceiptGeneration,
	domain.CheckoutStepUpload:    domain.ErrReceiptUpload,
	domain.CheckoutStepAttach:    domain.ErrReceiptUpload,
	domain.CheckoutStepEmail:     domain.ErrEmailDelivery,
	domain.CheckoutStepClearCart: domain.ErrCartVersionConflict,
}

func (s *Service) warn(step domain.CheckoutStep, cause error) Warning {
	if s.metrics != nil {
		s.metrics.RecordWarning(string(step))
	}
	kind, ok := stepKinds[step]
	if !ok {
		kind = cause
	}
	return Warning{Step: step, Kind: kind, Cause: cause}
}
