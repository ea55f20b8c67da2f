package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает коммерческий статус заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ принят, но ещё не подтверждён.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted: заказ оформлен; именно этот статус получает заказ при checkout.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled: заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentMethod — способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodOnline PaymentMethod = "Online"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

// DefaultCurrency используется для всех заказов магазина.
const DefaultCurrency = "INR"

// ReceiptState отслеживает, какие побочные эффекты оформления уже выполнены.
// Состояние сохраняется вместе с заказом, чтобы прерванное оформление можно было продолжить.
type ReceiptState string

const (
	// ReceiptStateCreated: заказ записан, чек ещё не пытались построить.
	ReceiptStateCreated ReceiptState = "created"
	// ReceiptStatePending: попытка построить или загрузить чек не удалась.
	ReceiptStatePending ReceiptState = "receipt_pending"
	// ReceiptStateReady: ссылка на чек сохранена в заказе.
	ReceiptStateReady ReceiptState = "receipt_ready"
	// ReceiptStateNotified: письмо с чеком отправлено. Конечное состояние.
	ReceiptStateNotified ReceiptState = "notification_sent"
)

var receiptTransitions = map[ReceiptState][]ReceiptState{
	ReceiptStateCreated: {ReceiptStatePending, ReceiptStateReady},
	ReceiptStatePending: {ReceiptStatePending, ReceiptStateReady},
	ReceiptStateReady:   {ReceiptStateNotified},
}

// Terminal сообщает, что дальнейших шагов оформления не требуется.
func (s ReceiptState) Terminal() bool {
	return s == ReceiptStateNotified
}

// CanTransition проверяет допустимость перехода между состояниями чека.
func (s ReceiptState) CanTransition(next ReceiptState) bool {
	for _, allowed := range receiptTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderLine — снимок позиции на момент оформления. Никогда не пересчитывается из каталога.
type OrderLine struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// LineTotal возвращает стоимость позиции.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	CustomerID    string
	Lines         []OrderLine
	TotalPrice    decimal.Decimal
	Currency      string
	Status        OrderStatus
	PaymentMethod PaymentMethod
	// ReceiptURL пуст, пока чек не загружен.
	ReceiptURL       string
	ReceiptState     ReceiptState
	RecoveryAttempts int
	LastError        string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ComputeTotal суммирует стоимость позиций.
func ComputeTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// AwaitsRecovery: оформление не доведено до письма, заказ создан раньше before
// и лимит попыток восстановления не исчерпан. maxAttempts <= 0 снимает лимит.
func (o Order) AwaitsRecovery(before time.Time, maxAttempts int) bool {
	if o.ReceiptState.Terminal() || !o.CreatedAt.Before(before) {
		return false
	}
	return maxAttempts <= 0 || o.RecoveryAttempts < maxAttempts
}

// AdvanceReceipt переводит заказ в следующее состояние чека.
func (o *Order) AdvanceReceipt(next ReceiptState) error {
	if !o.ReceiptState.CanTransition(next) {
		return ErrReceiptStateTransition
	}
	o.ReceiptState = next
	return nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalPrice.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}
	if o.PaymentMethod != "" && !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}

	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if !ComputeTotal(o.Lines).Equal(o.TotalPrice) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
