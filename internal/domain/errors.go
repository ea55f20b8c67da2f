package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total price must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// Ошибка некорректного способа оплаты.
	ErrPaymentMethodInvalid = errors.New("payment method must be COD or Online")

	ErrProductNameRequired = errors.New("product name is required")
	ErrProductPriceInvalid = errors.New("product price must be non-negative")
	// Скидка задаётся в процентах и должна лежать в [0, 100].
	ErrDiscountOutOfRange = errors.New("discount must be between 0 and 100")
	ErrStockNegative      = errors.New("stock must be non-negative")

	ErrEmailRequired     = errors.New("email is required")
	ErrNameRequired      = errors.New("first and last name are required")
	ErrPasswordTooShort  = errors.New("password must be at least 6 characters")
	ErrActorRequired     = errors.New("actor id is required")
	ErrCartQtyInvalid    = errors.New("cart quantity must be at least 1")
	ErrProductIDRequired = errors.New("product id is required")

	// ErrEmptyCart возвращается, если корзина отсутствует или не содержит позиций.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrProductNotFound возвращается, если товар из корзины или каталога не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderPersist сигнализирует, что заказ не удалось записать в хранилище.
	ErrOrderPersist = errors.New("order could not be persisted")
	// ErrReceiptGeneration: ошибка построения PDF чека.
	ErrReceiptGeneration = errors.New("receipt generation failed")
	// ErrReceiptUpload: ошибка загрузки чека в объектное хранилище.
	ErrReceiptUpload = errors.New("receipt upload failed")
	// ErrEmailDelivery: ошибка отправки письма с чеком.
	ErrEmailDelivery = errors.New("email delivery failed")
	// ErrCheckoutInProgress: для пользователя уже выполняется оформление заказа.
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	// ErrCartVersionConflict: корзина изменилась между чтением и записью.
	ErrCartVersionConflict = errors.New("cart version conflict")
	// ErrCartNotFound возвращается, если корзина пользователя ещё не создана.
	ErrCartNotFound = errors.New("cart not found")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderExists: заказ с таким идентификатором уже записан.
	ErrOrderExists = errors.New("order already exists")
	// ErrReceiptStateTransition: недопустимый переход состояния чека.
	ErrReceiptStateTransition = errors.New("invalid receipt state transition")

	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyExists: ключ уже зарегистрирован.
	ErrIdempotencyKeyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound: ключ отсутствует или уже удалён очисткой.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch: тот же ключ пришёл с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// MissingProductError описывает товар корзины, которого больше нет в каталоге.
type MissingProductError struct {
	ProductID string
	// Name берётся из подсказки в корзине и может быть пустым.
	Name string
}

func (e *MissingProductError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("product %q (%s) not found", e.Name, e.ProductID)
	}
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Unwrap позволяет сравнивать через errors.Is(err, ErrProductNotFound).
func (e *MissingProductError) Unwrap() error {
	return ErrProductNotFound
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrCartVersionConflict)
}

// ValidationError объединяет нарушенные инварианты сущности.
type ValidationError struct {
	Errs []error
}

// NewValidationError возвращает nil, если нарушений нет.
func NewValidationError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errs: errs}
}

func (e *ValidationError) Error() string {
	return errors.Join(e.Errs...).Error()
}

func (e *ValidationError) Unwrap() []error {
	return e.Errs
}
