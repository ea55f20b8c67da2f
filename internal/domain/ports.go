package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptRenderer строит PDF чека. Чистая функция без ввода-вывода.
type ReceiptRenderer interface {
	Render(data ReceiptData) ([]byte, error)
}

// ReceiptData — всё, что нужно для построения чека.
type ReceiptData struct {
	OrderID       string
	CustomerName  string
	CustomerEmail string
	Lines         []OrderLine
	TotalPrice    decimal.Decimal
	Currency      string
	PaymentMethod PaymentMethod
	PlacedAt      time.Time
}

// Object — бинарный объект для загрузки в объектное хранилище.
type Object struct {
	// Key: путь объекта внутри хранилища, например receipts/order-<id>.pdf.
	Key         string
	ContentType string
	Body        []byte
}

// ObjectStore сохраняет объект и возвращает URL для скачивания.
type ObjectStore interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// Attachment — вложение письма.
type Attachment struct {
	Filename    string
	ContentType string
	Body        []byte
}

// MailMessage — транзакционное письмо.
type MailMessage struct {
	To          string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Mailer отправляет письма.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// CheckoutLocker сериализует оформление заказов одного пользователя.
// Acquire не ждёт: если блокировка занята, возвращается ErrCheckoutInProgress.
type CheckoutLocker interface {
	Acquire(ctx context.Context, actorID string) (release func(), err error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Release освобождает ключ, пока запрос в статусе processing, чтобы клиент мог повторить его.
	// Завершённые записи не трогает; отсутствие ключа не ошибка.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// CheckoutStep задаёт константы шагов оформления для метрик/логов.
type CheckoutStep string

const (
	CheckoutStepLoadCart     CheckoutStep = "load_cart"
	CheckoutStepLoadCustomer CheckoutStep = "load_customer"
	CheckoutStepPricing      CheckoutStep = "pricing"
	CheckoutStepPersist      CheckoutStep = "persist"
	CheckoutStepRender       CheckoutStep = "receipt_generation"
	CheckoutStepUpload       CheckoutStep = "receipt_upload"
	CheckoutStepAttach       CheckoutStep = "receipt_attach"
	CheckoutStepEmail        CheckoutStep = "email_delivery"
	CheckoutStepClearCart    CheckoutStep = "cart_clear"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
