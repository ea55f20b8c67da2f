package domain

import (
	"errors"
	"time"
)

// Типы событий жизненного цикла заказа. Совпадают с типами событий outbox.
const (
	EventOrderPlaced           = "order.placed"
	EventReceiptPending        = "order.receipt_pending"
	EventReceiptReady          = "order.receipt_ready"
	EventNotificationSent      = "order.notification_sent"
	EventNotificationFailed    = "order.notification_failed"
	EventCartCleared           = "cart.cleared"
	EventCartClearFailed       = "cart.clear_failed"
	EventRecoveryAttemptFailed = "order.recovery_failed"
)

// ErrTimelineEventInvalid — у события нет заказа или типа.
var ErrTimelineEventInvalid = errors.New("timeline event requires order id and type")

// TimelineEvent — запись журнала шагов оформления. Reason заполняется
// только для неудачных шагов.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// Validate проверяет обязательные поля перед записью в журнал.
func (e TimelineEvent) Validate() error {
	if e.OrderID == "" || e.Type == "" {
		return ErrTimelineEventInvalid
	}
	return nil
}
