package domain

import (
	"strings"
	"time"
)

// DefaultIdempotencyTTL — срок хранения ключа оформления, если он не задан явно.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStatus — состояние запроса оформления, пришедшего с Idempotency-Key.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing: оформление ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone: заказ оформлен, ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed: оформление отклонено, ответ с ошибкой тоже сохранён.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус известен.
func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// IdempotencyRecord — ключ вместе с сохранённым HTTP-ответом.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScopedIdempotencyKey привязывает клиентский ключ к пользователю:
// одинаковые ключи разных покупателей не пересекаются.
func ScopedIdempotencyKey(actorID, key string) string {
	return strings.TrimSpace(actorID) + ":" + strings.TrimSpace(key)
}

// NewIdempotencyRecord создаёт запись в статусе processing. Нулевой ttlAt
// заменяется на now + DefaultIdempotencyTTL.
func NewIdempotencyRecord(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	case requestHash == "":
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ConflictWith объясняет, почему повторный запрос с тем же ключом не создаёт новую запись.
func (r IdempotencyRecord) ConflictWith(requestHash string) error {
	if r.RequestHash != strings.TrimSpace(requestHash) {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyExists
}

// Complete сохраняет итоговый ответ. status должен быть done или failed.
func (r *IdempotencyRecord) Complete(status IdempotencyStatus, body []byte, httpStatus int, now time.Time) {
	r.Status = status
	r.ResponseBody = append([]byte(nil), body...)
	r.HTTPStatus = httpStatus
	r.UpdatedAt = now
}

// Finished сообщает, что сохранённый ответ можно вернуть повторно.
func (r IdempotencyRecord) Finished() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Expired сообщает, что запись можно удалить.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}
