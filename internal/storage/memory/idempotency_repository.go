package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// IdempotencyRepository хранит ключи оформления заказов в памяти процесса.
type IdempotencyRepository struct {
	mu   sync.Mutex
	keys map[string]*domain.IdempotencyRecord
	now  func() time.Time
}

// NewIdempotencyRepository создаёт пустое хранилище ключей.
func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{
		keys: make(map[string]*domain.IdempotencyRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateProcessing занимает ключ. Если ключ уже есть, возвращает его запись
// вместе с ErrIdempotencyKeyExists или ErrIdempotencyHashMismatch.
func (r *IdempotencyRepository) CreateProcessing(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, r.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.keys[record.Key]; ok {
		return copyRecord(existing), existing.ConflictWith(record.RequestHash)
	}
	r.keys[record.Key] = &record
	return copyRecord(&record), nil
}

// Get возвращает запись по ключу.
func (r *IdempotencyRepository) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.keys[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

// MarkDone сохраняет успешный ответ.
func (r *IdempotencyRepository) MarkDone(_ context.Context, key string, body []byte, httpStatus int) error {
	return r.complete(key, domain.IdempotencyStatusDone, body, httpStatus)
}

// MarkFailed сохраняет ответ с ошибкой; повтор запроса вернёт его же.
func (r *IdempotencyRepository) MarkFailed(_ context.Context, key string, body []byte, httpStatus int) error {
	return r.complete(key, domain.IdempotencyStatusFailed, body, httpStatus)
}

func (r *IdempotencyRepository) Release(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.keys[key]; ok && !record.Finished() {
		delete(r.keys, key)
	}
	return nil
}

// DeleteExpired удаляет до limit просроченных ключей, начиная с самых старых.
func (r *IdempotencyRepository) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*domain.IdempotencyRecord
	for _, record := range r.keys {
		if record.Expired(before) {
			expired = append(expired, record)
		}
	}
	slices.SortFunc(expired, func(a, b *domain.IdempotencyRecord) int {
		return a.TTLAt.Compare(b.TTLAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, record := range expired {
		delete(r.keys, record.Key)
	}
	return len(expired), nil
}

// Len возвращает число хранимых ключей.
func (r *IdempotencyRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func (r *IdempotencyRepository) complete(key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.keys[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Complete(status, body, httpStatus, r.now())
	return nil
}

func copyRecord(src *domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := *src
	dst.ResponseBody = slices.Clone(src.ResponseBody)
	return dst
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
