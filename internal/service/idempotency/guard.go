package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const defaultKeyTTL = 24 * time.Hour

// ErrRequestInFlight — запрос с тем же ключом ещё выполняется.
var ErrRequestInFlight = errors.New("request with the same idempotency key is already processing")

// Response — сохранённый ответ, который повторно отдаётся клиенту.
type Response struct {
	Status int
	Body   []byte
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithKeyTTL задаёт время жизни ключа.
func WithKeyTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGuardLogger задаёт logger.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardClock подменяет источник времени.
func WithGuardClock(clock func() time.Time) GuardOption {
	return func(g *Guard) {
		if clock != nil {
			g.now = clock
		}
	}
}

// Guard обеспечивает не более одного оформления заказа на ключ Idempotency-Key.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт Guard поверх репозитория ключей.
func NewGuard(repo domain.IdempotencyRepository, opts ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    defaultKeyTTL,
		logger: log.WithField("component", "idempotency-guard"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequestHash связывает ключ с владельцем и телом запроса.
func RequestHash(actorID string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(strings.TrimSpace(actorID)))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// Do выполняет handler один раз для ключа. Повторный вызов с тем же ключом
// и тем же hash возвращает сохранённый ответ и replayed=true.
//
// Сохраняются только окончательные ответы: 2xx и детерминированные 4xx.
// После 409, 429 и 5xx ключ освобождается, и повтор снова вызывает handler.
func (g *Guard) Do(ctx context.Context, key, requestHash string, handler func(context.Context) Response) (Response, bool, error) {
	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	if err != nil {
		return g.replay(err, record)
	}

	resp := handler(ctx)
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}

	// Ответ сохраняется даже после отмены запроса клиентом.
	storeCtx := context.WithoutCancel(ctx)
	switch {
	case resp.Status < http.StatusBadRequest:
		err = g.repo.MarkDone(storeCtx, key, resp.Body, resp.Status)
	case retryable(resp.Status):
		err = g.repo.Release(storeCtx, key)
	default:
		err = g.repo.MarkFailed(storeCtx, key, resp.Body, resp.Status)
	}
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}

	return resp, false, nil
}

// retryable сообщает, что ответ зависит от момента запроса и не должен повторяться клиенту.
func retryable(status int) bool {
	return status == http.StatusConflict ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}

func (g *Guard) replay(createErr error, record domain.IdempotencyRecord) (Response, bool, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, false, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyExists):
		if !record.Finished() {
			return Response{}, false, ErrRequestInFlight
		}
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		return Response{Status: status, Body: append([]byte(nil), record.ResponseBody...)}, true, nil
	default:
		return Response{}, false, createErr
	}
}
