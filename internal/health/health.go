// Package health отдаёт состояние зависимостей магазина для /healthz и /readyz.
package health

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

// Status — итог проверки компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check — результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело ответа /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент: хранилище, брокер, блокировки.
type Checker interface {
	Check(ctx context.Context) Check
}

// Option настраивает Handler.
type Option func(*Handler)

// WithCheckTimeout ограничивает время одной проверки.
func WithCheckTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// Handler собирает проверки компонентов.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	timeout   time.Duration
	startTime time.Time
}

// NewHandler создаёт handler с версией сборки в ответе.
func NewHandler(version string, opts ...Option) *Handler {
	h := &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		timeout:   defaultCheckTimeout,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterChecker добавляет проверку под именем name; то же имя заменяет прежнюю.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	if checker == nil {
		return
	}
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.checkers))
}

// severity упорядочивает статусы: худший определяет общий.
func (s Status) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Evaluate опрашивает все компоненты одновременно, каждый не дольше timeout.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	checkers := maps.Clone(h.checkers)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	names := slices.Sorted(maps.Keys(checkers))
	results := make([]Check, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = checkers[name].Check(ctx)
			if results[i].Name == "" {
				results[i].Name = name
			}
		}()
	}
	wg.Wait()

	resp := Response{
		Status:        StatusHealthy,
		Timestamp:     time.Now().UTC(),
		Checks:        make(map[string]Check, len(names)),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	for i, name := range names {
		resp.Checks[name] = results[i]
		if results[i].Status.severity() > resp.Status.severity() {
			resp.Status = results[i].Status
		}
	}
	return resp
}

// ServeHTTP отдаёт отчёт в JSON. Degraded остаётся 200: магазин принимает заказы.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Evaluate(r.Context())

	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// LivenessHandler всегда отвечает 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, пока хотя бы один компонент unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	code, body := http.StatusOK, "ready"
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		code, body = http.StatusServiceUnavailable, "not ready"
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// FuncChecker — Checker поверх функции, возвращающей ошибку.
type FuncChecker struct {
	name string
	ping func(ctx context.Context) error
	// onFailure: статус при ошибке ping.
	onFailure Status
}

// NewPingChecker помечает компонент unhealthy при ошибке ping.
func NewPingChecker(name string, ping func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, ping: ping, onFailure: StatusUnhealthy}
}

// NewOptionalChecker помечает компонент degraded при ошибке: сервис работает и без него.
func NewOptionalChecker(name string, ping func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, ping: ping, onFailure: StatusDegraded}
}

func (c *FuncChecker) Check(ctx context.Context) Check {
	started := time.Now()
	err := c.ping(ctx)
	out := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(started).Milliseconds()}
	if err != nil {
		out.Status, out.Message = c.onFailure, err.Error()
	}
	return out
}
