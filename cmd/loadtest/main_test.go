package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    loadMode
		wantErr bool
	}{
		{in: "checkout", want: modeCheckout},
		{in: " checkout-replay ", want: modeCheckoutReplay},
		{in: "browse", want: modeBrowse},
		{in: "create-pay", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseMode(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.baseURL)
	require.Equal(t, 200, cfg.total)
	require.False(t, cfg.totalSet)
	require.Equal(t, modeCheckout, cfg.mode)
	require.Equal(t, []string{"tomato", "onion"}, cfg.products)
	require.Equal(t, 10*time.Second, cfg.timeout)
}

func TestParseConfig_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := parseConfig([]string{
		"-addr", "http://shop.test:8080/",
		"-duration", "30s",
		"-total", "50",
		"-mode", "checkout-replay",
		"-products", " carrot, ,potato ",
		"-payment", "Online",
	})
	require.NoError(t, err)
	require.Equal(t, "http://shop.test:8080", cfg.baseURL)
	require.Equal(t, 30*time.Second, cfg.duration)
	require.True(t, cfg.totalSet)
	require.Equal(t, modeCheckoutReplay, cfg.mode)
	require.Equal(t, []string{"carrot", "potato"}, cfg.products)
	require.Equal(t, "Online", cfg.paymentMethod)
}

func TestParseConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"unknown flag":        {"-connections", "4"},
		"bad mode":            {"-mode", "create"},
		"negative duration":   {"-duration", "-1s"},
		"zero total":          {"-total", "0"},
		"zero total with dur": {"-duration", "1m", "-total", "0"},
		"zero concurrency":    {"-concurrency", "0"},
		"zero timeout":        {"-timeout", "0s"},
		"no products":         {"-products", " , "},
		"zero quantity":       {"-quantity", "0"},
		"bad payment":         {"-payment", "Card"},
		"empty email domain":  {"-email-domain", " "},
		"empty addr":          {"-addr", " "},
	}
	for name, args := range tests {
		_, err := parseConfig(args)
		require.Error(t, err, name)
	}

	// Для чтения каталога товары не нужны.
	_, err := parseConfig([]string{"-mode", "browse", "-products", ""})
	require.NoError(t, err)
}

func TestConfigValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	err := config{mode: modeCheckout}.validate()
	require.Error(t, err)
	for _, want := range []string{"addr", "concurrency", "timeout", "total", "products", "quantity", "payment"} {
		require.ErrorContains(t, err, want)
	}
}

func collect(ch <-chan int) []int {
	var out []int
	for i := range ch {
		out = append(out, i)
	}
	return out
}

func TestScenarioIndexes(t *testing.T) {
	t.Parallel()

	t.Run("count mode", func(t *testing.T) {
		require.Equal(t, []int{0, 1, 2, 3, 4}, collect(scenarioIndexes(context.Background(), config{total: 5})))
	})

	t.Run("duration capped by total", func(t *testing.T) {
		got := collect(scenarioIndexes(context.Background(), config{total: 3, totalSet: true, duration: time.Minute}))
		require.Len(t, got, 3)
	})

	t.Run("duration stops the run", func(t *testing.T) {
		ch := scenarioIndexes(context.Background(), config{duration: 20 * time.Millisecond})
		require.NotEmpty(t, collect(ch))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.Empty(t, collect(scenarioIndexes(ctx, config{total: 100})))
	})
}

func TestTallySummary(t *testing.T) {
	t.Parallel()

	tl := newTally()
	tl.observe("PlaceOrder", 10*time.Millisecond, http.StatusCreated, nil)
	tl.observe("PlaceOrder", 30*time.Millisecond, http.StatusConflict, nil)
	tl.observe("PlaceOrder", 20*time.Millisecond, 0, errors.New("connection refused"))
	tl.observe(scenarioStep, 50*time.Millisecond, http.StatusOK, nil)
	tl.observe(scenarioStep, 70*time.Millisecond, http.StatusInternalServerError, nil)

	place, ok := tl.step("PlaceOrder")
	require.True(t, ok)
	require.EqualValues(t, 3, place.Calls)
	require.EqualValues(t, 1, place.OK)
	require.EqualValues(t, 2, place.Failed)
	require.Equal(t, map[string]int64{"201": 1, "409": 1, codeTransport: 1}, place.Codes)
	require.InDelta(t, 20.0, place.Latency.P50, 0.001)

	_, ok = tl.step("missing")
	require.False(t, ok)

	s := tl.summarize("run-1", time.Now(), 2*time.Second)
	require.Equal(t, "run-1", s.RunID)
	require.EqualValues(t, 2, s.Scenarios.Calls)
	require.EqualValues(t, 1, s.Scenarios.Failed)
	require.InDelta(t, 0.5, s.Scenarios.FailureRatio, 0.001)
	require.InDelta(t, 1.0, s.Throughput, 0.001)
	require.Len(t, s.Steps, 1)
	require.NotContains(t, s.Steps, scenarioStep)
}

func TestDistribution(t *testing.T) {
	t.Parallel()

	require.Equal(t, latencyMs{}, distribution(nil))
	require.Zero(t, nearestRank(nil, 50))

	ms := func(v ...int) []time.Duration {
		out := make([]time.Duration, len(v))
		for i, x := range v {
			out[i] = time.Duration(x) * time.Millisecond
		}
		return out
	}
	require.Equal(t, 7*time.Millisecond, nearestRank(ms(7), 99))
	require.Equal(t, 2*time.Millisecond, nearestRank(ms(1, 2, 3, 4), 50))
	require.Equal(t, 10*time.Millisecond, nearestRank(ms(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), 91))

	d := distribution(ms(4, 1, 3, 2))
	require.Equal(t, 1.0, d.Fastest)
	require.Equal(t, 4.0, d.Slowest)
	require.InDelta(t, 2.5, d.Mean, 0.001)

	require.Zero(t, share(1, 0))
	require.InDelta(t, 0.25, share(1, 4), 0.001)

	require.Equal(t, "5 scenarios", describeRun(config{total: 5}))
	require.Equal(t, "for 1m0s", describeRun(config{duration: time.Minute}))
	require.Equal(t, "for 1m0s, at most 9 scenarios", describeRun(config{duration: time.Minute, total: 9, totalSet: true}))
}

func TestSaveSummary(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.Error(t, saveSummary(".", summary{}))
	require.Error(t, saveSummary("../outside.json", summary{}))

	want := summary{RunID: "abc", Scenarios: stepReport{Calls: 3}}
	require.NoError(t, saveSummary("summary.json", want))
	raw, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)
	var got summary
	require.NoError(t, json.Unmarshal(raw, &got))
	require.EqualValues(t, 3, got.Scenarios.Calls)

	require.NoError(t, saveSummary("summary.yaml", want))
	raw, err = os.ReadFile(filepath.Join(dir, "summary.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "run_id: abc")
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	s := summary{
		RunID:     "r1",
		Scenarios: stepReport{Calls: 2, OK: 2},
		Steps: map[string]stepReport{
			"Register":  {Calls: 2, OK: 2, Codes: map[string]int64{"201": 2}},
			"AddToCart": {Calls: 4, OK: 3, Failed: 1, Codes: map[string]int64{"200": 3, "404": 1}},
		},
	}

	var out bytes.Buffer
	printSummary(&out, s, config{mode: modeCheckout, total: 2})
	text := out.String()
	require.Contains(t, text, "vegshop loadtest r1 (checkout, 2 scenarios)")
	require.Contains(t, text, "scenarios: 2 ok, 0 failed")
	require.Contains(t, text, "[200=3 404=1]")
	require.Less(t, strings.Index(text, "AddToCart"), strings.Index(text, "Register"))
}

// fakeShop повторяет контракт REST API в объёме, нужном сценариям.
type fakeShop struct {
	mu       sync.Mutex
	users    map[string]string
	carts    map[string]int
	keys     map[string]string
	orders   atomic.Int64
	products map[string]bool
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		users:    make(map[string]string),
		carts:    make(map[string]int),
		keys:     make(map[string]string),
		products: map[string]bool{"tomato": true, "onion": true},
	}
}

func (s *fakeShop) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/vegetables", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]string{{"id": "tomato"}})
	})
	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || len(req.Password) < 6 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid"})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.users[req.Email]; exists {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "exists"})
			return
		}
		token := "tok-" + req.Email
		s.users[req.Email] = token
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "token": token})
	})
	mux.HandleFunc("POST /api/cart", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		var req cartItemRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !s.products[req.VegetableID] {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		s.mu.Lock()
		s.carts[token] += req.Quantity
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}})
	})
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		key := token + ":" + r.Header.Get(headerIdempotencyKey)

		s.mu.Lock()
		defer s.mu.Unlock()
		if id, ok := s.keys[key]; ok {
			w.Header().Set(headerReplayed, "true")
			writeJSON(w, http.StatusCreated, map[string]any{"orderId": id})
			return
		}
		if s.carts[token] == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cart is empty"})
			return
		}
		id := fmt.Sprintf("order-%d", s.orders.Add(1))
		s.keys[key] = id
		s.carts[token] = 0
		writeJSON(w, http.StatusCreated, map[string]any{"orderId": id})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestRun_CheckoutReplay(t *testing.T) {
	t.Parallel()

	shop := newFakeShop()
	server := httptest.NewServer(shop.handler())
	t.Cleanup(server.Close)

	cfg, err := parseConfig([]string{"-addr", server.URL, "-total", "12", "-concurrency", "4", "-mode", "checkout-replay"})
	require.NoError(t, err)

	s := run(context.Background(), cfg, newAPIClient(cfg.baseURL, cfg.timeout))
	require.EqualValues(t, 12, s.Scenarios.Calls)
	require.Zero(t, s.Scenarios.Failed)
	require.EqualValues(t, 12, shop.orders.Load())
	require.EqualValues(t, 24, s.Steps["AddToCart"].Calls)
	require.EqualValues(t, 12, s.Steps["PlaceOrderReplay"].OK)
}

func TestRun_Browse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newFakeShop().handler())
	t.Cleanup(server.Close)

	cfg, err := parseConfig([]string{"-addr", server.URL, "-total", "5", "-mode", "browse"})
	require.NoError(t, err)

	s := run(context.Background(), cfg, newAPIClient(cfg.baseURL, cfg.timeout))
	require.EqualValues(t, 5, s.Scenarios.OK)
	require.Equal(t, map[string]int64{"200": 5}, s.Steps["ListVegetables"].Codes)
}

func TestRunScenario_UnknownProductFails(t *testing.T) {
	t.Parallel()

	shop := newFakeShop()
	server := httptest.NewServer(shop.handler())
	t.Cleanup(server.Close)

	cfg, err := parseConfig([]string{"-addr", server.URL, "-products", "tomato,turnip"})
	require.NoError(t, err)

	tl := newTally()
	err = runScenario(context.Background(), newAPIClient(cfg.baseURL, cfg.timeout), cfg, 1, "run", tl)
	require.ErrorContains(t, err, "unexpected status 404")

	scenario, ok := tl.step(scenarioStep)
	require.True(t, ok)
	require.EqualValues(t, 1, scenario.Failed)
	_, placed := tl.step("PlaceOrder")
	require.False(t, placed)
	require.Zero(t, shop.orders.Load())
}

func TestRunScenario_ReplayWithoutMarkerFails(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	shop := newFakeShop()
	base := shop.handler()
	var calls atomic.Int64
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"orderId": fmt.Sprintf("o-%d", calls.Add(1))})
	})
	mux.Handle("/", base)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg, err := parseConfig([]string{"-addr", server.URL, "-mode", "checkout-replay"})
	require.NoError(t, err)

	err = runScenario(context.Background(), newAPIClient(cfg.baseURL, cfg.timeout), cfg, 0, "run", newTally())
	require.ErrorContains(t, err, "not marked as replayed")
}

func TestAPIClient_TransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	tl := newTally()
	client := newAPIClient(addr, time.Second)
	_, err := client.call(context.Background(), tl, "ListVegetables", http.MethodGet, "/api/vegetables", "", nil, nil)
	require.Error(t, err)

	stats, ok := tl.step("ListVegetables")
	require.True(t, ok)
	require.Equal(t, map[string]int64{codeTransport: 1}, stats.Codes)
}
