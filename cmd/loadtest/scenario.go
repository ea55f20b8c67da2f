package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	loadPassword         = "loadtest-password"
)

// apiClient — минимальный клиент REST API магазина.
type apiClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

type apiResponse struct {
	status int
	header http.Header
	body   []byte
}

func (c *apiClient) do(ctx context.Context, method, path, token string, headers map[string]string, payload any) (apiResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apiResponse{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apiResponse{}, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiResponse{}, fmt.Errorf("read response: %w", err)
	}
	return apiResponse{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

// call выполняет запрос и записывает его в статистику под именем op.
func (c *apiClient) call(ctx context.Context, t *tally, op, method, path, token string, headers map[string]string, payload any) (apiResponse, error) {
	start := time.Now()
	resp, err := c.do(ctx, method, path, token, headers, payload)
	t.observe(op, time.Since(start), resp.status, err)
	if err != nil {
		return resp, err
	}
	if resp.status >= http.StatusBadRequest {
		return resp, fmt.Errorf("%s: unexpected status %d: %s", op, resp.status, strings.TrimSpace(string(resp.body)))
	}
	return resp, nil
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
}

type cartItemRequest struct {
	VegetableID string `json:"vegetableId"`
	Quantity    int    `json:"quantity"`
}

type placeOrderRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

type placeOrderResponse struct {
	OrderID string `json:"orderId"`
}

func runScenario(ctx context.Context, client *apiClient, cfg config, index int, runID string, t *tally) (err error) {
	scenarioStart := time.Now()
	defer func() {
		status := http.StatusOK
		if err != nil {
			status = http.StatusInternalServerError
		}
		t.observe(scenarioStep, time.Since(scenarioStart), status, nil)
	}()

	if cfg.mode == modeBrowse {
		_, err = client.call(ctx, t, "ListVegetables", http.MethodGet, "/api/vegetables", "", nil, nil)
		return err
	}

	email := fmt.Sprintf("%s-%s-%d@%s", cfg.customerTag, runID, index, cfg.emailDomain)
	resp, err := client.call(ctx, t, "Register", http.MethodPost, "/api/auth/register", "", nil, registerRequest{
		FirstName: "Load",
		LastName:  fmt.Sprintf("Customer %d", index),
		Email:     email,
		Password:  loadPassword,
	})
	if err != nil {
		return err
	}
	var auth authResponse
	if err := json.Unmarshal(resp.body, &auth); err != nil || auth.Token == "" {
		return errors.New("register response has no token")
	}

	for _, id := range cfg.products {
		if _, err := client.call(ctx, t, "AddToCart", http.MethodPost, "/api/cart", auth.Token, nil, cartItemRequest{
			VegetableID: id,
			Quantity:    cfg.quantity,
		}); err != nil {
			return err
		}
	}

	key := fmt.Sprintf("lt-%s-%d", runID, index)
	orderID, err := placeOrder(ctx, client, t, "PlaceOrder", auth.Token, key, cfg.paymentMethod, false)
	if err != nil {
		return err
	}

	if cfg.mode != modeCheckoutReplay {
		return nil
	}

	replayedID, err := placeOrder(ctx, client, t, "PlaceOrderReplay", auth.Token, key, cfg.paymentMethod, true)
	if err != nil {
		return err
	}
	if replayedID != orderID {
		return fmt.Errorf("replay returned order %s, want %s", replayedID, orderID)
	}
	return nil
}

func placeOrder(ctx context.Context, client *apiClient, t *tally, op, token, key, paymentMethod string, wantReplay bool) (string, error) {
	resp, err := client.call(ctx, t, op, http.MethodPost, "/api/orders", token,
		map[string]string{headerIdempotencyKey: key},
		placeOrderRequest{PaymentMethod: paymentMethod},
	)
	if err != nil {
		return "", err
	}
	if resp.status != http.StatusCreated {
		return "", fmt.Errorf("%s: unexpected status %d", op, resp.status)
	}
	if wantReplay && resp.header.Get(headerReplayed) != "true" {
		return "", fmt.Errorf("%s: response is not marked as replayed", op)
	}

	var out placeOrderResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", op, err)
	}
	if out.OrderID == "" {
		return "", fmt.Errorf("%s: response returned empty order id", op)
	}
	return out.OrderID, nil
}
