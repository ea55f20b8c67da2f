package httpsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/report"
	"github.com/vladislavdragonenkov/vegshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/vegshop/internal/service/idempotency"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	defaultOrdersLimit   = 50
	maxOrdersLimit       = 500
)

func (h *handler) placeOrder(c *gin.Context) {
	actorID := principalFrom(c).UserID

	body, err := c.GetRawData()
	if err != nil {
		h.failKind(c, KindInvalidRequest)
		return
	}
	var req placeOrderRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.failKind(c, KindInvalidRequest)
			return
		}
	}

	run := func(ctx context.Context) idempotency.Response {
		result, err := h.svc.Checkout.PlaceOrder(ctx, actorID, checkout.PlaceOptions{PaymentMethod: req.PaymentMethod})
		if err != nil {
			status, payload := errorBody(err)
			if status >= http.StatusInternalServerError {
				h.logger.WithError(err).WithField("actor_id", actorID).Error("order placement failed")
			}
			return jsonResponse(status, payload)
		}
		return jsonResponse(http.StatusCreated, newPlaceOrderResponse(result))
	}

	key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	if key == "" || h.svc.Idempotency == nil {
		resp := run(c.Request.Context())
		c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
		return
	}

	resp, replayed, err := h.svc.Idempotency.Do(c.Request.Context(), domain.ScopedIdempotencyKey(actorID, key), idempotency.RequestHash(actorID, body), run)
	if err != nil {
		h.fail(c, err)
		return
	}
	if replayed {
		c.Header(headerReplayed, "true")
	}
	c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
}

func jsonResponse(status int, payload any) idempotency.Response {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"Internal server error","kind":"internal"}`)
	}
	return idempotency.Response{Status: status, Body: body}
}

func (h *handler) listOrders(c *gin.Context) {
	principal := principalFrom(c)
	limit := parseLimit(c.Query("limit"))

	var (
		orders []domain.Order
		err    error
	)
	if principal.IsAdmin() && c.Query("all") == "true" {
		orders, err = h.svc.Orders.List(c.Request.Context(), limit)
	} else {
		orders, err = h.svc.Orders.ListByCustomer(c.Request.Context(), principal.UserID, limit)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, newOrderView(o))
	}
	c.JSON(http.StatusOK, views)
}

func (h *handler) getOrder(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newOrderView(order))
}

func (h *handler) getTimeline(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	events, err := h.svc.Timeline.List(c.Request.Context(), order.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]timelineView, 0, len(events))
	for _, e := range events {
		views = append(views, timelineView{Type: e.Type, Reason: e.Reason, Occurred: e.Occurred})
	}
	c.JSON(http.StatusOK, views)
}

// loadOwnedOrder возвращает 404 и для чужих заказов, чтобы не раскрывать их существование.
func (h *handler) loadOwnedOrder(c *gin.Context) (domain.Order, bool) {
	principal := principalFrom(c)
	order, err := h.svc.Orders.Get(c.Request.Context(), c.Param("id"))
	if err == nil && order.CustomerID != principal.UserID && !principal.IsAdmin() {
		err = domain.ErrOrderNotFound
	}
	if err != nil {
		h.fail(c, err)
		return domain.Order{}, false
	}
	return order, true
}

func (h *handler) exportOrders(c *gin.Context) {
	ctx := c.Request.Context()
	orders, err := h.svc.Orders.List(ctx, 0)
	if err != nil {
		h.fail(c, err)
		return
	}

	users := make(map[string]domain.User)
	lookup := func(id string) domain.User {
		if u, ok := users[id]; ok {
			return u
		}
		u, err := h.svc.Users.Get(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			h.logger.WithError(err).WithField("customer_id", id).Warn("failed to load customer for export")
		}
		users[id] = u
		return u
	}

	filename := report.Filename(time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", report.ContentType)
	c.Status(http.StatusOK)
	if err := report.WriteOrders(c.Writer, orders, lookup); err != nil {
		h.logger.WithError(err).Error("failed to write orders export")
	}
}

func parseLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultOrdersLimit
	}
	if limit > maxOrdersLimit {
		return maxOrdersLimit
	}
	return limit
}
