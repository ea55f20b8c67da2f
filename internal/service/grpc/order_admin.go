// Package grpcsvc — внутренний административный gRPC API заказов.
// Сообщения описаны well-known типами protobuf, поэтому генерация кода не нужна.
package grpcsvc

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/service/checkout"
)

const (
	// ServiceName: полное имя сервиса в gRPC.
	ServiceName = "vegshop.admin.v1.OrderAdmin"

	methodGetOrder       = "GetOrder"
	methodResumeOrder    = "ResumeOrder"
	methodListUnfinished = "ListUnfinished"
	methodGetTimeline    = "GetTimeline"

	defaultListLimit = 100
	maxListLimit     = 1000
)

// OrderAdminServer — серверная часть административного API.
type OrderAdminServer interface {
	GetOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	ResumeOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	ListUnfinished(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error)
	GetTimeline(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error)
}

// Resumer продолжает незавершённое оформление заказа.
type Resumer interface {
	Resume(ctx context.Context, orderID string) (checkout.Result, error)
}

// OrderAdmin реализует OrderAdminServer поверх репозиториев и сервиса оформления.
type OrderAdmin struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	resumer  Resumer
	logger   *log.Entry
	now      func() time.Time
}

// NewOrderAdmin конструирует сервис. timeline может быть nil.
func NewOrderAdmin(orders domain.OrderRepository, timeline domain.TimelineRepository, resumer Resumer, logger *log.Entry) *OrderAdmin {
	if logger == nil {
		logger = log.WithField("component", "grpc-order-admin")
	}
	return &OrderAdmin{
		orders:   orders,
		timeline: timeline,
		resumer:  resumer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register добавляет сервис в gRPC сервер.
func Register(server grpc.ServiceRegistrar, srv OrderAdminServer) {
	server.RegisterService(&serviceDesc, srv)
}

// GetOrder возвращает заказ по идентификатору.
func (s *OrderAdmin) GetOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := requireOrderID(req)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, s.toStatus(err, "failed to load order")
	}
	return orderStruct(order)
}

// ResumeOrder запускает восстановление чека и письма вручную.
func (s *OrderAdmin) ResumeOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := requireOrderID(req)
	if err != nil {
		return nil, err
	}
	if s.resumer == nil {
		return nil, status.Error(codes.Unimplemented, "resume is not configured")
	}

	result, err := s.resumer.Resume(ctx, id)
	if err != nil {
		return nil, s.toStatus(err, "failed to resume order")
	}
	s.logger.WithFields(log.Fields{
		"order_id": id,
		"state":    result.ReceiptState,
		"warnings": len(result.Warnings),
	}).Info("order resumed via admin api")
	return resultStruct(result)
}

// ListUnfinished возвращает заказы, у которых чек или письмо ещё не готовы.
func (s *OrderAdmin) ListUnfinished(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	limit := defaultListLimit
	if req != nil && req.GetValue() > 0 {
		limit = int(req.GetValue())
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	// Ограничение по попыткам не применяется: администратору видны и исчерпавшие их.
	orders, err := s.orders.ListUnfinished(ctx, s.now(), 0, limit)
	if err != nil {
		return nil, s.toStatus(err, "failed to list orders")
	}

	values := make([]any, 0, len(orders))
	for _, order := range orders {
		values = append(values, orderMap(order))
	}
	return structpb.NewList(values)
}

// GetTimeline возвращает события заказа.
func (s *OrderAdmin) GetTimeline(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	id, err := requireOrderID(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.orders.Get(ctx, id); err != nil {
		return nil, s.toStatus(err, "failed to load order")
	}
	if s.timeline == nil {
		return &structpb.ListValue{}, nil
	}

	events, err := s.timeline.List(ctx, id)
	if err != nil {
		return nil, s.toStatus(err, "failed to load timeline")
	}
	values := make([]any, 0, len(events))
	for _, e := range events {
		values = append(values, map[string]any{
			"type":     e.Type,
			"reason":   e.Reason,
			"occurred": e.Occurred.UTC().Format(time.RFC3339Nano),
		})
	}
	return structpb.NewList(values)
}

func requireOrderID(req *wrapperspb.StringValue) (string, error) {
	if req == nil || req.GetValue() == "" {
		return "", status.Error(codes.InvalidArgument, "order_id is required")
	}
	return req.GetValue(), nil
}

func (s *OrderAdmin) toStatus(err error, internalMsg string) error {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, domain.ErrOrderNotFound.Error())
	case errors.Is(err, domain.ErrCheckoutInProgress), domain.IsVersionConflict(err):
		return status.Error(codes.Aborted, err.Error())
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		s.logger.WithError(err).Error(internalMsg)
		return status.Error(codes.Internal, internalMsg)
	}
}

func orderMap(order domain.Order) map[string]any {
	lines := make([]any, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, map[string]any{
			"vegetable_id": line.ProductID,
			"name":         line.Name,
			"unit_price":   line.UnitPrice.StringFixed(2),
			"quantity":     line.Quantity,
			"line_total":   line.LineTotal().StringFixed(2),
		})
	}
	return map[string]any{
		"id":                order.ID,
		"customer_id":       order.CustomerID,
		"items":             lines,
		"total_price":       order.TotalPrice.StringFixed(2),
		"currency":          order.Currency,
		"status":            string(order.Status),
		"payment_method":    string(order.PaymentMethod),
		"receipt_url":       order.ReceiptURL,
		"receipt_state":     string(order.ReceiptState),
		"recovery_attempts": order.RecoveryAttempts,
		"last_error":        order.LastError,
		"created_at":        order.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":        order.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func orderStruct(order domain.Order) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(orderMap(order))
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode order")
	}
	return out, nil
}

func resultStruct(result checkout.Result) (*structpb.Struct, error) {
	warnings := make([]any, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		warnings = append(warnings, map[string]any{
			"step":    string(w.Step),
			"message": w.Error(),
		})
	}
	out, err := structpb.NewStruct(map[string]any{
		"order_id":      result.OrderID,
		"total_price":   result.TotalPrice.StringFixed(2),
		"currency":      result.Currency,
		"receipt_url":   result.ReceiptURL,
		"receipt_state": string(result.ReceiptState),
		"warnings":      warnings,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return out, nil
}

var _ OrderAdminServer = (*OrderAdmin)(nil)
