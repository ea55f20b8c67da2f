package grpcsvc_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/service/auth"
	"github.com/vladislavdragonenkov/vegshop/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/vegshop/internal/service/grpc"
	"github.com/vladislavdragonenkov/vegshop/internal/storage/memory"
)

const bufSize = 1024 * 1024

type stubResumer struct {
	calls []string
	err   error
}

func (r *stubResumer) Resume(_ context.Context, orderID string) (checkout.Result, error) {
	r.calls = append(r.calls, orderID)
	if r.err != nil {
		return checkout.Result{}, r.err
	}
	return checkout.Result{
		OrderID:      orderID,
		TotalPrice:   decimal.RequireFromString("80"),
		Currency:     domain.DefaultCurrency,
		ReceiptURL:   "http://files.test/receipts/order-" + orderID + ".pdf",
		ReceiptState: domain.ReceiptStateNotified,
	}, nil
}

type stubVerifier map[string]auth.Principal

func (v stubVerifier) Verify(raw string) (auth.Principal, error) {
	if p, ok := v[raw]; ok {
		return p, nil
	}
	return auth.Principal{}, auth.ErrInvalidToken
}

type testEnv struct {
	client  *grpcsvc.OrderAdminClient
	health  healthpb.HealthClient
	orders  domain.OrderRepository
	resumer *stubResumer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	orders := memory.NewOrderRepository()
	timeline := memory.NewTimelineRepository()
	resumer := &stubResumer{}

	verifier := stubVerifier{
		"admin-token": {UserID: "admin-1", Role: domain.RoleAdmin},
		"user-token":  {UserID: "user-1", Role: domain.RoleUser},
	}

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcsvc.AdminAuthInterceptor(verifier)))
	grpcsvc.Register(server, grpcsvc.NewOrderAdmin(orders, timeline, resumer, logger.WithField("component", "test")))
	healthpb.RegisterHealthServer(server, health.NewServer())

	go func() {
		_ = server.Serve(listener)
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	ctx := context.Background()
	require.NoError(t, orders.Create(ctx, domain.Order{
		ID:           "order-1",
		CustomerID:   "user-1",
		Lines:        []domain.OrderLine{{ProductID: "veg-1", Name: "Tomato", UnitPrice: decimal.RequireFromString("40"), Quantity: 2}},
		TotalPrice:   decimal.RequireFromString("80"),
		Currency:     domain.DefaultCurrency,
		Status:       domain.OrderStatusCompleted,
		ReceiptState: domain.ReceiptStatePending,
		CreatedAt:    time.Now().UTC().Add(-time.Hour),
		UpdatedAt:    time.Now().UTC().Add(-time.Hour),
	}))
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{OrderID: "order-1", Type: domain.EventOrderPlaced, Occurred: time.Now().UTC()}))

	return &testEnv{
		client:  grpcsvc.NewOrderAdminClient(conn),
		health:  healthpb.NewHealthClient(conn),
		orders:  orders,
		resumer: resumer,
	}
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestOrderAdmin_GetOrder(t *testing.T) {
	env := newTestEnv(t)

	order, err := env.client.GetOrder(withToken("admin-token"), "order-1")
	require.NoError(t, err)

	fields := order.AsMap()
	require.Equal(t, "order-1", fields["id"])
	require.Equal(t, "80.00", fields["total_price"])
	require.Equal(t, string(domain.ReceiptStatePending), fields["receipt_state"])
	require.Len(t, fields["items"], 1)

	_, err = env.client.GetOrder(withToken("admin-token"), "missing")
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = env.client.GetOrder(withToken("admin-token"), "")
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestOrderAdmin_ResumeOrder(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.client.ResumeOrder(withToken("admin-token"), "order-1")
	require.NoError(t, err)
	require.Equal(t, string(domain.ReceiptStateNotified), result.AsMap()["receipt_state"])
	require.Equal(t, []string{"order-1"}, env.resumer.calls)

	env.resumer.err = domain.ErrCheckoutInProgress
	_, err = env.client.ResumeOrder(withToken("admin-token"), "order-1")
	require.Equal(t, codes.Aborted, status.Code(err))

	env.resumer.err = errors.New("storage down")
	_, err = env.client.ResumeOrder(withToken("admin-token"), "order-1")
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestOrderAdmin_ListUnfinishedAndTimeline(t *testing.T) {
	env := newTestEnv(t)

	list, err := env.client.ListUnfinished(withToken("admin-token"), 0)
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 1)

	events, err := env.client.GetTimeline(withToken("admin-token"), "order-1")
	require.NoError(t, err)
	require.Len(t, events.GetValues(), 1)
	require.Equal(t, domain.EventOrderPlaced, events.GetValues()[0].GetStructValue().AsMap()["type"])
}

func TestOrderAdmin_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.GetOrder(context.Background(), "order-1")
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = env.client.GetOrder(withToken("garbage"), "order-1")
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = env.client.GetOrder(withToken("user-token"), "order-1")
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	resp, err := env.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
