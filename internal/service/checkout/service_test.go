package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/lock"
	"github.com/vladislavdragonenkov/vegshop/internal/receipt"
	"github.com/vladislavdragonenkov/vegshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/vegshop/internal/storage/memory"
)

const actorID = "user-1"

type stubStore struct {
	mu       sync.Mutex
	uploads  map[string][]byte
	err      error
	block    chan struct{}
	entered  chan struct{}
	onUpload func()
}

func newStubStore() *stubStore {
	return &stubStore{uploads: make(map[string][]byte)}
}

func (s *stubStore) Upload(ctx context.Context, obj domain.Object) (string, error) {
	if s.onUpload != nil {
		s.onUpload()
	}
	if s.entered != nil {
		close(s.entered)
		s.entered = nil
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.uploads[obj.Key] = obj.Body
	return "http://files.test/" + obj.Key, nil
}

func (s *stubStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

type stubMailer struct {
	mu   sync.Mutex
	sent []domain.MailMessage
	err  error
}

func (m *stubMailer) Send(_ context.Context, msg domain.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *stubMailer) messages() []domain.MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MailMessage(nil), m.sent...)
}

type failingOrders struct {
	domain.OrderRepository
	createErr error
}

func (f *failingOrders) Create(ctx context.Context, order domain.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.OrderRepository.Create(ctx, order)
}

type failingRenderer struct{}

func (failingRenderer) Render(domain.ReceiptData) ([]byte, error) {
	return nil, errors.New("font missing")
}

type fixture struct {
	carts    domain.CartRepository
	products domain.ProductRepository
	orders   *failingOrders
	users    domain.UserRepository
	outbox   *memory.OutboxRepository
	timeline domain.TimelineRepository
	store    *stubStore
	mailer   *stubMailer
	renderer domain.ReceiptRenderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		carts:    memory.NewCartRepository(),
		products: memory.NewProductRepository(),
		orders:   &failingOrders{OrderRepository: memory.NewOrderRepository()},
		users:    memory.NewUserRepository(),
		outbox:   memory.NewOutboxRepository(),
		timeline: memory.NewTimelineRepository(),
		store:    newStubStore(),
		mailer:   &stubMailer{},
		renderer: receipt.NewGenerator(),
	}

	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, domain.User{ID: actorID, FirstName: "Anna", LastName: "Petrova", Email: "anna@example.com"}))
	require.NoError(t, f.products.Create(ctx, domain.Product{ID: "p-tomato", Name: "Tomato", Price: decimal.NewFromInt(40), DiscountPercent: decimal.Zero, Stock: 10, Available: true}))
	require.NoError(t, f.products.Create(ctx, domain.Product{ID: "p-onion", Name: "Onion", Price: decimal.NewFromInt(35), DiscountPercent: decimal.Zero, Stock: 10, Available: true}))
	return f
}

func (f *fixture) fillCart(t *testing.T, lines ...domain.CartLine) domain.Cart {
	t.Helper()
	cart := domain.Cart{ActorID: actorID}
	for _, l := range lines {
		require.NoError(t, cart.Upsert(l.ProductID, l.Name, l.Quantity, time.Now()))
	}
	saved, err := f.carts.Save(context.Background(), cart)
	require.NoError(t, err)
	return saved
}

func (f *fixture) defaultCart(t *testing.T) domain.Cart {
	return f.fillCart(t,
		domain.CartLine{ProductID: "p-tomato", Name: "Tomato", Quantity: 2},
		domain.CartLine{ProductID: "p-onion", Name: "Onion", Quantity: 1},
	)
}

func (f *fixture) service(t *testing.T, opts ...checkout.Option) *checkout.Service {
	t.Helper()
	svc, err := checkout.New(checkout.Dependencies{
		Carts:    f.carts,
		Products: f.products,
		Orders:   f.orders,
		Users:    f.users,
		Renderer: f.renderer,
		Store:    f.store,
		Mailer:   f.mailer,
		Locker:   lock.NewLocal(),
		Outbox:   f.outbox,
		Timeline: f.timeline,
	}, opts...)
	require.NoError(t, err)
	return svc
}

func (f *fixture) ordersOf(t *testing.T) []domain.Order {
	t.Helper()
	orders, err := f.orders.ListByCustomer(context.Background(), actorID, 0)
	require.NoError(t, err)
	return orders
}

func (f *fixture) cartLines(t *testing.T) []domain.CartLine {
	t.Helper()
	cart, err := f.carts.GetByActor(context.Background(), actorID)
	require.NoError(t, err)
	return cart.Lines
}

func hasWarning(res checkout.Result, kind error) bool {
	for _, w := range res.Warnings {
		if errors.Is(w, kind) {
			return true
		}
	}
	return false
}

func TestPlaceOrder_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)
	svc := f.service(t, checkout.WithIDGenerator(func() string { return "ord-1" }))

	res, err := svc.PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.NoError(t, err)

	require.Equal(t, "ord-1", res.OrderID)
	require.True(t, res.TotalPrice.Equal(decimal.NewFromInt(115)), "total %s", res.TotalPrice)
	require.Equal(t, "http://files.test/receipts/order-ord-1.pdf", res.ReceiptURL)
	require.False(t, res.ReceiptPending())
	require.Empty(t, res.Warnings)

	stored, err := f.orders.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, stored.Status)
	require.Equal(t, domain.PaymentMethodCOD, stored.PaymentMethod)
	require.Equal(t, domain.ReceiptStateNotified, stored.ReceiptState)
	require.Equal(t, res.ReceiptURL, stored.ReceiptURL)
	require.Len(t, stored.Lines, 2)
	require.Equal(t, "Tomato", stored.Lines[0].Name)
	require.True(t, stored.Lines[0].UnitPrice.Equal(decimal.NewFromInt(40)))
	require.Empty(t, stored.ValidateInvariants())

	msgs := f.mailer.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "anna@example.com", msgs[0].To)
	require.Contains(t, msgs[0].Subject, "ord-1")
	require.Contains(t, msgs[0].HTMLBody, res.ReceiptURL)
	require.Len(t, msgs[0].Attachments, 1)
	require.Equal(t, "order-ord-1.pdf", msgs[0].Attachments[0].Filename)
	require.Equal(t, 1, f.store.count())

	require.Empty(t, f.cartLines(t), "cart must be cleared")

	events, err := f.timeline.List(context.Background(), "ord-1")
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	require.Equal(t, []string{
		domain.EventOrderPlaced,
		domain.EventReceiptReady,
		domain.EventNotificationSent,
		domain.EventCartCleared,
	}, types)
	require.Len(t, f.outbox.AllPending(), 4)
}

func TestPlaceOrder_EmptyCartHasNoSideEffects(t *testing.T) {
	cases := map[string]func(f *fixture, t *testing.T){
		"no cart":    func(*fixture, *testing.T) {},
		"empty cart": func(f *fixture, t *testing.T) { f.fillCart(t) },
	}
	for name, prepare := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			prepare(f, t)

			_, err := f.service(t).PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
			require.ErrorIs(t, err, domain.ErrEmptyCart)

			require.Empty(t, f.ordersOf(t))
			require.Zero(t, f.store.count())
			require.Empty(t, f.mailer.messages())
			require.Empty(t, f.outbox.AllPending())
		})
	}
}

func TestPlaceOrder_MissingProductAborts(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t,
		domain.CartLine{ProductID: "p-tomato", Name: "Tomato", Quantity: 2},
		domain.CartLine{ProductID: "p-gone", Name: "Carrot", Quantity: 1},
	)

	_, err := f.service(t).PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	var missing *domain.MissingProductError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "Carrot", missing.Name)

	require.Empty(t, f.ordersOf(t))
	require.Len(t, f.cartLines(t), 2, "cart must stay untouched")
	require.Empty(t, f.mailer.messages())
}

func TestPlaceOrder_PersistFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)
	f.orders.createErr = errors.New("connection reset")

	_, err := f.service(t).PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.ErrorIs(t, err, domain.ErrOrderPersist)

	require.Zero(t, f.store.count())
	require.Empty(t, f.mailer.messages())
	require.Len(t, f.cartLines(t), 2)
	require.Empty(t, f.outbox.AllPending())
}

func TestPlaceOrder_UploadFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)
	f.store.err = errors.New("bucket unavailable")

	res, err := f.service(t).PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, res.OrderID)
	require.True(t, res.ReceiptPending())
	require.True(t, hasWarning(res, domain.ErrReceiptUpload))

	stored, err := f.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Empty(t, stored.ReceiptURL)
	require.Equal(t, domain.ReceiptStatePending, stored.ReceiptState)
	require.Contains(t, stored.LastError, "bucket unavailable")

	// Письмо без чека не отправляется; его отправит восстановление.
	require.Empty(t, f.mailer.messages())
	require.Empty(t, f.cartLines(t))
}

func TestPlaceOrder_ReceiptGenerationFailure(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)
	f.renderer = failingRenderer{}

	res, err := f.service(t).PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.NoError(t, err)
	require.True(t, hasWarning(res, domain.ErrReceiptGeneration))
	require.Zero(t, f.store.count())
	require.Equal(t, domain.ReceiptStatePending, res.ReceiptState)
}

func TestPlaceOrder_EmailFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)
	f.mailer.err = errors.New("smtp 421")

	res, err := f.service(t).PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, res.ReceiptURL)
	require.True(t, hasWarning(res, domain.ErrEmailDelivery))

	stored, err := f.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.ReceiptStateReady, stored.ReceiptState)
	require.Equal(t, res.ReceiptURL, stored.ReceiptURL)
	require.Empty(t, f.cartLines(t))
}

func TestPlaceOrder_ConcurrentSubmitCreatesOneOrder(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)
	f.store.block = make(chan struct{})
	entered := make(chan struct{})
	f.store.entered = entered
	svc := f.service(t)

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = svc.PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	}()

	<-entered
	_, err := svc.PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.ErrorIs(t, err, domain.ErrCheckoutInProgress)

	close(f.store.block)
	wg.Wait()
	require.NoError(t, firstErr)

	require.Len(t, f.ordersOf(t), 1)

	// После завершения первого оформления корзина пуста.
	_, err = svc.PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.ErrorIs(t, err, domain.ErrEmptyCart)
	require.Len(t, f.ordersOf(t), 1)
}

func TestPlaceOrder_PriceSnapshotAndDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.products.Update(ctx, domain.Product{ID: "p-tomato", Name: "Tomato", Price: decimal.NewFromInt(50), DiscountPercent: decimal.NewFromInt(20)}))
	f.fillCart(t, domain.CartLine{ProductID: "p-tomato", Quantity: 3})

	res, err := f.service(t).PlaceOrder(ctx, actorID, checkout.PlaceOptions{PaymentMethod: domain.PaymentMethodOnline})
	require.NoError(t, err)
	require.True(t, res.TotalPrice.Equal(decimal.NewFromInt(120)), "total %s", res.TotalPrice)

	// Изменение каталога после оформления не меняет заказ.
	require.NoError(t, f.products.Update(ctx, domain.Product{ID: "p-tomato", Name: "Tomato XL", Price: decimal.NewFromInt(99)}))
	stored, err := f.orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	require.Equal(t, "Tomato", stored.Lines[0].Name)
	require.True(t, stored.Lines[0].UnitPrice.Equal(decimal.NewFromInt(40)))
	require.Equal(t, domain.PaymentMethodOnline, stored.PaymentMethod)
}

func TestPlaceOrder_InvalidPaymentMethod(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)

	_, err := f.service(t).PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{PaymentMethod: "Barter"})
	require.ErrorIs(t, err, domain.ErrPaymentMethodInvalid)
	require.Empty(t, f.ordersOf(t))
}

// ctxCarts отвечает ошибкой на отменённый контекст, как сетевые хранилища.
type ctxCarts struct {
	domain.CartRepository
}

func (c ctxCarts) GetByActor(ctx context.Context, actorID string) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	return c.CartRepository.GetByActor(ctx, actorID)
}

func (c ctxCarts) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	return c.CartRepository.Save(ctx, cart)
}

func (c ctxCarts) Clear(ctx context.Context, actorID string, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.CartRepository.Clear(ctx, actorID, expectedVersion)
}

func TestPlaceOrder_CartChangedDuringCheckoutKeepsOnlyNewItems(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)
	f.store.onUpload = func() {
		cart, err := f.carts.GetByActor(context.Background(), actorID)
		if err != nil {
			return
		}
		_ = cart.Upsert("p-carrot", "Carrot", 3, time.Now())
		_, _ = f.carts.Save(context.Background(), cart)
	}

	svc := f.service(t)
	res, err := svc.PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)

	lines := f.cartLines(t)
	require.Len(t, lines, 1, "only items added during checkout survive")
	require.Equal(t, "p-carrot", lines[0].ProductID)
	require.Equal(t, 3, lines[0].Quantity)
}

func TestPlaceOrder_ResavedCartIsNotChargedTwice(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)
	f.store.onUpload = func() {
		cart, err := f.carts.GetByActor(context.Background(), actorID)
		if err != nil {
			return
		}
		// Тот же состав, но версия корзины растёт.
		_ = cart.Upsert("p-onion", "Onion", 1, time.Now())
		_, _ = f.carts.Save(context.Background(), cart)
	}

	svc := f.service(t)
	res, err := svc.PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Empty(t, f.cartLines(t))

	f.store.onUpload = nil
	_, err = svc.PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.ErrorIs(t, err, domain.ErrEmptyCart)
	require.Len(t, f.ordersOf(t), 1)
}

func TestPlaceOrder_ClientGoneAfterPersist(t *testing.T) {
	f := newFixture(t)
	f.carts = ctxCarts{CartRepository: f.carts}
	f.defaultCart(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.onUpload = cancel

	res, err := f.service(t).PlaceOrder(ctx, actorID, checkout.PlaceOptions{})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Empty(t, f.cartLines(t), "cart must be cleared even if the request was cancelled")
	require.Len(t, f.mailer.messages(), 1)

	stored, err := f.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.ReceiptStateNotified, stored.ReceiptState)
}

func TestPlaceOrder_StepTimeout(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)
	f.store.block = make(chan struct{})
	defer close(f.store.block)

	res, err := f.service(t, checkout.WithStepTimeout(20*time.Millisecond)).PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.NoError(t, err)
	require.True(t, hasWarning(res, domain.ErrReceiptUpload))
	require.True(t, hasWarning(res, context.DeadlineExceeded))
}

func TestPlaceOrder_AsyncNotification(t *testing.T) {
	f := newFixture(t)
	f.defaultCart(t)
	svc := f.service(t, checkout.WithAsyncNotification(true))

	res, err := svc.PlaceOrder(context.Background(), actorID, checkout.PlaceOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, res.ReceiptURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))

	require.Len(t, f.mailer.messages(), 1)
	stored, err := f.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.ReceiptStateNotified, stored.ReceiptState)
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := checkout.New(checkout.Dependencies{})
	require.Error(t, err)
}
