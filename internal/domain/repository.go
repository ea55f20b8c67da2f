package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderExists, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента (новые первыми) с опциональным ограничением на количество.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// List возвращает все заказы (новые первыми), используется для выгрузки администратору.
	List(ctx context.Context, limit int) ([]Order, error)
	// ListUnfinished возвращает заказы с незавершённым оформлением, созданные раньше before,
	// у которых было меньше maxAttempts попыток восстановления. Старые первыми.
	ListUnfinished(ctx context.Context, before time.Time, maxAttempts, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// UserRepository хранит учётные записи покупателей.
type UserRepository interface {
	// Create возвращает ErrUserExists, если email уже занят.
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
}

// ProductRepository хранит каталог.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	// Get возвращает ErrProductNotFound, если товара нет.
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context) ([]Product, error)
	Update(ctx context.Context, product Product) error
	Delete(ctx context.Context, id string) error
}

// CartRepository хранит корзины, по одной на пользователя.
type CartRepository interface {
	// GetByActor возвращает ErrCartNotFound, если корзина ещё не создавалась.
	GetByActor(ctx context.Context, actorID string) (Cart, error)
	// Save создаёт или обновляет корзину. Версия в cart должна совпадать с сохранённой,
	// иначе ErrCartVersionConflict. Сохранённая версия увеличивается на единицу.
	Save(ctx context.Context, cart Cart) (Cart, error)
	// Clear очищает позиции, только если версия корзины не изменилась с момента чтения.
	// Очистка уже пустой корзины не является ошибкой.
	Clear(ctx context.Context, actorID string, expectedVersion int64) error
}
