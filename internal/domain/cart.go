package domain

import "time"

// CartLine — позиция корзины.
type CartLine struct {
	ProductID string
	// Name: подсказка для сообщений об ошибках, цена и название для заказа берутся из каталога.
	Name     string
	Quantity int
	AddedAt  time.Time
}

// Cart — корзина пользователя. После оформления заказа очищается, но не удаляется.
type Cart struct {
	ActorID   string
	Lines     []CartLine
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsEmpty сообщает, можно ли оформлять заказ по корзине.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Upsert добавляет товар или заменяет количество уже добавленного.
// Порядок позиций сохраняется.
func (c *Cart) Upsert(productID, name string, qty int, now time.Time) error {
	if productID == "" {
		return ErrProductIDRequired
	}
	if qty < 1 {
		return ErrCartQtyInvalid
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = qty
			if name != "" {
				c.Lines[i].Name = name
			}
			return nil
		}
	}
	c.Lines = append(c.Lines, CartLine{ProductID: productID, Name: name, Quantity: qty, AddedAt: now})
	return nil
}

// Remove удаляет товар из корзины и сообщает, был ли он там.
func (c *Cart) Remove(productID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// Deduct вычитает из корзины оформленные позиции. Позиция, количество которой
// дошло до нуля, удаляется; добавленное после чтения корзины остаётся.
// Возвращает true, если корзина изменилась.
func (c *Cart) Deduct(ordered []OrderLine) bool {
	if c == nil || len(ordered) == 0 {
		return false
	}
	taken := make(map[string]int, len(ordered))
	for _, line := range ordered {
		taken[line.ProductID] += line.Quantity
	}

	changed := false
	kept := c.Lines[:0]
	for _, line := range c.Lines {
		if qty, ok := taken[line.ProductID]; ok {
			line.Quantity -= qty
			changed = true
		}
		if line.Quantity > 0 {
			kept = append(kept, line)
		}
	}
	c.Lines = kept
	return changed
}

// Validate проверяет инварианты корзины.
func (c *Cart) Validate() []error {
	var errs []error
	if c.ActorID == "" {
		errs = append(errs, ErrActorRequired)
	}
	for _, line := range c.Lines {
		if line.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if line.Quantity < 1 {
			errs = append(errs, ErrCartQtyInvalid)
		}
	}
	return errs
}
