package httpsvc

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/service/checkout"
)

// money кодирует сумму числом с двумя знаками без потери точности.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type imageView struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId,omitempty"`
}

type productView struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	Price           json.Number `json:"price"`
	DiscountPercent json.Number `json:"discount"`
	FinalPrice      json.Number `json:"finalPrice"`
	Stock           int         `json:"stock"`
	Unit            string      `json:"unit,omitempty"`
	Available       bool        `json:"available"`
	Category        string      `json:"category,omitempty"`
	Images          []imageView `json:"images"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

func newProductView(p domain.Product) productView {
	images := make([]imageView, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, imageView(img))
	}
	return productView{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Price:           money(p.Price),
		DiscountPercent: money(p.DiscountPercent),
		FinalPrice:      money(p.FinalPrice()),
		Stock:           p.Stock,
		Unit:            p.Unit,
		Available:       p.Available,
		Category:        p.Category,
		Images:          images,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toImages(in []imageView) []domain.ProductImage {
	if in == nil {
		return nil
	}
	out := make([]domain.ProductImage, 0, len(in))
	for _, img := range in {
		out = append(out, domain.ProductImage(img))
	}
	return out
}

type productRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount"`
	Stock           int             `json:"stock"`
	Unit            string          `json:"unit"`
	Category        string          `json:"category"`
	Available       *bool           `json:"available"`
	Images          []imageView     `json:"images"`
}

type productPatchRequest struct {
	Name            *string          `json:"name"`
	Description     *string          `json:"description"`
	Price           *decimal.Decimal `json:"price"`
	DiscountPercent *decimal.Decimal `json:"discount"`
	Stock           *int             `json:"stock"`
	Unit            *string          `json:"unit"`
	Category        *string          `json:"category"`
	Available       *bool            `json:"available"`
	Images          []imageView      `json:"images"`
}

type cartItemView struct {
	VegetableID string       `json:"vegetableId"`
	Name        string       `json:"name"`
	Quantity    int          `json:"quantity"`
	UnitPrice   *json.Number `json:"unitPrice,omitempty"`
	LineTotal   *json.Number `json:"lineTotal,omitempty"`
	// Available=false означает, что товар удалён из каталога и заказ по корзине не пройдёт.
	Available bool `json:"available"`
}

type cartView struct {
	Items    []cartItemView `json:"items"`
	Subtotal json.Number    `json:"subtotal"`
	Version  int64          `json:"version"`
}

type cartItemRequest struct {
	VegetableID string `json:"vegetableId"`
	Quantity    int    `json:"quantity"`
}

type userView struct {
	ID        string      `json:"id"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone,omitempty"`
	Role      domain.Role `json:"role"`
}

func newUserView(u domain.User) userView {
	return userView{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Name:      u.DisplayName(),
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
	}
}

type registerRequest struct {
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	Phone             string `json:"phone"`
	Address           string `json:"address"`
	City              string `json:"city"`
	Pincode           string `json:"pincode"`
	AgreesToMarketing bool   `json:"agreesToMarketing"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type authResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      userView  `json:"user"`
}

type placeOrderRequest struct {
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
}

type warningView struct {
	Step    domain.CheckoutStep `json:"step"`
	Message string              `json:"message"`
}

type placeOrderResponse struct {
	Success        bool                `json:"success"`
	OrderID        string              `json:"orderId"`
	TotalPrice     json.Number         `json:"totalPrice"`
	Currency       string              `json:"currency"`
	DownloadURL    string              `json:"downloadUrl,omitempty"`
	ReceiptPending bool                `json:"receiptPending"`
	ReceiptState   domain.ReceiptState `json:"receiptState"`
	Warnings       []warningView       `json:"warnings,omitempty"`
}

func newPlaceOrderResponse(r checkout.Result) placeOrderResponse {
	resp := placeOrderResponse{
		Success:        true,
		OrderID:        r.OrderID,
		TotalPrice:     money(r.TotalPrice),
		Currency:       r.Currency,
		DownloadURL:    r.ReceiptURL,
		ReceiptPending: r.ReceiptPending(),
		ReceiptState:   r.ReceiptState,
	}
	for _, w := range r.Warnings {
		resp.Warnings = append(resp.Warnings, warningView{Step: w.Step, Message: w.Message()})
	}
	return resp
}

type orderLineView struct {
	VegetableID string      `json:"vegetableId"`
	Name        string      `json:"name"`
	UnitPrice   json.Number `json:"unitPrice"`
	Quantity    int         `json:"quantity"`
	LineTotal   json.Number `json:"lineTotal"`
}

type orderView struct {
	ID            string               `json:"id"`
	CustomerID    string               `json:"customerId"`
	Items         []orderLineView      `json:"items"`
	TotalPrice    json.Number          `json:"totalPrice"`
	Currency      string               `json:"currency"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	ReceiptURL    string               `json:"receiptUrl,omitempty"`
	ReceiptState  domain.ReceiptState  `json:"receiptState"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

func newOrderView(o domain.Order) orderView {
	items := make([]orderLineView, 0, len(o.Lines))
	for _, line := range o.Lines {
		items = append(items, orderLineView{
			VegetableID: line.ProductID,
			Name:        line.Name,
			UnitPrice:   money(line.UnitPrice),
			Quantity:    line.Quantity,
			LineTotal:   money(line.LineTotal()),
		})
	}
	return orderView{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		Items:         items,
		TotalPrice:    money(o.TotalPrice),
		Currency:      o.Currency,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		ReceiptURL:    o.ReceiptURL,
		ReceiptState:  o.ReceiptState,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

type timelineView struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}
