package httpsvc

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

func (h *handler) getCart(c *gin.Context) {
	cart, err := h.svc.Cart.Get(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondCart(c, cart)
}

func (h *handler) addToCart(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failKind(c, KindInvalidRequest)
		return
	}
	cart, err := h.svc.Cart.Add(c.Request.Context(), principalFrom(c).UserID, req.VegetableID, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondCart(c, cart)
}

func (h *handler) removeFromCart(c *gin.Context) {
	cart, err := h.svc.Cart.Remove(c.Request.Context(), principalFrom(c).UserID, c.Param("vegetableId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondCart(c, cart)
}

// respondCart дополняет позиции текущими ценами каталога. Цена в заказе
// всё равно фиксируется заново при оформлении.
func (h *handler) respondCart(c *gin.Context, cart domain.Cart) {
	ctx := c.Request.Context()
	view := cartView{Items: make([]cartItemView, 0, len(cart.Lines)), Version: cart.Version}
	subtotal := decimal.Zero

	for _, line := range cart.Lines {
		item := cartItemView{VegetableID: line.ProductID, Name: line.Name, Quantity: line.Quantity}

		product, err := h.svc.Catalog.Get(ctx, line.ProductID)
		switch {
		case err == nil:
			unit := product.FinalPrice()
			total := unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
			unitJSON, totalJSON := money(unit), money(total)
			item.Name = product.Name
			item.UnitPrice = &unitJSON
			item.LineTotal = &totalJSON
			item.Available = product.Available
			subtotal = subtotal.Add(total)
		case errors.Is(err, domain.ErrProductNotFound):
			// Позиция остаётся без цены.
		default:
			h.fail(c, err)
			return
		}
		view.Items = append(view.Items, item)
	}

	view.Subtotal = money(subtotal)
	c.JSON(http.StatusOK, view)
}
