package httpsvc

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/vegshop/internal/service/catalog"
)

func (h *handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, newProductView(p))
	}
	c.JSON(http.StatusOK, views)
}

func (h *handler) getProduct(c *gin.Context) {
	product, err := h.svc.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.notFoundOr(c, err)
		return
	}
	c.JSON(http.StatusOK, newProductView(product))
}

func (h *handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failKind(c, KindInvalidRequest)
		return
	}

	product, err := h.svc.Catalog.Create(c.Request.Context(), catalog.ProductInput{
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		DiscountPercent: req.DiscountPercent,
		Stock:           req.Stock,
		Unit:            req.Unit,
		Category:        req.Category,
		Available:       req.Available,
		Images:          toImages(req.Images),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newProductView(product))
}

func (h *handler) updateProduct(c *gin.Context) {
	var req productPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failKind(c, KindInvalidRequest)
		return
	}

	product, err := h.svc.Catalog.Update(c.Request.Context(), c.Param("id"), catalog.ProductPatch{
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		DiscountPercent: req.DiscountPercent,
		Stock:           req.Stock,
		Unit:            req.Unit,
		Category:        req.Category,
		Available:       req.Available,
		Images:          toImages(req.Images),
	})
	if err != nil {
		h.notFoundOr(c, err)
		return
	}
	c.JSON(http.StatusOK, newProductView(product))
}

func (h *handler) deleteProduct(c *gin.Context) {
	if err := h.svc.Catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.notFoundOr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Vegetable removed"})
}

// notFoundOr отвечает 404 на отсутствующий товар в маршрутах каталога:
// в оформлении заказа та же ошибка означает 400.
func (h *handler) notFoundOr(c *gin.Context, err error) {
	if Classify(err) == KindProductNotFound {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: KindProductNotFound.Message(), Kind: KindProductNotFound})
		return
	}
	h.fail(c, err)
}
