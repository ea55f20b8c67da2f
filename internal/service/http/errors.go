package httpsvc

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/service/auth"
	"github.com/vladislavdragonenkov/vegshop/internal/service/idempotency"
)

// ErrorKind — закрытый перечень ошибок API. Клиент ветвится по kind, а не по тексту.
type ErrorKind string

const (
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindValidation          ErrorKind = "validation_failed"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindInvalidCredentials  ErrorKind = "invalid_credentials"
	KindForbidden           ErrorKind = "forbidden"
	KindUserExists          ErrorKind = "user_exists"
	KindProductNotFound     ErrorKind = "product_not_found"
	KindOrderNotFound       ErrorKind = "order_not_found"
	KindCartNotFound        ErrorKind = "cart_not_found"
	KindEmptyCart           ErrorKind = "empty_cart"
	KindCheckoutInProgress  ErrorKind = "checkout_in_progress"
	KindConflict            ErrorKind = "conflict"
	KindIdempotencyMismatch ErrorKind = "idempotency_key_reused"
	KindRequestInFlight     ErrorKind = "request_in_flight"
	KindOrderPersist        ErrorKind = "order_persist_failed"
	KindInternal            ErrorKind = "internal"
)

type kindInfo struct {
	status  int
	message string
}

var kinds = map[ErrorKind]kindInfo{
	KindInvalidRequest:      {http.StatusBadRequest, "Invalid request body"},
	KindValidation:          {http.StatusBadRequest, "Validation failed"},
	KindUnauthorized:        {http.StatusUnauthorized, "Not authorized, token missing or invalid"},
	KindInvalidCredentials:  {http.StatusUnauthorized, "Invalid email or password"},
	KindForbidden:           {http.StatusForbidden, "Admin access required"},
	KindUserExists:          {http.StatusConflict, "User already exists"},
	KindProductNotFound:     {http.StatusBadRequest, "Vegetable not found"},
	KindOrderNotFound:       {http.StatusNotFound, "Order not found"},
	KindCartNotFound:        {http.StatusNotFound, "Cart not found"},
	KindEmptyCart:           {http.StatusBadRequest, "Cart is empty"},
	KindCheckoutInProgress:  {http.StatusConflict, "Another checkout is already in progress"},
	KindConflict:            {http.StatusConflict, "Resource was modified concurrently, please retry"},
	KindIdempotencyMismatch: {http.StatusUnprocessableEntity, "Idempotency-Key was already used with a different request"},
	KindRequestInFlight:     {http.StatusConflict, "A request with this Idempotency-Key is still processing"},
	KindOrderPersist:        {http.StatusInternalServerError, "Failed to place order"},
	KindInternal:            {http.StatusInternalServerError, "Internal server error"},
}

func (k ErrorKind) info() kindInfo {
	if info, ok := kinds[k]; ok {
		return info
	}
	return kinds[KindInternal]
}

// Status возвращает HTTP-статус. Неизвестный kind отображается в 500.
func (k ErrorKind) Status() int {
	return k.info().status
}

// Message возвращает сообщение для пользователя.
func (k ErrorKind) Message() string {
	return k.info().message
}

// Classify сопоставляет ошибку сервисного слоя с kind.
func Classify(err error) ErrorKind {
	var verr *domain.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr),
		errors.Is(err, domain.ErrCartQtyInvalid),
		errors.Is(err, domain.ErrPaymentMethodInvalid),
		errors.Is(err, domain.ErrProductIDRequired),
		errors.Is(err, domain.ErrActorRequired):
		return KindValidation
	case errors.Is(err, auth.ErrInvalidToken):
		return KindUnauthorized
	case errors.Is(err, domain.ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, domain.ErrUserExists):
		return KindUserExists
	case errors.Is(err, domain.ErrEmptyCart):
		return KindEmptyCart
	case errors.Is(err, domain.ErrProductNotFound):
		return KindProductNotFound
	case errors.Is(err, domain.ErrOrderNotFound):
		return KindOrderNotFound
	case errors.Is(err, domain.ErrCartNotFound):
		return KindCartNotFound
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return KindCheckoutInProgress
	case domain.IsVersionConflict(err):
		return KindConflict
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return KindIdempotencyMismatch
	case errors.Is(err, idempotency.ErrRequestInFlight):
		return KindRequestInFlight
	case errors.Is(err, domain.ErrOrderPersist):
		return KindOrderPersist
	default:
		return KindInternal
	}
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   string    `json:"error"`
	Kind    ErrorKind `json:"kind"`
}

// errorBody строит тело ответа. Для ошибок валидации и отсутствующего товара
// текст уточняется: клиенту нужно знать, какое поле или какой товар виноваты.
func errorBody(err error) (int, errorResponse) {
	kind := Classify(err)
	message := kind.Message()

	var (
		verr    *domain.ValidationError
		missing *domain.MissingProductError
	)
	switch {
	case errors.As(err, &missing):
		message = missing.Error()
	case errors.As(err, &verr):
		message = verr.Error()
	case kind == KindValidation:
		message = err.Error()
	}
	return kind.Status(), errorResponse{Error: message, Kind: kind}
}

func (h *handler) fail(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"kind":   body.Kind,
		}).Error("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *handler) failKind(c *gin.Context, kind ErrorKind) {
	c.AbortWithStatusJSON(kind.Status(), errorResponse{Error: kind.Message(), Kind: kind})
}
