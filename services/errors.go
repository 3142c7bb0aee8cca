package services

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// ServiceError represents a typed error with an HTTP status code and a
// machine-readable code.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Error codes.
const (
	CodeBadRequest     = "bad_request"
	CodeEmptyOrder     = "empty_order"
	CodeEmptyCart      = "empty_cart"
	CodeNotFound       = "not_found"
	CodeProductMissing = "product_not_found"
	CodeStockExceeded  = "stock_exceeded"
	CodeForbidden      = "forbidden"
	CodeConflict       = "conflict"
	CodeGateway        = "gateway_error"
	CodeInternal       = "internal_error"
)

func newError(status int, code, message string) *ServiceError {
	return &ServiceError{StatusCode: status, Code: code, Message: message}
}

func ErrBadRequest(message string) *ServiceError {
	return newError(http.StatusBadRequest, CodeBadRequest, message)
}

func ErrNotFound(message string) *ServiceError {
	return newError(http.StatusNotFound, CodeNotFound, message)
}

func ErrForbidden(message string) *ServiceError {
	return newError(http.StatusForbidden, CodeForbidden, message)
}

func ErrConflict(message string) *ServiceError {
	return newError(http.StatusConflict, CodeConflict, message)
}

func ErrGateway(message string) *ServiceError {
	return newError(http.StatusBadGateway, CodeGateway, message)
}

// ErrInternal hides the cause from the client; callers log it.
func ErrInternal(message string) *ServiceError {
	return newError(http.StatusInternalServerError, CodeInternal, message)
}

func ErrEmptyOrder() *ServiceError {
	return newError(http.StatusBadRequest, CodeEmptyOrder, "Order must contain at least one item")
}

func ErrEmptyCart() *ServiceError {
	return newError(http.StatusBadRequest, CodeEmptyCart, "Cart is empty")
}

func ErrProductNotFound(productID uint) *ServiceError {
	e := newError(http.StatusNotFound, CodeProductMissing, fmt.Sprintf("Product %d not found", productID))
	e.Details = map[string]interface{}{"product_id": productID}
	return e
}

func ErrStockExceeded(productID uint, requested, available int) *ServiceError {
	e := newError(http.StatusConflict, CodeStockExceeded,
		fmt.Sprintf("Requested quantity exceeds available stock for product %d (requested=%d, available=%d)",
			productID, requested, available))
	e.Details = map[string]interface{}{
		"product_id": productID,
		"requested":  requested,
		"available":  available,
	}
	return e
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// asServiceError unwraps a *ServiceError carried through a transaction
// callback's error return.
func asServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
