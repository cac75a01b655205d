// Package errors provides custom error types for product-related operations.
package errors

import (
	"errors"
	"net/http"
)

// Sentinel errors returned by the store layer.
var ErrProductNotFound = errors.New("product not found")
var ErrDuplicateSKU = errors.New("duplicate SKU")
var ErrVersionConflict = errors.New("version conflict: the record has been modified by another transaction")

// Error codes exposed to clients. Stable; do not rename.
const (
	CodeBadRequest          = "PRODUCT_BAD_REQUEST"
	CodeNotFound            = "PRODUCT_NOT_FOUND"
	CodeConflict            = "PRODUCT_CONFLICT"
	CodeOptimisticLock      = "PRODUCT_OPTIMISTIC_LOCK_ERROR"
	CodeUnprocessableEntity = "PRODUCT_UNPROCESSABLE_ENTITY"
	CodeInternal            = "PRODUCT_INTERNAL_SERVER_ERROR"
)

// ProductError is a domain error carrying its HTTP status and stable error code.
// The service layer translates store outcomes into ProductError values; the
// REST layer translates ProductError values into HTTP responses.
type ProductError struct {
	Status    int
	ErrorCode string
	Message   string
	Details   string
}

func (e *ProductError) Error() string {
	return e.Message
}

// NewBadRequest reports a malformed request or invalid parameter.
func NewBadRequest(message string) *ProductError {
	return &ProductError{Status: http.StatusBadRequest, ErrorCode: CodeBadRequest, Message: message}
}

// NewNotFound reports a product missing from the store.
func NewNotFound(message string) *ProductError {
	return &ProductError{Status: http.StatusNotFound, ErrorCode: CodeNotFound, Message: message}
}

// NewConflict reports a duplicate natural key.
func NewConflict(message string) *ProductError {
	return &ProductError{Status: http.StatusConflict, ErrorCode: CodeConflict, Message: message}
}

// NewOptimisticLock reports an update with a stale version.
func NewOptimisticLock(message string) *ProductError {
	return &ProductError{Status: http.StatusConflict, ErrorCode: CodeOptimisticLock, Message: message}
}

// NewUnprocessableEntity reports a semantically invalid field value.
func NewUnprocessableEntity(message string) *ProductError {
	return &ProductError{Status: http.StatusUnprocessableEntity, ErrorCode: CodeUnprocessableEntity, Message: message}
}

// NewInternal reports an uncategorized failure.
func NewInternal(message string) *ProductError {
	return &ProductError{Status: http.StatusInternalServerError, ErrorCode: CodeInternal, Message: message}
}

// AsProductError extracts a ProductError from an error chain.
func AsProductError(err error) (*ProductError, bool) {
	var pErr *ProductError
	ok := errors.As(err, &pErr)
	return pErr, ok
}
