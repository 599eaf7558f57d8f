package domain

import "errors"

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrProductNotFound        = errors.New("product not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrOrderPersistenceFailed = errors.New("order persistence failed")

	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user with this email already exists")
)

// ErrorCode is the stable identifier clients use to tell failures apart.
type ErrorCode string

const (
	CodeInvalidRequest         ErrorCode = "INVALID_REQUEST"
	CodeProductNotFound        ErrorCode = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock      ErrorCode = "INSUFFICIENT_STOCK"
	CodeOrderPersistenceFailed ErrorCode = "ORDER_PERSISTENCE_FAILED"
	CodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// CodeOf maps an error to its stable code. Anything outside the placement
// taxonomy is reported as an internal error.
func CodeOf(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrOrderPersistenceFailed):
		return CodeOrderPersistenceFailed
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrProductNotFound):
		return CodeProductNotFound
	case errors.Is(err, ErrInsufficientStock):
		return CodeInsufficientStock
	default:
		return CodeInternal
	}
}

// IsBusiness reports whether err belongs to the client-facing taxonomy.
func IsBusiness(err error) bool {
	return err != nil && CodeOf(err) != CodeInternal
}
