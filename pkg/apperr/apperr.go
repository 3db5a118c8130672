// Package apperr carries typed business failures across service boundaries.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvalidTransition    Code = "INVALID_TRANSITION"
	CodeInvalidPaymentMethod Code = "INVALID_PAYMENT_METHOD"
	CodePaymentExists        Code = "PAYMENT_ALREADY_EXISTS"
	CodeInsufficientStock    Code = "INSUFFICIENT_INVENTORY"
	CodeReservationConfirmed Code = "RESERVATION_CONFIRMED"
	CodeOrderNumberExists    Code = "ORDER_NUMBER_EXISTS"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func Is(err error, code Code) bool { return CodeOf(err) == code }

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation, CodeInvalidPaymentMethod:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition, CodePaymentExists, CodeReservationConfirmed, CodeOrderNumberExists:
		return http.StatusConflict
	case CodeInsufficientStock:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
