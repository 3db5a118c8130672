package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("reserve: %w", New(CodeInsufficientStock, "product %s", "p-1"))
	assert.Equal(t, CodeInsufficientStock, CodeOf(err))
	assert.True(t, Is(err, CodeInsufficientStock))
	assert.Equal(t, "INSUFFICIENT_INVENTORY: product p-1", errors.Unwrap(err).Error())
	assert.Equal(t, Code(""), CodeOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:        http.StatusBadRequest,
		CodeNotFound:          http.StatusNotFound,
		CodeInvalidTransition: http.StatusConflict,
		CodeInsufficientStock: http.StatusUnprocessableEntity,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(New(code, "x")), code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("db down")))
}
