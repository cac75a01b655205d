package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ProductError_Taxonomy(t *testing.T) {
	testCases := []struct {
		name         string
		err          *ProductError
		expectedCode string
		expectedHTTP int
	}{
		{name: "bad request", err: NewBadRequest("bad"), expectedCode: CodeBadRequest, expectedHTTP: http.StatusBadRequest},
		{name: "not found", err: NewNotFound("missing"), expectedCode: CodeNotFound, expectedHTTP: http.StatusNotFound},
		{name: "conflict", err: NewConflict("taken"), expectedCode: CodeConflict, expectedHTTP: http.StatusConflict},
		{name: "optimistic lock", err: NewOptimisticLock("stale"), expectedCode: CodeOptimisticLock, expectedHTTP: http.StatusConflict},
		{name: "unprocessable entity", err: NewUnprocessableEntity("invalid"), expectedCode: CodeUnprocessableEntity, expectedHTTP: http.StatusUnprocessableEntity},
		{name: "internal", err: NewInternal("boom"), expectedCode: CodeInternal, expectedHTTP: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedCode, tc.err.ErrorCode)
			assert.Equal(t, tc.expectedHTTP, tc.err.Status)
		})
	}
}

func Test_AsProductError(t *testing.T) {
	// a ProductError survives wrapping
	wrapped := fmt.Errorf("handling request: %w", NewNotFound("missing"))
	pErr, ok := AsProductError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, pErr.ErrorCode)

	// a plain error does not convert
	_, ok = AsProductError(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func Test_ProductError_Error(t *testing.T) {
	err := NewConflict("A product with SKU LAP-001 already exists.")
	assert.Equal(t, "A product with SKU LAP-001 already exists.", err.Error())
}
