package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorIs(t *testing.T) {
	err := NewValidationError([]FieldError{
		{Field: "stop_price", Reason: "required for stop_limit orders"},
		{Field: "quantity", Reason: "must be positive"},
	})

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "stop_price")
	assert.Contains(t, err.Error(), "quantity")

	wrapped := fmt.Errorf("order: place: %w", err)
	assert.True(t, errors.Is(wrapped, ErrValidation))

	var ve *ValidationError
	require.True(t, errors.As(wrapped, &ve))
	assert.Len(t, ve.Fields, 2)
}

func TestBrokerRejectionIs(t *testing.T) {
	err := &BrokerRejection{OrderID: "ord-1", Message: "insufficient margin"}
	assert.True(t, errors.Is(err, ErrBroker))
	assert.Contains(t, err.Error(), "ord-1")
	assert.Contains(t, err.Error(), "insufficient margin")
}
