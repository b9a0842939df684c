package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("amount", "must be positive")
	assert.True(t, IsValidationError(err))
	assert.Equal(t, "validation error on field 'amount': must be positive", err.Error())

	wrapped := fmt.Errorf("submit: %w", WrapValidationError("quantity", ErrInsufficientShares))
	assert.True(t, IsValidationError(wrapped))
	assert.True(t, errors.Is(wrapped, ErrInsufficientShares))
	assert.False(t, IsInsufficientFunds(wrapped))
}

func TestUnavailable(t *testing.T) {
	err := Unavailable("append entry", errors.New("connection refused"))
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "append entry")
	assert.False(t, IsValidationError(err))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("x: %w", ErrEntryNotFound)))
	assert.True(t, IsNotFound(ErrAccountNotFound))
	assert.False(t, IsNotFound(ErrAlreadyApplied))
}
