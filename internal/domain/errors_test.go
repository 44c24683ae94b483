package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorfKeepsKindThroughWrapping(t *testing.T) {
	err := Errorf(ErrConflict, "user with email %s already exists", "a@b.c")
	wrapped := fmt.Errorf("register: %w", err)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrValidation))
	assert.Equal(t, "user with email a@b.c already exists", err.Error())
}
