package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	assert.NoError(t, v.OrNil())

	v.Add("quantity", "must be at least %d", 1).Add("rate", "must not be negative")
	err := v.OrNil()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Len(t, Fields(err), 2)
	assert.Contains(t, err.Error(), "quantity: must be at least 1")
}

func TestFromDB(t *testing.T) {
	assert.NoError(t, FromDB(nil, "invoice", 1))
	assert.True(t, errors.Is(FromDB(gorm.ErrRecordNotFound, "invoice", 1), ErrNotFound))
	assert.True(t, errors.Is(FromDB(gorm.ErrDuplicatedKey, "invoice", 1), ErrConflict))

	boom := errors.New("boom")
	assert.True(t, errors.Is(FromDB(boom, "invoice", 1), boom))
}

func TestNotFound(t *testing.T) {
	err := NotFound("customer", 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "customer 42: not found", err.Error())
	assert.Nil(t, Fields(err))
}
