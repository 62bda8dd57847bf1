package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleInput struct {
	ID    string `validate:"required"`
	Email string `validate:"omitempty,email"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid input passes", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(&sampleInput{ID: "42", Email: "taro@example.com"}))
	})

	t.Run("missing required field", func(t *testing.T) {
		err := ValidateStruct(&sampleInput{Email: "taro@example.com"})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		fields := GetValidationFields(err)
		assert.Contains(t, fields, "ID")
	})

	t.Run("bad email", func(t *testing.T) {
		err := ValidateStruct(&sampleInput{ID: "42", Email: "not-an-email"})
		require.Error(t, err)
		fields := GetValidationFields(err)
		assert.Equal(t, "Email must be a valid email", fields["Email"])
	})
}

func TestValidateUUID(t *testing.T) {
	assert.NoError(t, ValidateUUID("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	assert.Error(t, ValidateUUID("42"))
}
