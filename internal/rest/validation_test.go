package rest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name  string `json:"name" validate:"required,max=5"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
	Type  string `json:"type" validate:"omitempty,oneof=in-clinic phone"`
}

func TestFormatValidationError(t *testing.T) {
	t.Run("should name fields by their json key", func(t *testing.T) {
		// given
		err := ValidateStruct(sampleRequest{Color: "blue", Type: "video"})
		require.Error(t, err)

		// when
		message := FormatValidationError(err)

		// then
		assert.Equal(t, "name is required, color must be a hex color, type must be one of: in-clinic, phone", message)
	})

	t.Run("should include tag parameter", func(t *testing.T) {
		err := ValidateStruct(sampleRequest{Name: "Kari Nordmann"})
		require.Error(t, err)

		assert.Equal(t, "name must be at most 5", FormatValidationError(err))
	})

	t.Run("should accept valid struct", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(sampleRequest{Name: "Kari", Color: "#3b82f6", Type: "phone"}))
	})

	t.Run("should pass through other errors", func(t *testing.T) {
		assert.Equal(t, "boom", FormatValidationError(errors.New("boom")))
	})
}

func TestValidateVar(t *testing.T) {
	assert.NoError(t, ValidateVar("https://meet.example.com/kari", "url"))
	assert.Error(t, ValidateVar("meet.example.com", "url"))
}

func TestValidateVar_HttpUrl(t *testing.T) {
	assert.NoError(t, ValidateVar("https://meet.example.com/kari", "http_url"))
	assert.NoError(t, ValidateVar("http://localhost:8080/room", "http_url"))
	assert.Error(t, ValidateVar("javascript:alert(1)", "http_url"))
	assert.Error(t, ValidateVar("ftp://files.example.com/x", "http_url"))
}
