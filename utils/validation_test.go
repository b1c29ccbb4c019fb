package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchRequest struct {
	Query string `validate:"required,max=20"`
	TopK  *int   `validate:"omitempty,min=1,max=5"`
	Mode  string `validate:"omitempty,oneof=fast precise"`
}

func intPtr(v int) *int { return &v }

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		req     searchRequest
		field   string
		message string
	}{
		{
			name: "valid request",
			req:  searchRequest{Query: "bail conditions", TopK: intPtr(3)},
		},
		{
			name:    "missing query",
			req:     searchRequest{},
			field:   "Query",
			message: "Query is required",
		},
		{
			name:    "query too long",
			req:     searchRequest{Query: "what are the conditions for bail"},
			field:   "Query",
			message: "Query must be at most 20",
		},
		{
			name:    "top k below range",
			req:     searchRequest{Query: "bail", TopK: intPtr(0)},
			field:   "TopK",
			message: "TopK must be at least 1",
		},
		{
			name:    "unknown mode",
			req:     searchRequest{Query: "bail", Mode: "slow"},
			field:   "Mode",
			message: "Mode must be one of: fast precise",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, "Validation failed", err.Error())
			assert.Equal(t, tt.message, GetValidationFields(err)[tt.field])
		})
	}
}

func TestValidateStruct_NotAStruct(t *testing.T) {
	err := ValidateStruct("query")
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestGetValidationFields(t *testing.T) {
	t.Run("gets fields from validation error", func(t *testing.T) {
		fields := map[string]string{"Query": "Query is required"}
		err := &ValidationError{Message: "test", Fields: fields}

		assert.Equal(t, fields, GetValidationFields(err))
	})

	t.Run("returns nil for other errors", func(t *testing.T) {
		assert.Nil(t, GetValidationFields(assert.AnError))
		assert.False(t, IsValidationError(assert.AnError))
	})
}
