package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{name: "plain", email: "user@example.com", valid: true},
		{name: "plus tag", email: "user+tag@example.co.uk", valid: true},
		{name: "missing at", email: "user.example.com", valid: false},
		{name: "missing domain", email: "user@", valid: false},
		{name: "empty", email: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidEmail(tt.email))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM "))
}

func TestIsValidInquiryID(t *testing.T) {
	assert.True(t, IsValidInquiryID("inq_3f9a2b"))
	assert.False(t, IsValidInquiryID(""))
	assert.False(t, IsValidInquiryID("inq 1"))
}

func TestStruct(t *testing.T) {
	type req struct {
		Email string `validate:"required,email"`
		Name  string `validate:"max=5"`
	}

	assert.NoError(t, Struct(req{Email: "a@b.io", Name: "ann"}))

	err := Struct(req{Email: "nope", Name: "too long name"})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "Email (email)")
		assert.Contains(t, err.Error(), "Name (max)")
	}
}
