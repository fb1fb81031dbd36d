// internal/utils/validator_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStructCustomRules(t *testing.T) {
	type form struct {
		Username     string `validate:"required,username"`
		Password     string `validate:"required,strong_password"`
		ChainAddress string `validate:"omitempty,chain_address"`
	}

	valid := form{
		Username:     "dr_bob-1",
		Password:     "Sup3rSecret",
		ChainAddress: "0xAb5801a7D398351b8bE11C439e05C5b3259aeC9B",
	}
	assert.NoError(t, ValidateStruct(&valid))

	tests := []struct {
		name string
		form form
	}{
		{"username too short", form{Username: "ab", Password: "Sup3rSecret"}},
		{"username with spaces", form{Username: "dr bob", Password: "Sup3rSecret"}},
		{"password without digit", form{Username: "drbob", Password: "SuperSecret"}},
		{"password without upper", form{Username: "drbob", Password: "sup3rsecret"}},
		{"password too short", form{Username: "drbob", Password: "S3cret"}},
		{"chain address without prefix", form{Username: "drbob", Password: "Sup3rSecret", ChainAddress: "Ab5801a7D398351b8bE11C439e05C5b3259aeC9B"}},
		{"chain address with invalid chars", form{Username: "drbob", Password: "Sup3rSecret", ChainAddress: "0xZZ5801a7D398351b8bE11C439e05C5b3259aeC9B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateStruct(&tt.form))
		})
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, int64(25), p.Total)
	assert.Equal(t, 3, p.TotalPages)

	// Out-of-range inputs are normalized.
	p = NewPagination(0, 1000, 5)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, 1, p.TotalPages)
}
