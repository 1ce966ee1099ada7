package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_ImplicitAddresses(t *testing.T) {
	// 公开测试网引导账户地址
	implicit := []string{
		"tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8LhKxZSx",
		"tz1gjaF81ZRRvdzjobyfVNsAeSC6PScjfQwN",
		"tz1faswCTDciRzE4oJ9jn2Vm2dvjeyA9fUzU",
		"tz1b7tUupMgCNw2cCLpKTkSD1NZzB5TkP2sv",
	}

	for _, addr := range implicit {
		assert.Equal(t, KindImplicit, KindOf(addr), "地址 %s 应为隐式账户", addr)
		assert.True(t, IsValid(addr))
		assert.True(t, IsImplicit(addr))
		assert.False(t, IsContract(addr))
	}
}

func TestKindOf_ContractAddress(t *testing.T) {
	contract := "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxton"

	assert.Equal(t, KindContract, KindOf(contract))
	assert.True(t, IsValid(contract))
	assert.True(t, IsContract(contract))
	assert.False(t, IsImplicit(contract))
}

func TestKindOf_InvalidAddresses(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"garbage", "not-an-address"},
		{"hex address", "0x1234567890abcdef1234567890abcdef12345678"},
		{"truncated", "tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8Lh"},
		{"checksum broken", "tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8LhKxZSy"},
		{"contract checksum broken", "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxtoo"},
		{"base58 alphabet violation", "tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8LhKxZS0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, KindUnknown, KindOf(tt.addr))
			assert.False(t, IsValid(tt.addr))
			assert.False(t, IsContract(tt.addr))
			assert.False(t, IsImplicit(tt.addr))
		})
	}
}
