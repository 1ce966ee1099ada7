package micheline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"minidao/internal/errors"
)

func TestValidateExpression_WellFormed(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"int literal", `{"int": "42"}`},
		{"negative int", `{"int": "-7"}`},
		{"string literal", `{"string": "hello"}`},
		{"bytes literal", `{"bytes": "deadbeef"}`},
		{"empty bytes", `{"bytes": ""}`},
		{"bare prim", `{"prim": "UNIT"}`},
		{"prim with args", `{"prim": "PUSH", "args": [{"prim": "nat"}, {"int": "1"}]}`},
		{"prim with annots", `{"prim": "pair", "annots": ["%from", "%to"]}`},
		{"empty sequence", `[]`},
		{"sequence", `[{"prim": "DROP"}, {"prim": "NIL", "args": [{"prim": "operation"}]}]`},
		{
			"nested lambda",
			`[{"prim": "DROP"},
			  {"prim": "NIL", "args": [{"prim": "operation"}]},
			  {"prim": "PUSH", "args": [{"prim": "mutez"}, {"int": "1000000"}]}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, ValidateExpression([]byte(tt.expr)))
		})
	}
}

func TestValidateExpression_Malformed(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty input", ``},
		{"invalid json", `{"prim": `},
		{"bare number", `42`},
		{"bare string", `"UNIT"`},
		{"int not a string", `{"int": 42}`},
		{"int not numeric", `{"int": "abc"}`},
		{"bytes odd length", `{"bytes": "abc"}`},
		{"bytes non-hex", `{"bytes": "zz"}`},
		{"literal with extra key", `{"int": "1", "prim": "UNIT"}`},
		{"object without prim", `{"args": []}`},
		{"prim not a string", `{"prim": 1}`},
		{"unknown key", `{"prim": "UNIT", "extra": true}`},
		{"args not array", `{"prim": "PUSH", "args": {"int": "1"}}`},
		{"bad nested arg", `{"prim": "PUSH", "args": [{"int": 1}]}`},
		{"annots not array", `{"prim": "pair", "annots": "%x"}`},
		{"annots non-string element", `{"prim": "pair", "annots": [1]}`},
		{"bad element in sequence", `[{"prim": "DROP"}, {"bogus": true}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExpression([]byte(tt.expr))
			assert.Error(t, err)
			assert.True(t, errors.IsValidation(err), "错误应为校验类型: %v", err)
		})
	}
}
