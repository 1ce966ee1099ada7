package micheline

import (
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"

	"minidao/internal/errors"
)

// Micheline JSON表达式的良构性检查。
//
// 表达式文法:
//   Expr  := IntLit | StringLit | BytesLit | Prim | Seq
//   IntLit    = {"int": "-?[0-9]+"}
//   StringLit = {"string": <string>}
//   BytesLit  = {"bytes": <hex>}
//   Prim      = {"prim": <name>, "args"?: [Expr...], "annots"?: [<string>...]}
//   Seq       = [Expr...]
//
// 任意代码提案在触达链之前必须通过该检查；解析失败即校验错误，
// 不发起任何网络调用。

var (
	intPattern   = regexp.MustCompile(`^-?[0-9]+$`)
	bytesPattern = regexp.MustCompile(`^([0-9a-fA-F]{2})*$`)
	primPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ValidateExpression 检查字节串是否为良构的Micheline JSON表达式
func ValidateExpression(raw []byte) error {
	if len(raw) == 0 {
		return errors.NewValidationError("LAMBDA_EMPTY", "lambda表达式为空")
	}

	if !gjson.ValidBytes(raw) {
		return errors.NewValidationError("LAMBDA_MALFORMED_JSON", "lambda表达式不是合法的JSON")
	}

	return checkExpr(gjson.ParseBytes(raw), "$")
}

// checkExpr 递归检查单个表达式节点
func checkExpr(v gjson.Result, path string) error {
	if v.IsArray() {
		for i, elem := range v.Array() {
			if err := checkExpr(elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	if !v.IsObject() {
		return errors.NewValidationError("LAMBDA_BAD_NODE",
			fmt.Sprintf("位置 %s: 表达式节点必须是对象或序列", path))
	}

	fields := v.Map()

	// 字面量节点: 恰好一个键
	if lit, ok := fields["int"]; ok {
		if len(fields) != 1 || lit.Type != gjson.String || !intPattern.MatchString(lit.Str) {
			return errors.NewValidationError("LAMBDA_BAD_INT",
				fmt.Sprintf("位置 %s: int字面量格式无效", path))
		}
		return nil
	}
	if lit, ok := fields["string"]; ok {
		if len(fields) != 1 || lit.Type != gjson.String {
			return errors.NewValidationError("LAMBDA_BAD_STRING",
				fmt.Sprintf("位置 %s: string字面量格式无效", path))
		}
		return nil
	}
	if lit, ok := fields["bytes"]; ok {
		if len(fields) != 1 || lit.Type != gjson.String || !bytesPattern.MatchString(lit.Str) {
			return errors.NewValidationError("LAMBDA_BAD_BYTES",
				fmt.Sprintf("位置 %s: bytes字面量必须为十六进制", path))
		}
		return nil
	}

	// Prim应用节点
	prim, ok := fields["prim"]
	if !ok {
		return errors.NewValidationError("LAMBDA_BAD_NODE",
			fmt.Sprintf("位置 %s: 对象节点必须是字面量或prim应用", path))
	}
	if prim.Type != gjson.String || !primPattern.MatchString(prim.Str) {
		return errors.NewValidationError("LAMBDA_BAD_PRIM",
			fmt.Sprintf("位置 %s: prim名称无效", path))
	}

	for key, val := range fields {
		switch key {
		case "prim":
			// 已检查
		case "args":
			if !val.IsArray() {
				return errors.NewValidationError("LAMBDA_BAD_ARGS",
					fmt.Sprintf("位置 %s: args必须是数组", path))
			}
			for i, arg := range val.Array() {
				if err := checkExpr(arg, fmt.Sprintf("%s.args[%d]", path, i)); err != nil {
					return err
				}
			}
		case "annots":
			if !val.IsArray() {
				return errors.NewValidationError("LAMBDA_BAD_ANNOTS",
					fmt.Sprintf("位置 %s: annots必须是数组", path))
			}
			for _, a := range val.Array() {
				if a.Type != gjson.String {
					return errors.NewValidationError("LAMBDA_BAD_ANNOTS",
						fmt.Sprintf("位置 %s: annots元素必须是字符串", path))
				}
			}
		default:
			return errors.NewValidationError("LAMBDA_UNKNOWN_KEY",
				fmt.Sprintf("位置 %s: 未知键 %q", path, key))
		}
	}

	return nil
}
