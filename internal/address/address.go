package address

import (
	"bytes"
	"crypto/sha256"

	"github.com/btcsuite/btcutil/base58"
)

// 地址类型
type Kind int

const (
	// KindUnknown 无法识别的地址
	KindUnknown Kind = iota
	// KindImplicit 隐式账户地址 (tz1/tz2/tz3)
	KindImplicit
	// KindContract 合约地址 (KT1)
	KindContract
)

// base58check前缀字节
var (
	prefixTz1 = []byte{6, 161, 159}
	prefixTz2 = []byte{6, 161, 161}
	prefixTz3 = []byte{6, 161, 164}
	prefixKT1 = []byte{2, 90, 121}
)

const (
	prefixLen   = 3
	payloadLen  = 20
	checksumLen = 4
	decodedLen  = prefixLen + payloadLen + checksumLen
)

// KindOf 解析地址并返回其类型
//
// 校验包括base58解码、长度、前缀和4字节双SHA256校验和，
// 任意一步失败均返回KindUnknown。
func KindOf(addr string) Kind {
	if addr == "" {
		return KindUnknown
	}

	decoded := base58.Decode(addr)
	if len(decoded) != decodedLen {
		return KindUnknown
	}

	// 校验和: 前缀+负载双SHA256的前4字节
	body := decoded[:prefixLen+payloadLen]
	checksum := decoded[prefixLen+payloadLen:]
	first := sha256.Sum256(body)
	second := sha256.Sum256(first[:])
	if !bytes.Equal(checksum, second[:checksumLen]) {
		return KindUnknown
	}

	prefix := decoded[:prefixLen]
	switch {
	case bytes.Equal(prefix, prefixTz1), bytes.Equal(prefix, prefixTz2), bytes.Equal(prefix, prefixTz3):
		return KindImplicit
	case bytes.Equal(prefix, prefixKT1):
		return KindContract
	default:
		return KindUnknown
	}
}

// IsValid 判断地址是否格式合法（隐式账户或合约均可）
func IsValid(addr string) bool {
	return KindOf(addr) != KindUnknown
}

// IsContract 判断是否为合约地址
func IsContract(addr string) bool {
	return KindOf(addr) == KindContract
}

// IsImplicit 判断是否为隐式账户地址
func IsImplicit(addr string) bool {
	return KindOf(addr) == KindImplicit
}
