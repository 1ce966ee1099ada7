package wallet

import (
	"context"
	"encoding/json"

	"minidao/pkg/models"
)

// Connector 钱包连接器接口
//
// 密钥托管与交易签名在外部钱包桥接服务中完成，
// 本侧只发起请求并等待结果。测试中以假实现替换。
type Connector interface {
	// RequestPermissions 为指定网络请求授权，返回授权的账户地址。
	// 用户在钱包侧拒绝时返回错误；无超时（用户可以无限期不响应）。
	RequestPermissions(ctx context.Context, network string) (string, error)

	// ActiveAddress 返回当前活跃账户地址，未连接时为空串
	ActiveAddress(ctx context.Context) (string, error)

	// ClearActiveAccount 清除活跃账户
	ClearActiveAccount(ctx context.Context) error

	// At 解析目标合约并返回可复用的调用句柄
	At(ctx context.Context, contract string) (CallHandle, error)

	// Originate 提交合约部署操作
	Originate(ctx context.Context, origination Origination) (*models.OperationHandle, error)
}

// CallHandle 合约调用句柄
//
// 解析一次后由控制器缓存；切换合约或断开钱包时作废。
type CallHandle interface {
	// Address 句柄指向的合约地址
	Address() string

	// Send 调用指定入口点并返回操作句柄
	Send(ctx context.Context, entrypoint string, args json.RawMessage) (*models.OperationHandle, error)
}

// Origination 合约部署请求
type Origination struct {
	Script         json.RawMessage `json:"script"`          // 合约代码（Micheline）
	InitialStorage json.RawMessage `json:"initial_storage"` // 初始存储（Micheline）
	Balance        int64           `json:"balance"`         // 初始余额（mutez）
}
