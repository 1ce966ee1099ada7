package chain

import (
	"context"
	"encoding/json"
)

// Query 链查询接口
//
// 只读访问：合约存储、余额、bigmap条目、相似合约发现与别名解析。
// 会话控制器只依赖该接口，具体实现由索引器客户端提供，
// 测试中以计数假实现替换。
type Query interface {
	// GetStorage 获取合约存储记录（bigmap以ID引用）
	GetStorage(ctx context.Context, address string) (*StorageRecord, error)

	// GetBalance 获取账户余额（mutez）
	GetBalance(ctx context.Context, address string) (int64, error)

	// GetBigMapEntries 获取bigmap的有序条目列表
	GetBigMapEntries(ctx context.Context, bigMapID int64) ([]BigMapEntry, error)

	// GetSimilarContracts 发现同代码合约的其他部署
	GetSimilarContracts(ctx context.Context, address string) ([]string, error)

	// ResolveAliases 批量解析地址的人类可读别名（无别名的地址不在结果中）
	ResolveAliases(ctx context.Context, addresses []string) (map[string]string, error)

	// GetOperationStatus 查询操作收录状态（确认轮询使用）
	GetOperationStatus(ctx context.Context, opHash string) (*OperationStatus, error)
}

// StorageRecord 合约存储的线上表示
//
// proposals与votes是bigmap，这里仅携带其ID，
// 条目需要另行通过GetBigMapEntries拉取。
type StorageRecord struct {
	Users              []string `json:"users"`
	MinimumVotes       int64    `json:"minimum_votes"`
	ExpirationTimeDays int64    `json:"expiration_time_days"`
	ProposalsMapID     int64    `json:"proposals"`
	VotesMapID         int64    `json:"votes"`
	Counter            int64    `json:"counter"`
}

// BigMapEntry 单个bigmap条目
type BigMapEntry struct {
	Key    json.RawMessage `json:"key"`
	Value  json.RawMessage `json:"value"`
	Active bool            `json:"active"`
}

// OperationStatus 操作收录状态
type OperationStatus struct {
	Hash               string `json:"hash"`
	Status             string `json:"status"` // applied / failed / backtracked / skipped
	Level              int64  `json:"level"`
	OriginatedContract string `json:"originated_contract,omitempty"`
}

// Applied 判断操作是否成功收录
func (s *OperationStatus) Applied() bool {
	return s.Status == "applied"
}
