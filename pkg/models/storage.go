package models

// ContractStorage 多签合约存储快照
//
// 从链上获取后视为不可变：刷新时整体替换，绝不原地修补。
// proposals与votes的键仅在同一次获取的存储代内有唯一性保证，
// 跨代不保证同一ID指向同一提案。
type ContractStorage struct {
	Users              []string            `json:"users"` // 授权成员地址（有序）
	MinimumVotes       int64               `json:"minimum_votes"`
	ExpirationTimeDays int64               `json:"expiration_time_days"`
	Proposals          map[int64]*Proposal `json:"proposals"`
	Votes              map[string]bool     `json:"votes"` // 键: VoteKey(user, proposalID)
	Counter            int64               `json:"counter"`
}

// HasUser 判断地址是否为当前成员
func (s *ContractStorage) HasUser(address string) bool {
	for _, u := range s.Users {
		if u == address {
			return true
		}
	}
	return false
}

// UserCount 当前成员数量
func (s *ContractStorage) UserCount() int {
	return len(s.Users)
}

// DerivedView 由合约存储与连接身份计算出的派生视图
//
// 所有派生字段随来源一起整体重算，同一Generation内不允许部分过期。
type DerivedView struct {
	Balance     int64             `json:"balance"` // 合约余额，单位mutez
	UserAliases map[string]string `json:"user_aliases"`
	Proposals   []*Proposal       `json:"proposals"`  // 按ID升序
	UserVotes   map[int64]bool    `json:"user_votes"` // 连接身份在各提案上的投票
}

// OperationHandle 已提交链上操作的不透明引用
//
// 仅用于等待确认，确认或失败后即丢弃。
type OperationHandle struct {
	Hash  string `json:"hash"`
	Level int64  `json:"level,omitempty"` // 提交时的分支高度
}

// OriginateParams 合约部署参数
type OriginateParams struct {
	Name               string   `json:"name"`
	Users              []string `json:"users"`
	MinimumVotes       int64    `json:"minimum_votes"`
	ExpirationTimeDays int64    `json:"expiration_time_days"`
}
