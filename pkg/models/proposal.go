package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ProposalKind 提案类型
type ProposalKind string

const (
	// KindText 纯文本提案（仅记录，不执行任何链上动作）
	KindText ProposalKind = "text"
	// KindTransferMutez mutez转账提案
	KindTransferMutez ProposalKind = "transfer_mutez"
	// KindTransferToken 代币转账提案
	KindTransferToken ProposalKind = "transfer_token"
	// KindMinimumVotes 最小票数变更提案
	KindMinimumVotes ProposalKind = "minimum_votes"
	// KindExpirationTime 过期时间变更提案
	KindExpirationTime ProposalKind = "expiration_time"
	// KindAddUser 添加成员提案
	KindAddUser ProposalKind = "add_user"
	// KindRemoveUser 移除成员提案
	KindRemoveUser ProposalKind = "remove_user"
	// KindLambda 任意代码执行提案（Micheline lambda）
	KindLambda ProposalKind = "lambda"
)

// Entrypoint 提案类型对应的合约入口点
func (k ProposalKind) Entrypoint() string {
	switch k {
	case KindText:
		return "text_proposal"
	case KindTransferMutez:
		return "transfer_mutez_proposal"
	case KindTransferToken:
		return "transfer_token_proposal"
	case KindMinimumVotes:
		return "minimum_votes_proposal"
	case KindExpirationTime:
		return "expiration_time_proposal"
	case KindAddUser:
		return "add_user_proposal"
	case KindRemoveUser:
		return "remove_user_proposal"
	case KindLambda:
		return "lambda_proposal"
	default:
		return ""
	}
}

// IsValid 判断提案类型是否已知
func (k ProposalKind) IsValid() bool {
	return k.Entrypoint() != ""
}

// ProposalPayload 提案负载（按类型打标签的变体，每种类型一个具体结构）
type ProposalPayload interface {
	Kind() ProposalKind
}

// TextPayload 文本提案负载
type TextPayload struct {
	Text string `json:"text"`
}

// Kind 实现ProposalPayload接口
func (TextPayload) Kind() ProposalKind { return KindText }

// MutezTransfer 单笔mutez转账
type MutezTransfer struct {
	Amount      int64  `json:"amount"` // 单位: mutez
	Destination string `json:"destination"`
}

// TransferMutezPayload mutez转账提案负载
type TransferMutezPayload struct {
	Transfers []MutezTransfer `json:"transfers"`
}

// Kind 实现ProposalPayload接口
func (TransferMutezPayload) Kind() ProposalKind { return KindTransferMutez }

// TotalAmount 转账总额（mutez）
func (p TransferMutezPayload) TotalAmount() int64 {
	var total int64
	for _, t := range p.Transfers {
		total += t.Amount
	}
	return total
}

// TokenTransfer 单笔代币转账
type TokenTransfer struct {
	TokenContract string `json:"token_contract"`
	TokenID       int64  `json:"token_id"`
	Amount        int64  `json:"amount"`
	Destination   string `json:"destination"`
}

// TransferTokenPayload 代币转账提案负载
type TransferTokenPayload struct {
	Transfers []TokenTransfer `json:"transfers"`
}

// Kind 实现ProposalPayload接口
func (TransferTokenPayload) Kind() ProposalKind { return KindTransferToken }

// MinimumVotesPayload 最小票数变更提案负载
type MinimumVotesPayload struct {
	MinimumVotes int64 `json:"minimum_votes"`
}

// Kind 实现ProposalPayload接口
func (MinimumVotesPayload) Kind() ProposalKind { return KindMinimumVotes }

// ExpirationTimePayload 过期时间变更提案负载
type ExpirationTimePayload struct {
	ExpirationTimeDays int64 `json:"expiration_time_days"`
}

// Kind 实现ProposalPayload接口
func (ExpirationTimePayload) Kind() ProposalKind { return KindExpirationTime }

// AddUserPayload 添加成员提案负载
type AddUserPayload struct {
	User string `json:"user"`
}

// Kind 实现ProposalPayload接口
func (AddUserPayload) Kind() ProposalKind { return KindAddUser }

// RemoveUserPayload 移除成员提案负载
type RemoveUserPayload struct {
	User string `json:"user"`
}

// Kind 实现ProposalPayload接口
func (RemoveUserPayload) Kind() ProposalKind { return KindRemoveUser }

// LambdaPayload 任意代码提案负载（Micheline JSON表达式）
type LambdaPayload struct {
	Lambda json.RawMessage `json:"lambda"`
}

// Kind 实现ProposalPayload接口
func (LambdaPayload) Kind() ProposalKind { return KindLambda }

// Proposal 链上提案记录（来自合约存储的快照，获取后不可变）
type Proposal struct {
	ID            int64           `json:"id"`
	Kind          ProposalKind    `json:"kind"`
	Issuer        string          `json:"issuer"`
	Timestamp     time.Time       `json:"timestamp"`
	PositiveVotes int64           `json:"positive_votes"`
	NegativeVotes int64           `json:"negative_votes"`
	Executed      bool            `json:"executed"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// VoteKey 投票映射键（成员地址 + 提案ID）
func VoteKey(user string, proposalID int64) string {
	return fmt.Sprintf("%s:%d", user, proposalID)
}

// ParseVoteKey 解析投票映射键
func ParseVoteKey(key string) (user string, proposalID int64, err error) {
	idx := strings.LastIndex(key, ":")
	if idx <= 0 || idx == len(key)-1 {
		return "", 0, fmt.Errorf("无效的投票键: %s", key)
	}
	id, err := strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("无效的投票键: %s", key)
	}
	return key[:idx], id, nil
}
