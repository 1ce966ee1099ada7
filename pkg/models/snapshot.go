package models

import "time"

// MessageKind 临时消息类型
type MessageKind string

const (
	// MessageNone 无消息
	MessageNone MessageKind = "none"
	// MessageInfo 信息提示（操作完成后由控制器自行清除）
	MessageInfo MessageKind = "info"
	// MessageConfirmation 成功确认（需要用户显式关闭）
	MessageConfirmation MessageKind = "confirmation"
	// MessageError 错误提示（需要用户显式关闭）
	MessageError MessageKind = "error"
)

// TransientMessage 临时UI消息
//
// 同一时刻至多一条，新消息直接覆盖旧消息，不排队。
type TransientMessage struct {
	Kind MessageKind `json:"kind"`
	Text string      `json:"text,omitempty"`
}

// NoMessage 空消息
func NoMessage() TransientMessage {
	return TransientMessage{Kind: MessageNone}
}

// ActionPhase 待处理操作所处阶段
type ActionPhase string

const (
	PhaseIdle                 ActionPhase = "idle"
	PhaseValidating           ActionPhase = "validating"
	PhaseSubmitting           ActionPhase = "submitting"
	PhaseAwaitingConfirmation ActionPhase = "awaiting_confirmation"
	PhaseRefreshing           ActionPhase = "refreshing"
)

// Snapshot 会话状态快照
//
// 控制器对外发布的唯一真实状态。每次发布的都是副本，
// 观察者只读，Generation用于判别过期的异步结果。
type Snapshot struct {
	Generation      int64            `json:"generation"`
	ContractAddress string           `json:"contract_address"`
	Identity        string           `json:"identity,omitempty"` // 空串表示未连接
	Storage         *ContractStorage `json:"storage,omitempty"`
	View            *DerivedView     `json:"view,omitempty"`
	Message         TransientMessage `json:"message"`
	Phase           ActionPhase      `json:"phase"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Connected 判断钱包是否已连接
func (s *Snapshot) Connected() bool {
	return s.Identity != ""
}
