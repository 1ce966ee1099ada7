package models

import "time"

// EventKind 会话事件类型
type EventKind string

const (
	EventContractSelected   EventKind = "contract_selected"
	EventWalletConnected    EventKind = "wallet_connected"
	EventWalletDisconnect   EventKind = "wallet_disconnected"
	EventProposalSubmitted  EventKind = "proposal_submitted"
	EventVoteSubmitted      EventKind = "vote_submitted"
	EventProposalExecuted   EventKind = "proposal_executed"
	EventOperationFailed    EventKind = "operation_failed"
	EventContractOriginated EventKind = "contract_originated"
	EventMetadataUploaded   EventKind = "metadata_uploaded"
	EventFileUploaded       EventKind = "file_uploaded"
)

// SessionEvent 会话生命周期事件（供事件输出器下游消费）
type SessionEvent struct {
	Kind       EventKind `json:"kind"`
	Generation int64     `json:"generation"`
	Contract   string    `json:"contract,omitempty"`
	Identity   string    `json:"identity,omitempty"`
	OpHash     string    `json:"op_hash,omitempty"`
	ProposalID *int64    `json:"proposal_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
