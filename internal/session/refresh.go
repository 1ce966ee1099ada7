package session

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"minidao/internal/chain"
	"minidao/internal/errors"
	"minidao/pkg/models"
)

// fetchedState 一次抓取得到的完整合约状态
type fetchedState struct {
	record  *chain.StorageRecord
	storage *models.ContractStorage
	view    *models.DerivedView
}

// fetchState 原子抓取合约存储与派生视图
//
// 存储、余额、提案、投票与别名属于同一代：要么全部成功并
// 整体替换，要么整体失败，绝不部分更新。
func (c *Controller) fetchState(ctx context.Context, address, identity string) (*fetchedState, error) {
	record, err := c.deps.Query.GetStorage(ctx, address)
	if err != nil {
		return nil, err
	}

	proposals, err := c.fetchProposals(ctx, record.ProposalsMapID)
	if err != nil {
		return nil, err
	}

	votes, err := c.fetchVotes(ctx, record.VotesMapID)
	if err != nil {
		return nil, err
	}

	balance, err := c.deps.Query.GetBalance(ctx, address)
	if err != nil {
		return nil, err
	}

	aliases, err := c.deps.Query.ResolveAliases(ctx, record.Users)
	if err != nil {
		return nil, err
	}

	storage := &models.ContractStorage{
		Users:              record.Users,
		MinimumVotes:       record.MinimumVotes,
		ExpirationTimeDays: record.ExpirationTimeDays,
		Proposals:          proposals,
		Votes:              votes,
		Counter:            record.Counter,
	}

	view := &models.DerivedView{
		Balance:     balance,
		UserAliases: aliases,
		Proposals:   orderedProposals(proposals),
		UserVotes:   votesFor(votes, identity),
	}

	return &fetchedState{record: record, storage: storage, view: view}, nil
}

// proposalWire 索引器渲染的提案条目
type proposalWire struct {
	Kind          models.ProposalKind `json:"kind"`
	Issuer        string              `json:"issuer"`
	Timestamp     time.Time           `json:"timestamp"`
	PositiveVotes json.RawMessage     `json:"positive_votes"`
	NegativeVotes json.RawMessage     `json:"negative_votes"`
	Executed      bool                `json:"executed"`
	Payload       json.RawMessage     `json:"payload,omitempty"`
}

// decodeInt 宽容解码整数：索引器可能把数值渲染成数字或字符串
func decodeInt(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.Int64()
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, err
	}
	return json.Number(str).Int64()
}

// fetchProposals 抓取并解码提案bigmap
func (c *Controller) fetchProposals(ctx context.Context, bigMapID int64) (map[int64]*models.Proposal, error) {
	entries, err := c.deps.Query.GetBigMapEntries(ctx, bigMapID)
	if err != nil {
		return nil, err
	}

	proposals := make(map[int64]*models.Proposal, len(entries))
	for _, entry := range entries {
		if !entry.Active {
			continue
		}

		proposalID, err := decodeInt(entry.Key)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
				"PROPOSAL_KEY_DECODE_FAILED", "提案键解码失败")
		}

		var wire proposalWire
		if err := json.Unmarshal(entry.Value, &wire); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
				"PROPOSAL_DECODE_FAILED", "提案条目解码失败").WithProposalID(proposalID)
		}

		proposal := &models.Proposal{
			ID:        proposalID,
			Kind:      wire.Kind,
			Issuer:    wire.Issuer,
			Timestamp: wire.Timestamp,
			Executed:  wire.Executed,
			Payload:   wire.Payload,
		}
		proposal.PositiveVotes, _ = decodeInt(wire.PositiveVotes)
		proposal.NegativeVotes, _ = decodeInt(wire.NegativeVotes)

		proposals[proposalID] = proposal
	}

	return proposals, nil
}

// voteKeyWire 索引器渲染的投票键（address, nat对）
type voteKeyWire struct {
	Address string          `json:"address"`
	Nat     json.RawMessage `json:"nat"`
}

// fetchVotes 抓取并解码投票bigmap
func (c *Controller) fetchVotes(ctx context.Context, bigMapID int64) (map[string]bool, error) {
	entries, err := c.deps.Query.GetBigMapEntries(ctx, bigMapID)
	if err != nil {
		return nil, err
	}

	votes := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.Active {
			continue
		}

		var key voteKeyWire
		if err := json.Unmarshal(entry.Key, &key); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
				"VOTE_KEY_DECODE_FAILED", "投票键解码失败")
		}
		proposalID, err := decodeInt(key.Nat)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
				"VOTE_KEY_DECODE_FAILED", "投票键解码失败")
		}

		var approve bool
		if err := json.Unmarshal(entry.Value, &approve); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
				"VOTE_DECODE_FAILED", "投票条目解码失败").WithProposalID(proposalID)
		}

		votes[models.VoteKey(key.Address, proposalID)] = approve
	}

	return votes, nil
}

// orderedProposals 提案按ID升序排列
func orderedProposals(proposals map[int64]*models.Proposal) []*models.Proposal {
	ordered := make([]*models.Proposal, 0, len(proposals))
	for _, p := range proposals {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return ordered
}

// votesFor 过滤出指定身份的投票；身份为空时为nil
func votesFor(votes map[string]bool, identity string) map[int64]bool {
	if identity == "" {
		return nil
	}

	userVotes := make(map[int64]bool)
	for key, approve := range votes {
		user, proposalID, err := models.ParseVoteKey(key)
		if err != nil {
			continue
		}
		if user == identity {
			userVotes[proposalID] = approve
		}
	}
	return userVotes
}

// refreshProposals 仅刷新提案（投票提交后与提案提交后使用）
//
// includeVotes为真时同时刷新投票映射与身份投票视图；
// 余额、成员与别名保持不动。
func (c *Controller) refreshProposals(ctx context.Context, gen int64, includeVotes bool) error {
	c.stateMu.RLock()
	address := c.snapshot.ContractAddress
	identity := c.snapshot.Identity
	c.stateMu.RUnlock()

	record, err := c.deps.Query.GetStorage(ctx, address)
	if err != nil {
		return err
	}

	proposals, err := c.fetchProposals(ctx, record.ProposalsMapID)
	if err != nil {
		return err
	}

	var votes map[string]bool
	if includeVotes {
		votes, err = c.fetchVotes(ctx, record.VotesMapID)
		if err != nil {
			return err
		}
	}

	if c.stale(gen) {
		c.deps.Logger.Warnf("丢弃过期代的刷新结果 (gen=%d)", gen)
		return nil
	}

	c.publish(func(s *models.Snapshot) {
		storage := *s.Storage
		storage.Proposals = proposals
		storage.Counter = record.Counter
		if includeVotes {
			storage.Votes = votes
		}
		s.Storage = &storage

		view := *s.View
		view.Proposals = orderedProposals(proposals)
		if includeVotes {
			view.UserVotes = votesFor(votes, identity)
		}
		s.View = &view
	})

	c.stateMu.Lock()
	c.lastRecord = record
	c.stateMu.Unlock()

	return nil
}

// refreshFull 全量刷新（提案执行后使用：执行可能移动资金与成员）
func (c *Controller) refreshFull(ctx context.Context, gen int64) error {
	c.stateMu.RLock()
	address := c.snapshot.ContractAddress
	identity := c.snapshot.Identity
	c.stateMu.RUnlock()

	state, err := c.fetchState(ctx, address, identity)
	if err != nil {
		return err
	}

	if c.stale(gen) {
		c.deps.Logger.Warnf("丢弃过期代的刷新结果 (gen=%d)", gen)
		return nil
	}

	c.publish(func(s *models.Snapshot) {
		s.Storage = state.storage
		s.View = state.view
	})

	c.stateMu.Lock()
	c.lastRecord = state.record
	c.stateMu.Unlock()

	return nil
}
