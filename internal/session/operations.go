package session

import (
	"context"
	"encoding/json"
	"fmt"

	"minidao/internal/errors"
	"minidao/internal/validation"
	"minidao/internal/wallet"
	"minidao/pkg/models"
)

// 投票与执行入口点
const (
	voteEntrypoint    = "vote_proposal"
	executeEntrypoint = "execute_proposal"
)

// SelectContract 选中目标合约
//
// 与当前选择相同的地址是无操作（引用稳定，不触达任何协作方）。
// 地址校验不通过时返回校验错误；通过后递增代号、作废缓存句柄，
// 原子抓取存储与派生视图并整体替换，最后持久化选择。
func (c *Controller) SelectContract(ctx context.Context, addr string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.stateMu.RLock()
	current := c.snapshot.ContractAddress
	identity := c.snapshot.Identity
	c.stateMu.RUnlock()

	// 校验先于无操作判定：未选中时的空地址必须报错而不是被吞掉
	if err := c.deps.Validator.ValidateContractAddress(addr); err != nil {
		return c.failWith(err)
	}

	if addr == current {
		return nil
	}

	c.stateMu.Lock()
	c.generation++
	gen := c.generation
	c.stateMu.Unlock()

	c.setPhase(models.PhaseRefreshing)

	state, err := c.fetchState(ctx, addr, identity)
	if err != nil {
		return c.failWith(errors.WrapError(err, errors.ErrorTypeRPC, errors.SeverityMedium,
			"CONTRACT_LOAD_FAILED", "合约状态加载失败").WithContract(addr))
	}

	if c.stale(gen) {
		c.setPhase(models.PhaseIdle)
		return nil
	}

	c.stateMu.Lock()
	c.handle = nil
	c.lastRecord = state.record
	c.stateMu.Unlock()

	c.publish(func(s *models.Snapshot) {
		s.Generation = gen
		s.ContractAddress = addr
		s.Storage = state.storage
		s.View = state.view
		s.Phase = models.PhaseIdle
		s.Message = models.NoMessage()
	})

	if c.deps.Store != nil {
		if err := c.deps.Store.SaveSelectedContract(addr); err != nil {
			c.deps.Logger.Warnf("合约选择持久化失败: %v", err)
		}
	}

	c.deps.Logger.Infof("已选中合约: %s (generation=%d)", addr, gen)
	c.emitEvent(models.EventContractSelected, nil)

	return nil
}

// ConnectWallet 连接钱包
//
// 用户在钱包侧拒绝授权时静默保持未连接状态：只记录warn日志，
// 不产生错误消息，也不返回错误。
func (c *Controller) ConnectWallet(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.stateMu.RLock()
	connected := c.snapshot.Identity != ""
	c.stateMu.RUnlock()
	if connected {
		return nil
	}

	addr, err := c.deps.Wallet.RequestPermissions(ctx, c.cfg.Network)
	if err != nil {
		c.deps.Logger.Warnf("钱包授权被拒绝，保持未连接: %v", err)
		return nil
	}

	c.publish(func(s *models.Snapshot) {
		s.Identity = addr
		if s.View != nil && s.Storage != nil {
			view := *s.View
			view.UserVotes = votesFor(s.Storage.Votes, addr)
			s.View = &view
		}
	})

	c.deps.Logger.Infof("钱包已连接: %s", addr)
	c.emitEvent(models.EventWalletConnected, nil)

	return nil
}

// DisconnectWallet 断开钱包
//
// 清除身份、身份相关派生字段与缓存句柄；合约选择与存储不动。
func (c *Controller) DisconnectWallet(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.stateMu.RLock()
	connected := c.snapshot.Identity != ""
	c.stateMu.RUnlock()
	if !connected {
		return nil
	}

	if err := c.deps.Wallet.ClearActiveAccount(ctx); err != nil {
		c.deps.Logger.Warnf("清除钱包活跃账户失败: %v", err)
	}

	c.stateMu.Lock()
	c.handle = nil
	c.stateMu.Unlock()

	c.publish(func(s *models.Snapshot) {
		s.Identity = ""
		if s.View != nil {
			view := *s.View
			view.UserVotes = nil
			s.View = &view
		}
	})

	c.deps.Logger.Info("钱包已断开")
	c.emitEvent(models.EventWalletDisconnect, nil)

	return nil
}

// SubmitProposal 提交提案
//
// 验证全部在任何网络调用之前完成；验证失败快速返回，
// 协作方一次都不会被触达。提交成功后等待确认，
// 然后仅刷新提案列表。
func (c *Controller) SubmitProposal(ctx context.Context, payload models.ProposalPayload) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.setPhase(models.PhaseValidating)

	snap := c.Snapshot()
	if err := requireSession(&snap, true); err != nil {
		return c.failWith(err)
	}

	env := &validation.Env{Storage: snap.Storage, Balance: snap.View.Balance}
	if err := c.deps.Validator.ValidateProposal(payload, env); err != nil {
		return c.failWith(err)
	}

	c.setPhase(models.PhaseSubmitting)

	handle, err := c.contractHandle(ctx)
	if err != nil {
		return c.failWith(err)
	}

	args, err := json.Marshal(payload)
	if err != nil {
		return c.failWith(errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
			"PAYLOAD_ENCODE_FAILED", "提案负载序列化失败"))
	}

	op, err := handle.Send(ctx, payload.Kind().Entrypoint(), args)
	if err != nil {
		return c.failWith(err)
	}

	c.setPhase(models.PhaseAwaitingConfirmation)

	if _, err := c.deps.Confirmer.AwaitConfirmation(ctx, op, c.cfg.ConfirmationCount); err != nil {
		return c.failWith(err)
	}

	c.setPhase(models.PhaseRefreshing)

	if err := c.refreshProposals(ctx, c.currentGeneration(), false); err != nil {
		return c.failWith(errors.WrapError(err, errors.ErrorTypeRPC, errors.SeverityMedium,
			"REFRESH_FAILED", "提案列表刷新失败"))
	}

	c.logOperation(snap.ContractAddress, op.Hash, fmt.Sprintf("提案已确认 (类型: %s)", payload.Kind()))
	c.confirmWith(fmt.Sprintf("提案已提交并确认 (类型: %s)", payload.Kind()))
	c.emitEvent(models.EventProposalSubmitted, func(ev *models.SessionEvent) {
		ev.OpHash = op.Hash
		ev.Detail = string(payload.Kind())
	})

	return nil
}

// VoteProposal 对提案投票
//
// 确认后同时刷新提案与身份投票视图；余额与成员不动。
func (c *Controller) VoteProposal(ctx context.Context, proposalID int64, approve bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.setPhase(models.PhaseValidating)

	snap := c.Snapshot()
	if err := requireSession(&snap, true); err != nil {
		return c.failWith(err)
	}
	if _, exists := snap.Storage.Proposals[proposalID]; !exists {
		return c.failWith(errors.NewValidationError("PROPOSAL_NOT_FOUND",
			fmt.Sprintf("提案不存在: %d", proposalID)))
	}

	c.setPhase(models.PhaseSubmitting)

	handle, err := c.contractHandle(ctx)
	if err != nil {
		return c.failWith(err)
	}

	args, _ := json.Marshal(map[string]interface{}{
		"proposal_id": proposalID,
		"approve":     approve,
	})

	op, err := handle.Send(ctx, voteEntrypoint, args)
	if err != nil {
		return c.failWith(err)
	}

	c.setPhase(models.PhaseAwaitingConfirmation)

	if _, err := c.deps.Confirmer.AwaitConfirmation(ctx, op, c.cfg.ConfirmationCount); err != nil {
		return c.failWith(err)
	}

	c.setPhase(models.PhaseRefreshing)

	if err := c.refreshProposals(ctx, c.currentGeneration(), true); err != nil {
		return c.failWith(errors.WrapError(err, errors.ErrorTypeRPC, errors.SeverityMedium,
			"REFRESH_FAILED", "提案与投票刷新失败"))
	}

	c.logOperation(snap.ContractAddress, op.Hash, fmt.Sprintf("投票已确认 (提案: %d)", proposalID))
	c.confirmWith(fmt.Sprintf("投票已确认 (提案: %d)", proposalID))
	c.emitEvent(models.EventVoteSubmitted, func(ev *models.SessionEvent) {
		ev.OpHash = op.Hash
		ev.ProposalID = &proposalID
	})

	return nil
}

// ExecuteProposal 执行已达票数的提案
//
// 执行可能移动资金或成员，确认后做全量刷新。
func (c *Controller) ExecuteProposal(ctx context.Context, proposalID int64) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.setPhase(models.PhaseValidating)

	snap := c.Snapshot()
	if err := requireSession(&snap, true); err != nil {
		return c.failWith(err)
	}
	proposal, exists := snap.Storage.Proposals[proposalID]
	if !exists {
		return c.failWith(errors.NewValidationError("PROPOSAL_NOT_FOUND",
			fmt.Sprintf("提案不存在: %d", proposalID)))
	}
	if proposal.Executed {
		return c.failWith(errors.NewValidationError("ALREADY_EXECUTED",
			fmt.Sprintf("提案已执行: %d", proposalID)))
	}

	c.setPhase(models.PhaseSubmitting)

	handle, err := c.contractHandle(ctx)
	if err != nil {
		return c.failWith(err)
	}

	args, _ := json.Marshal(map[string]interface{}{
		"proposal_id": proposalID,
	})

	op, err := handle.Send(ctx, executeEntrypoint, args)
	if err != nil {
		return c.failWith(err)
	}

	c.setPhase(models.PhaseAwaitingConfirmation)

	if _, err := c.deps.Confirmer.AwaitConfirmation(ctx, op, c.cfg.ConfirmationCount); err != nil {
		return c.failWith(err)
	}

	c.setPhase(models.PhaseRefreshing)

	if err := c.refreshFull(ctx, c.currentGeneration()); err != nil {
		return c.failWith(errors.WrapError(err, errors.ErrorTypeRPC, errors.SeverityMedium,
			"REFRESH_FAILED", "合约状态刷新失败"))
	}

	c.logOperation(snap.ContractAddress, op.Hash, fmt.Sprintf("提案已执行 (提案: %d)", proposalID))
	c.confirmWith(fmt.Sprintf("提案已执行 (提案: %d)", proposalID))
	c.emitEvent(models.EventProposalExecuted, func(ev *models.SessionEvent) {
		ev.OpHash = op.Hash
		ev.ProposalID = &proposalID
	})

	return nil
}

// UploadMetadata 上传JSON元数据，返回CID
//
// 上传期间展示信息消息，完成后自动清除。
func (c *Controller) UploadMetadata(ctx context.Context, v interface{}) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.publish(func(s *models.Snapshot) {
		s.Message = models.TransientMessage{Kind: models.MessageInfo, Text: "正在上传元数据至IPFS..."}
	})

	cid, err := c.deps.Uploader.UploadJSON(ctx, v, c.cfg.Pin)
	if err != nil {
		return "", c.failWith(err)
	}

	c.publish(func(s *models.Snapshot) {
		s.Message = models.NoMessage()
	})

	c.emitEvent(models.EventMetadataUploaded, func(ev *models.SessionEvent) {
		ev.Detail = cid
	})

	return cid, nil
}

// UploadFile 上传原始内容，返回CID
func (c *Controller) UploadFile(ctx context.Context, content []byte) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.publish(func(s *models.Snapshot) {
		s.Message = models.TransientMessage{Kind: models.MessageInfo, Text: "正在上传文件至IPFS..."}
	})

	cid, err := c.deps.Uploader.UploadBytes(ctx, content, c.cfg.Pin)
	if err != nil {
		return "", c.failWith(err)
	}

	c.publish(func(s *models.Snapshot) {
		s.Message = models.NoMessage()
	})

	c.emitEvent(models.EventFileUploaded, func(ev *models.SessionEvent) {
		ev.Detail = cid
	})

	return cid, nil
}

// Originate 部署新的多签合约
//
// 参数验证通过后先上传元数据，再以空提案/投票映射与
// 计数器0作为初始存储提交部署，确认后报告新合约地址。
func (c *Controller) Originate(ctx context.Context, params models.OriginateParams) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.setPhase(models.PhaseValidating)

	snap := c.Snapshot()
	if !snap.Connected() {
		return "", c.failWith(errors.NewValidationError("WALLET_NOT_CONNECTED", "钱包未连接"))
	}
	if err := c.deps.Validator.ValidateOrigination(params); err != nil {
		return "", c.failWith(err)
	}

	c.publish(func(s *models.Snapshot) {
		s.Message = models.TransientMessage{Kind: models.MessageInfo, Text: "正在上传合约元数据..."}
	})

	metadata := map[string]interface{}{
		"name":    params.Name,
		"authors": params.Users,
	}
	cid, err := c.deps.Uploader.UploadJSON(ctx, metadata, c.cfg.Pin)
	if err != nil {
		return "", c.failWith(err)
	}

	c.setPhase(models.PhaseSubmitting)

	initialStorage, err := initialStorageJSON(params, cid)
	if err != nil {
		return "", c.failWith(err)
	}

	op, err := c.deps.Wallet.Originate(ctx, wallet.Origination{
		Script:         c.cfg.ContractScript,
		InitialStorage: initialStorage,
		Balance:        0,
	})
	if err != nil {
		return "", c.failWith(err)
	}

	c.setPhase(models.PhaseAwaitingConfirmation)

	status, err := c.deps.Confirmer.AwaitConfirmation(ctx, op, c.cfg.ConfirmationCount)
	if err != nil {
		return "", c.failWith(err)
	}
	if status.OriginatedContract == "" {
		return "", c.failWith(errors.NewDaoError(errors.ErrorTypeOrigination, errors.SeverityHigh,
			"ORIGINATED_ADDRESS_MISSING", "部署已确认但未返回新合约地址").WithOpHash(op.Hash))
	}

	c.logOperation(status.OriginatedContract, op.Hash, "合约部署已确认")
	c.confirmWith(fmt.Sprintf("合约已部署: %s", status.OriginatedContract))
	c.emitEvent(models.EventContractOriginated, func(ev *models.SessionEvent) {
		ev.OpHash = op.Hash
		ev.Detail = status.OriginatedContract
	})

	c.deps.Logger.Infof("合约部署完成: %s", status.OriginatedContract)
	return status.OriginatedContract, nil
}

// SimilarContracts 发现与当前选中合约同代码的其他部署
//
// 只读查询，不经过操作互斥锁，不改动快照。
func (c *Controller) SimilarContracts(ctx context.Context) ([]string, error) {
	snap := c.Snapshot()
	if snap.ContractAddress == "" {
		return nil, errors.NewValidationError("NO_CONTRACT_SELECTED", "尚未选中合约")
	}

	addresses, err := c.deps.Query.GetSimilarContracts(ctx, snap.ContractAddress)
	if err != nil {
		return nil, err
	}

	// 把自身从结果中剔除
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if a != snap.ContractAddress {
			out = append(out, a)
		}
	}
	return out, nil
}

// RecentContracts 返回最近使用过的合约地址（新在前）
func (c *Controller) RecentContracts() []string {
	if c.deps.Store == nil {
		return nil
	}
	return c.deps.Store.RecentContracts()
}

// requireSession 操作前置检查：合约已选中且（可选）钱包已连接
func requireSession(snap *models.Snapshot, needWallet bool) error {
	if needWallet && !snap.Connected() {
		return errors.NewValidationError("WALLET_NOT_CONNECTED", "钱包未连接")
	}
	if snap.ContractAddress == "" || snap.Storage == nil || snap.View == nil {
		return errors.NewValidationError("NO_CONTRACT_SELECTED", "尚未选中合约")
	}
	return nil
}

// contractHandle 返回缓存的合约调用句柄，失效时重新解析
func (c *Controller) contractHandle(ctx context.Context) (wallet.CallHandle, error) {
	c.stateMu.RLock()
	handle := c.handle
	addr := c.snapshot.ContractAddress
	c.stateMu.RUnlock()

	if handle != nil && handle.Address() == addr {
		return handle, nil
	}

	handle, err := c.deps.Wallet.At(ctx, addr)
	if err != nil {
		return nil, err
	}

	c.stateMu.Lock()
	c.handle = handle
	c.stateMu.Unlock()

	return handle, nil
}

// initialStorageJSON 构造部署用初始存储
func initialStorageJSON(params models.OriginateParams, metadataCID string) (json.RawMessage, error) {
	storage := map[string]interface{}{
		"users":                params.Users,
		"minimum_votes":        params.MinimumVotes,
		"expiration_time_days": params.ExpirationTimeDays,
		"proposals":            map[string]interface{}{},
		"votes":                map[string]interface{}{},
		"counter":              0,
		"metadata":             "ipfs://" + metadataCID,
	}

	data, err := json.Marshal(storage)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
			"STORAGE_ENCODE_FAILED", "初始存储序列化失败")
	}
	return data, nil
}
