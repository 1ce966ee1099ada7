package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"minidao/internal/chain"
	"minidao/internal/errors"
	"minidao/internal/events"
	"minidao/internal/logging"
	"minidao/internal/validation"
	"minidao/internal/wallet"
	"minidao/pkg/models"
)

// Uploader 内容上传接口（IPFS客户端满足该接口）
type Uploader interface {
	UploadBytes(ctx context.Context, content []byte, pin bool) (string, error)
	UploadJSON(ctx context.Context, v interface{}, pin bool) (string, error)
}

// Confirmer 操作确认接口
type Confirmer interface {
	AwaitConfirmation(ctx context.Context, handle *models.OperationHandle, count int) (*chain.OperationStatus, error)
}

// SelectionStore 合约选择持久化接口
type SelectionStore interface {
	SelectedContract() string
	SaveSelectedContract(address string) error
	RecentContracts() []string
}

// Config 控制器配置
type Config struct {
	Network           string             // 钱包授权的目标网络
	ConfirmationCount int                // 等待的确认数
	ContractScript    json.RawMessage    // 部署用合约代码（Micheline），空则由钱包桥接侧提供
	Pin               bool               // 上传后是否固定
	LogConfig         *logging.LogConfig // 结构化日志配置，空则仅用logrus
}

// Deps 控制器协作方
type Deps struct {
	Query     chain.Query
	Wallet    wallet.Connector
	Confirmer Confirmer
	Uploader  Uploader
	Store     SelectionStore
	Events    events.Sink
	Validator *validation.Validator
	Logger    *logrus.Logger
}

// Controller 会话状态控制器
//
// 唯一权威状态机：所有状态变更都经过其方法，同一时刻至多
// 一个变更操作在途（互斥串行）。每次抓取携带发起时的代号，
// 过期代的结果到达后直接丢弃，绝不合并。
type Controller struct {
	cfg  *Config
	deps Deps

	structuredLogger *logging.StructuredLogger
	errHandler       *errors.ErrorHandler

	// opMu 串行化所有状态变更操作
	opMu sync.Mutex

	// stateMu 保护快照与缓存的读写
	stateMu    sync.RWMutex
	snapshot   models.Snapshot
	generation int64
	handle     wallet.CallHandle
	lastRecord *chain.StorageRecord

	// 订阅者
	subMu   sync.Mutex
	subs    map[int64]chan models.Snapshot
	nextSub int64
}

// NewController 创建会话状态控制器
func NewController(cfg *Config, deps Deps) *Controller {
	if cfg.ConfirmationCount <= 0 {
		cfg.ConfirmationCount = 1
	}

	var structuredLogger *logging.StructuredLogger
	if cfg.LogConfig != nil {
		var err error
		structuredLogger, err = logging.NewStructuredLogger(cfg.LogConfig)
		if err != nil {
			deps.Logger.Warnf("初始化结构化日志器失败: %v，将使用默认日志", err)
		}
	}

	return &Controller{
		cfg:              cfg,
		deps:             deps,
		structuredLogger: structuredLogger,
		errHandler:       errors.NewErrorHandler(deps.Logger),
		snapshot: models.Snapshot{
			Message:   models.NoMessage(),
			Phase:     models.PhaseIdle,
			UpdatedAt: time.Now(),
		},
		subs: make(map[int64]chan models.Snapshot),
	}
}

// Snapshot 返回当前状态快照副本
func (c *Controller) Snapshot() models.Snapshot {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.snapshot
}

// Subscribe 订阅快照更新
//
// 返回订阅ID与接收通道。通道有缓冲，消费不及时时丢弃中间
// 快照（订阅者总能从Snapshot()读到最新状态）。
func (c *Controller) Subscribe() (int64, <-chan models.Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSub++
	id := c.nextSub
	ch := make(chan models.Snapshot, 16)
	c.subs[id] = ch
	return id, ch
}

// Unsubscribe 取消订阅
func (c *Controller) Unsubscribe(id int64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

// DismissMessage 显式关闭当前临时消息
func (c *Controller) DismissMessage() {
	c.stateMu.Lock()
	c.snapshot.Message = models.NoMessage()
	c.snapshot.UpdatedAt = time.Now()
	snap := c.snapshot
	c.stateMu.Unlock()

	c.notify(snap)
}

// RestoreSelection 恢复上次会话选中的合约
func (c *Controller) RestoreSelection(ctx context.Context) error {
	if c.deps.Store == nil {
		return nil
	}
	addr := c.deps.Store.SelectedContract()
	if addr == "" {
		return nil
	}
	c.deps.Logger.Infof("恢复上次选中的合约: %s", addr)
	return c.SelectContract(ctx, addr)
}

// publish 更新快照并通知订阅者，mutate在持有状态锁时执行
func (c *Controller) publish(mutate func(s *models.Snapshot)) {
	c.stateMu.Lock()
	mutate(&c.snapshot)
	c.snapshot.UpdatedAt = time.Now()
	snap := c.snapshot
	c.stateMu.Unlock()

	c.notify(snap)
}

// notify 向所有订阅者投递快照副本（不阻塞）
func (c *Controller) notify(snap models.Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// 订阅者消费不及时，丢弃该次快照
		}
	}
}

// setPhase 更新在途操作阶段
func (c *Controller) setPhase(phase models.ActionPhase) {
	c.publish(func(s *models.Snapshot) {
		s.Phase = phase
	})
}

// failWith 记录错误、设置临时错误消息并回到Idle
func (c *Controller) failWith(err error) error {
	// 统一经过错误处理器：记录统计、检查阈值并按策略输出日志
	_ = c.errHandler.HandleError(context.Background(), err)

	c.publish(func(s *models.Snapshot) {
		s.Phase = models.PhaseIdle
		s.Message = models.TransientMessage{Kind: models.MessageError, Text: err.Error()}
	})

	c.emitEvent(models.EventOperationFailed, func(ev *models.SessionEvent) {
		ev.Detail = err.Error()
	})

	return err
}

// confirmWith 设置成功确认消息并回到Idle
func (c *Controller) confirmWith(text string) {
	c.publish(func(s *models.Snapshot) {
		s.Phase = models.PhaseIdle
		s.Message = models.TransientMessage{Kind: models.MessageConfirmation, Text: text}
	})
}

// emitEvent 发布会话事件（失败只记录）
func (c *Controller) emitEvent(kind models.EventKind, fill func(ev *models.SessionEvent)) {
	if c.deps.Events == nil {
		return
	}

	c.stateMu.RLock()
	ev := models.SessionEvent{
		Kind:       kind,
		Generation: c.generation,
		Contract:   c.snapshot.ContractAddress,
		Identity:   c.snapshot.Identity,
		Timestamp:  time.Now(),
	}
	c.stateMu.RUnlock()

	if fill != nil {
		fill(&ev)
	}

	if err := c.deps.Events.Publish(&ev); err != nil {
		c.deps.Logger.Warnf("会话事件发布失败 (kind=%s): %v", kind, err)
	}
}

// logOperation 记录链上操作日志，结构化日志器不可用时退回logrus
func (c *Controller) logOperation(contract, opHash, message string) {
	if c.structuredLogger != nil {
		logging.NewOperationLogger(c.structuredLogger, contract, opHash).Info(message)
		return
	}
	c.deps.Logger.Infof("[%s][%s] %s", contract, opHash, message)
}

// currentGeneration 读取当前代号
func (c *Controller) currentGeneration() int64 {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.generation
}

// stale 判断代号是否已过期
func (c *Controller) stale(gen int64) bool {
	return c.currentGeneration() != gen
}
