package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/session.db"

	// 存储桶名称
	SessionBucket = "session"
	StatsBucket   = "stats"

	// 会话键
	SelectedContractKey = "selected_contract"
	RecentContractsKey  = "recent_contracts"
	LastUpdateTimeKey   = "last_update_time"

	// 最近合约列表上限
	maxRecentContracts = 10
)

// SessionRecord 持久化的会话记录
type SessionRecord struct {
	SelectedContract string    `json:"selected_contract"`
	RecentContracts  []string  `json:"recent_contracts"`
	LastUpdateTime   time.Time `json:"last_update_time"`
}

// Store 会话持久化存储
//
// 记录最近一次选中的合约，进程重启后恢复会话上下文。
// 钱包连接状态不持久化，由钱包桥接侧维护。
type Store struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	mu     sync.RWMutex

	// 内存缓存
	cache *SessionRecord
}

// NewStore 创建会话存储
func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "创建数据目录失败")
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "打开会话数据库失败")
	}

	store := &Store{
		db:     db,
		logger: logger,
		dbPath: dbPath,
		cache:  &SessionRecord{},
	}

	if err := store.initDB(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "初始化数据库失败")
	}

	if err := store.loadCache(); err != nil {
		logger.Warnf("加载会话缓存失败: %v", err)
	}

	logger.Infof("会话存储已初始化，数据库路径: %s", dbPath)
	return store, nil
}

// initDB 初始化数据库结构
func (s *Store) initDB() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(SessionBucket)); err != nil {
			return errors.Wrap(err, "创建会话存储桶失败")
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(StatsBucket)); err != nil {
			return errors.Wrap(err, "创建统计存储桶失败")
		}
		return nil
	})
}

// loadCache 加载缓存
func (s *Store) loadCache() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(SessionBucket))
		if bucket == nil {
			return nil
		}

		if data := bucket.Get([]byte(SelectedContractKey)); data != nil {
			s.cache.SelectedContract = string(data)
		}

		if data := bucket.Get([]byte(RecentContractsKey)); data != nil {
			var recents []string
			if err := json.Unmarshal(data, &recents); err == nil {
				s.cache.RecentContracts = recents
			}
		}

		if data := bucket.Get([]byte(LastUpdateTimeKey)); data != nil {
			var t time.Time
			if err := json.Unmarshal(data, &t); err == nil {
				s.cache.LastUpdateTime = t
			}
		}

		return nil
	})
}

// SelectedContract 获取最近选中的合约地址，从未选择时为空串
func (s *Store) SelectedContract() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.SelectedContract
}

// RecentContracts 获取最近使用过的合约地址（新在前）
func (s *Store) RecentContracts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recents := make([]string, len(s.cache.RecentContracts))
	copy(recents, s.cache.RecentContracts)
	return recents
}

// SaveSelectedContract 保存选中合约并更新最近列表
func (s *Store) SaveSelectedContract(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.cache.SelectedContract = address
	s.cache.LastUpdateTime = now
	s.cache.RecentContracts = pushRecent(s.cache.RecentContracts, address)

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(SessionBucket))
		if bucket == nil {
			return errors.New("会话存储桶不存在")
		}

		if err := bucket.Put([]byte(SelectedContractKey), []byte(address)); err != nil {
			return errors.Wrap(err, "保存选中合约失败")
		}

		if recentData, err := json.Marshal(s.cache.RecentContracts); err == nil {
			bucket.Put([]byte(RecentContractsKey), recentData)
		}

		if timeData, err := json.Marshal(now); err == nil {
			bucket.Put([]byte(LastUpdateTimeKey), timeData)
		}

		return nil
	})
}

// pushRecent 把地址移动/插入到最近列表首位
func pushRecent(recents []string, address string) []string {
	out := make([]string, 0, len(recents)+1)
	out = append(out, address)
	for _, r := range recents {
		if r != address {
			out = append(out, r)
		}
	}
	if len(out) > maxRecentContracts {
		out = out[:maxRecentContracts]
	}
	return out
}

// Reset 清空会话记录
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = &SessionRecord{}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(SessionBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			return bucket.Delete(k)
		})
	})
}

// GetDBPath 获取数据库路径
func (s *Store) GetDBPath() string {
	return s.dbPath
}

// GetStats 获取统计信息
func (s *Store) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"selected_contract": s.cache.SelectedContract,
		"recent_contracts":  len(s.cache.RecentContracts),
	}
	if !s.cache.LastUpdateTime.IsZero() {
		stats["last_update_time"] = s.cache.LastUpdateTime.Format(time.RFC3339)
	}
	return stats
}

// Close 关闭会话存储
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info("关闭会话存储")
		return s.db.Close()
	}
	return nil
}
