package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"minidao/internal/errors"
	"minidao/internal/retry"
)

// Client 索引器查询客户端
//
// 通过索引器REST接口实现Query。所有方法都是幂等读取，
// 允许按网络重试策略重试。
type Client struct {
	http    *resty.Client
	logger  *logrus.Logger
	retrier *retry.Retrier
}

// ClientConfig 查询客户端配置
type ClientConfig struct {
	IndexerURL string        `mapstructure:"indexer_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// NewClient 创建索引器查询客户端
func NewClient(cfg *ClientConfig, logger *logrus.Logger) (*Client, error) {
	if cfg == nil || cfg.IndexerURL == "" {
		return nil, errors.NewDaoError(errors.ErrorTypeConfig, errors.SeverityCritical,
			"INDEXER_URL_MISSING", "索引器URL未配置")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.IndexerURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	logger.Infof("索引器查询客户端已初始化: %s", cfg.IndexerURL)

	return &Client{
		http:    http,
		logger:  logger,
		retrier: retry.NewRetrier(retry.NetworkRetryConfig, logger),
	}, nil
}

// storageWire 索引器返回的合约存储（数值字段可能渲染为字符串）
type storageWire struct {
	Users              []string    `json:"users"`
	MinimumVotes       json.Number `json:"minimum_votes"`
	ExpirationTimeDays json.Number `json:"expiration_time_days"`
	Proposals          json.Number `json:"proposals"`
	Votes              json.Number `json:"votes"`
	Counter            json.Number `json:"counter"`
}

// GetStorage 获取合约存储记录
func (c *Client) GetStorage(ctx context.Context, address string) (*StorageRecord, error) {
	var wire storageWire

	err := c.retrier.Execute(ctx, "get_storage", func() error {
		return c.getJSON(ctx, fmt.Sprintf("/v1/contracts/%s/storage", address), nil, &wire)
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeRPC, errors.SeverityMedium,
			"STORAGE_FETCH_FAILED", "合约存储获取失败").WithContract(address)
	}

	record := &StorageRecord{Users: wire.Users}
	for _, f := range []struct {
		dst *int64
		src json.Number
	}{
		{&record.MinimumVotes, wire.MinimumVotes},
		{&record.ExpirationTimeDays, wire.ExpirationTimeDays},
		{&record.ProposalsMapID, wire.Proposals},
		{&record.VotesMapID, wire.Votes},
		{&record.Counter, wire.Counter},
	} {
		if f.src == "" {
			continue
		}
		v, err := f.src.Int64()
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
				"STORAGE_DECODE_FAILED", "合约存储数值字段解析失败").WithContract(address)
		}
		*f.dst = v
	}

	return record, nil
}

// GetBalance 获取账户余额（mutez）
func (c *Client) GetBalance(ctx context.Context, address string) (int64, error) {
	var balance int64

	err := c.retrier.Execute(ctx, "get_balance", func() error {
		resp, err := c.http.R().SetContext(ctx).Get(fmt.Sprintf("/v1/accounts/%s/balance", address))
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("索引器返回状态 %d: %s", resp.StatusCode(), resp.String())
		}
		return json.Unmarshal(resp.Body(), &balance)
	})
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrorTypeRPC, errors.SeverityMedium,
			"BALANCE_FETCH_FAILED", "余额获取失败").WithContract(address)
	}

	return balance, nil
}

// GetBigMapEntries 获取bigmap的有序条目列表
func (c *Client) GetBigMapEntries(ctx context.Context, bigMapID int64) ([]BigMapEntry, error) {
	var entries []BigMapEntry

	err := c.retrier.Execute(ctx, "get_bigmap_entries", func() error {
		return c.getJSON(ctx, fmt.Sprintf("/v1/bigmaps/%d/keys", bigMapID), map[string]string{
			"active": "true",
			"sort":   "id",
			"limit":  "10000",
		}, &entries)
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeRPC, errors.SeverityMedium,
			"BIGMAP_FETCH_FAILED", "bigmap条目获取失败").WithContext("bigmap_id", bigMapID)
	}

	return entries, nil
}

// GetSimilarContracts 发现同代码合约的其他部署
func (c *Client) GetSimilarContracts(ctx context.Context, address string) ([]string, error) {
	var accounts []struct {
		Address string `json:"address"`
	}

	err := c.retrier.Execute(ctx, "get_similar_contracts", func() error {
		return c.getJSON(ctx, fmt.Sprintf("/v1/contracts/%s/same", address), map[string]string{
			"select": "address",
			"limit":  "100",
		}, &accounts)
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeRPC, errors.SeverityLow,
			"SIMILAR_FETCH_FAILED", "相似合约发现失败").WithContract(address)
	}

	addresses := make([]string, 0, len(accounts))
	for _, a := range accounts {
		addresses = append(addresses, a.Address)
	}
	return addresses, nil
}

// ResolveAliases 批量解析地址别名
func (c *Client) ResolveAliases(ctx context.Context, addresses []string) (map[string]string, error) {
	aliases := make(map[string]string, len(addresses))
	if len(addresses) == 0 {
		return aliases, nil
	}

	var accounts []struct {
		Address string `json:"address"`
		Alias   string `json:"alias"`
	}

	err := c.retrier.Execute(ctx, "resolve_aliases", func() error {
		return c.getJSON(ctx, "/v1/accounts", map[string]string{
			"address.in": strings.Join(addresses, ","),
			"select":     "address,alias",
		}, &accounts)
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeRPC, errors.SeverityLow,
			"ALIAS_RESOLVE_FAILED", "别名解析失败")
	}

	for _, a := range accounts {
		if a.Alias != "" {
			aliases[a.Address] = a.Alias
		}
	}
	return aliases, nil
}

// GetOperationStatus 查询操作收录状态
//
// 未收录的操作返回"operation not found"错误，
// 该错误被重试判定视为瞬时，供确认轮询继续等待。
func (c *Client) GetOperationStatus(ctx context.Context, opHash string) (*OperationStatus, error) {
	var ops []struct {
		Hash               string `json:"hash"`
		Status             string `json:"status"`
		Level              int64  `json:"level"`
		OriginatedContract struct {
			Address string `json:"address"`
		} `json:"originatedContract"`
	}

	if err := c.getJSON(ctx, fmt.Sprintf("/v1/operations/%s", opHash), nil, &ops); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeRPC, errors.SeverityMedium,
			"OPERATION_STATUS_FAILED", "操作状态查询失败").WithOpHash(opHash)
	}

	if len(ops) == 0 {
		return nil, errors.WrapError(
			fmt.Errorf("operation not found: %s", opHash),
			errors.ErrorTypeRPC, errors.SeverityLow,
			"OPERATION_NOT_FOUND", "操作尚未被索引").WithOpHash(opHash)
	}

	status := &OperationStatus{
		Hash:   ops[0].Hash,
		Status: ops[0].Status,
		Level:  ops[0].Level,
	}
	// 部署操作会携带新合约地址
	for _, op := range ops {
		if op.OriginatedContract.Address != "" {
			status.OriginatedContract = op.OriginatedContract.Address
			break
		}
	}
	return status, nil
}

// getJSON 执行GET请求并解码JSON响应
func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("索引器返回状态 %d: %s", resp.StatusCode(), resp.String())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("响应解码失败: %w", err)
	}
	return nil
}
