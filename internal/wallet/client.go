package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"minidao/internal/errors"
	"minidao/pkg/models"
)

// Client 钱包桥接服务客户端
//
// 桥接服务持有密钥并负责签名/注入；本客户端只转发意图。
// 授权请求不设超时：等待用户在钱包侧做出决定是预期行为。
type Client struct {
	http    *resty.Client
	untimed *resty.Client // 授权请求专用：等待用户确认可能任意久
	logger  *logrus.Logger
}

// ClientConfig 钱包客户端配置
type ClientConfig struct {
	BridgeURL string        `mapstructure:"bridge_url"`
	Timeout   time.Duration `mapstructure:"timeout"` // 仅作用于非授权请求
}

// NewClient 创建钱包桥接客户端
func NewClient(cfg *ClientConfig, logger *logrus.Logger) (*Client, error) {
	if cfg == nil || cfg.BridgeURL == "" {
		return nil, errors.NewDaoError(errors.ErrorTypeConfig, errors.SeverityCritical,
			"WALLET_BRIDGE_URL_MISSING", "钱包桥接服务URL未配置")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	baseURL := strings.TrimRight(cfg.BridgeURL, "/")

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	// 授权请求不设超时
	untimed := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	logger.Infof("钱包桥接客户端已初始化: %s", cfg.BridgeURL)

	return &Client{http: http, untimed: untimed, logger: logger}, nil
}

// RequestPermissions 为指定网络请求授权
func (c *Client) RequestPermissions(ctx context.Context, network string) (string, error) {
	var result struct {
		Address string `json:"address"`
	}

	resp, err := c.untimed.R().
		SetContext(ctx).
		SetBody(map[string]string{"network": network}).
		SetResult(&result).
		Post("/v1/permissions")
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeWallet, errors.SeverityMedium,
			"PERMISSION_REQUEST_FAILED", "钱包授权请求失败")
	}
	if resp.IsError() {
		return "", errors.WrapError(
			fmt.Errorf("钱包桥接返回状态 %d: %s", resp.StatusCode(), resp.String()),
			errors.ErrorTypeWallet, errors.SeverityMedium,
			"PERMISSION_DENIED", "钱包授权被拒绝")
	}

	c.logger.Infof("钱包授权成功: %s", result.Address)
	return result.Address, nil
}

// ActiveAddress 返回当前活跃账户地址
func (c *Client) ActiveAddress(ctx context.Context) (string, error) {
	var result struct {
		Address string `json:"address"`
	}

	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get("/v1/account")
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeWallet, errors.SeverityLow,
			"ACTIVE_ACCOUNT_FAILED", "活跃账户查询失败")
	}
	if resp.IsError() {
		return "", errors.WrapError(
			fmt.Errorf("钱包桥接返回状态 %d", resp.StatusCode()),
			errors.ErrorTypeWallet, errors.SeverityLow,
			"ACTIVE_ACCOUNT_FAILED", "活跃账户查询失败")
	}

	return result.Address, nil
}

// ClearActiveAccount 清除活跃账户
func (c *Client) ClearActiveAccount(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Post("/v1/account/clear")
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeWallet, errors.SeverityLow,
			"CLEAR_ACCOUNT_FAILED", "清除活跃账户失败")
	}
	if resp.IsError() {
		return errors.WrapError(
			fmt.Errorf("钱包桥接返回状态 %d", resp.StatusCode()),
			errors.ErrorTypeWallet, errors.SeverityLow,
			"CLEAR_ACCOUNT_FAILED", "清除活跃账户失败")
	}
	return nil
}

// At 解析目标合约并返回调用句柄
func (c *Client) At(ctx context.Context, contract string) (CallHandle, error) {
	// 桥接侧校验合约存在性与入口点表
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"contract": contract}).
		Post("/v1/contract/resolve")
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeWallet, errors.SeverityMedium,
			"CONTRACT_RESOLVE_FAILED", "合约解析失败").WithContract(contract)
	}
	if resp.IsError() {
		return nil, errors.WrapError(
			fmt.Errorf("钱包桥接返回状态 %d: %s", resp.StatusCode(), resp.String()),
			errors.ErrorTypeWallet, errors.SeverityMedium,
			"CONTRACT_RESOLVE_FAILED", "合约解析失败").WithContract(contract)
	}

	return &callHandle{client: c, contract: contract}, nil
}

// Originate 提交合约部署操作
func (c *Client) Originate(ctx context.Context, origination Origination) (*models.OperationHandle, error) {
	var result struct {
		OpHash string `json:"op_hash"`
		Level  int64  `json:"level"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(origination).
		SetResult(&result).
		Post("/v1/originate")
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeOrigination, errors.SeverityHigh,
			"ORIGINATION_FAILED", "合约部署提交失败")
	}
	if resp.IsError() {
		return nil, errors.WrapError(
			fmt.Errorf("钱包桥接返回状态 %d: %s", resp.StatusCode(), resp.String()),
			errors.ErrorTypeOrigination, errors.SeverityHigh,
			"ORIGINATION_FAILED", "合约部署提交失败")
	}

	c.logger.Infof("部署操作已提交: %s", result.OpHash)
	return &models.OperationHandle{Hash: result.OpHash, Level: result.Level}, nil
}

// callHandle 合约调用句柄实现
type callHandle struct {
	client   *Client
	contract string
}

// Address 句柄指向的合约地址
func (h *callHandle) Address() string {
	return h.contract
}

// Send 调用指定入口点
func (h *callHandle) Send(ctx context.Context, entrypoint string, args json.RawMessage) (*models.OperationHandle, error) {
	var result struct {
		OpHash string `json:"op_hash"`
		Level  int64  `json:"level"`
	}

	resp, err := h.client.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"contract":   h.contract,
			"entrypoint": entrypoint,
			"args":       args,
		}).
		SetResult(&result).
		Post("/v1/contract/call")
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeSubmission, errors.SeverityHigh,
			"SUBMISSION_FAILED", "链上操作提交失败").WithContract(h.contract)
	}
	if resp.IsError() {
		return nil, errors.WrapError(
			fmt.Errorf("钱包桥接返回状态 %d: %s", resp.StatusCode(), resp.String()),
			errors.ErrorTypeSubmission, errors.SeverityHigh,
			"SUBMISSION_FAILED", "链上操作提交失败").WithContract(h.contract)
	}

	h.client.logger.Infof("操作已提交: contract=%s entrypoint=%s op=%s",
		h.contract, entrypoint, result.OpHash)
	return &models.OperationHandle{Hash: result.OpHash, Level: result.Level}, nil
}
