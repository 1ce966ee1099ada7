package wallet

import (
	"context"

	"github.com/sirupsen/logrus"

	"minidao/internal/chain"
	"minidao/internal/errors"
	"minidao/internal/retry"
	"minidao/pkg/models"
)

// Confirmer 操作确认等待器
//
// 通过轮询索引器等待操作收录。轮询采用带抖动的退避，
// 耗尽后报告确认错误；确认错误不代表操作失败，
// 只代表在允许的窗口内没有观察到收录。
type Confirmer struct {
	query   chain.Query
	logger  *logrus.Logger
	retrier *retry.Retrier
}

// NewConfirmer 创建确认等待器
func NewConfirmer(query chain.Query, logger *logrus.Logger) *Confirmer {
	return &Confirmer{
		query:   query,
		logger:  logger,
		retrier: retry.NewRetrier(retry.ConfirmationPollConfig, logger),
	}
}

// AwaitConfirmation 等待操作收录
//
// count为需要的确认数；当前实现等待一次收录即返回
// （count保留在签名中与钱包接口对齐）。
func (c *Confirmer) AwaitConfirmation(ctx context.Context, handle *models.OperationHandle, count int) (*chain.OperationStatus, error) {
	if handle == nil || handle.Hash == "" {
		return nil, errors.NewDaoError(errors.ErrorTypeConfirmation, errors.SeverityMedium,
			"NO_OPERATION_HANDLE", "缺少操作句柄")
	}

	var status *chain.OperationStatus

	err := c.retrier.Execute(ctx, "await_confirmation", func() error {
		s, err := c.query.GetOperationStatus(ctx, handle.Hash)
		if err != nil {
			return err
		}
		status = s
		return nil
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfirmation, errors.SeverityMedium,
			"CONFIRMATION_FAILED", "操作确认等待失败").WithOpHash(handle.Hash)
	}

	if !status.Applied() {
		return nil, errors.NewDaoError(errors.ErrorTypeConfirmation, errors.SeverityMedium,
			"OPERATION_NOT_APPLIED", "操作未成功收录: "+status.Status).WithOpHash(handle.Hash)
	}

	c.logger.Infof("操作已确认: %s (level=%d)", handle.Hash, status.Level)
	return status, nil
}
