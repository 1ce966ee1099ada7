package ipfs

import (
	"bytes"
	"context"
	"encoding/json"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/sirupsen/logrus"

	"minidao/internal/errors"
)

// Uploader IPFS上传器
//
// 上传后固定内容，保证节点不会回收。上传是带外操作，
// 不参与会话状态机的阶段流转。
type Uploader struct {
	sh     *shell.Shell
	logger *logrus.Logger
}

// Config IPFS上传器配置
type Config struct {
	Endpoint string `mapstructure:"endpoint"`
	Pin      bool   `mapstructure:"pin"`
}

// NewUploader 创建IPFS上传器
func NewUploader(cfg *Config, logger *logrus.Logger) (*Uploader, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, errors.NewDaoError(errors.ErrorTypeConfig, errors.SeverityCritical,
			"IPFS_ENDPOINT_MISSING", "IPFS节点地址未配置")
	}

	sh := shell.NewShell(cfg.Endpoint)
	logger.Infof("IPFS上传器已初始化: %s", cfg.Endpoint)

	return &Uploader{sh: sh, logger: logger}, nil
}

// UploadBytes 上传原始内容并返回CID
func (u *Uploader) UploadBytes(ctx context.Context, content []byte, pin bool) (string, error) {
	if len(content) == 0 {
		return "", errors.NewDaoError(errors.ErrorTypeValidation, errors.SeverityLow,
			"EMPTY_CONTENT", "上传内容为空")
	}

	cid, err := u.sh.Add(bytes.NewReader(content))
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeUpload, errors.SeverityMedium,
			"IPFS_ADD_FAILED", "IPFS内容上传失败")
	}

	if pin {
		if err := u.sh.Pin(cid); err != nil {
			return "", errors.WrapError(err, errors.ErrorTypeUpload, errors.SeverityMedium,
				"IPFS_PIN_FAILED", "IPFS内容固定失败").WithContext("cid", cid)
		}
	}

	u.logger.Infof("内容已上传至IPFS: %s (%d字节)", cid, len(content))
	return cid, nil
}

// UploadJSON 序列化对象并上传，返回CID
func (u *Uploader) UploadJSON(ctx context.Context, v interface{}, pin bool) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
			"METADATA_ENCODE_FAILED", "元数据序列化失败")
	}
	return u.UploadBytes(ctx, data, pin)
}

// URI 将CID转换为ipfs://形式的URI
func URI(cid string) string {
	return "ipfs://" + cid
}
