package errors

import (
	"fmt"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 客户端校验错误（未触达任何协作方）
	ErrorTypeValidation ErrorType = iota

	// 链上操作错误
	ErrorTypeSubmission   // 操作发送被拒绝或失败
	ErrorTypeConfirmation // 操作已发送但确认等待失败
	ErrorTypeOrigination  // 合约部署失败

	// 协作方错误
	ErrorTypeUpload // 内容寻址上传失败
	ErrorTypeWallet // 钱包桥接服务错误
	ErrorTypeRPC    // 链查询/索引器错误

	// 网络相关错误
	ErrorTypeNetwork
	ErrorTypeConnection
	ErrorTypeTimeout

	// 系统相关错误
	ErrorTypeSerialization
	ErrorTypeStore // 本地持久化(bbolt)错误
	ErrorTypeConfig
	ErrorTypeKafka
	ErrorTypeSystem
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// DaoError 自定义错误类型
type DaoError struct {
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    interface{}            `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"cause,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Component  string                 `json:"component"`
	Contract   *string                `json:"contract,omitempty"`
	OpHash     *string                `json:"op_hash,omitempty"`
	ProposalID *int64                 `json:"proposal_id,omitempty"`
}

// Error 实现error接口
func (e *DaoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *DaoError) Unwrap() error {
	return e.Cause
}

// IsRetryable 判断是否可重试
func (e *DaoError) IsRetryable() bool {
	return e.Retryable
}

// WithContext 添加上下文信息
func (e *DaoError) WithContext(key string, value interface{}) *DaoError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithContract 添加合约地址
func (e *DaoError) WithContract(address string) *DaoError {
	e.Contract = &address
	return e
}

// WithOpHash 添加操作哈希
func (e *DaoError) WithOpHash(hash string) *DaoError {
	e.OpHash = &hash
	return e
}

// WithProposalID 添加提案ID
func (e *DaoError) WithProposalID(id int64) *DaoError {
	e.ProposalID = &id
	return e
}

// NewDaoError 创建新的错误
func NewDaoError(errorType ErrorType, severity ErrorSeverity, code, message string) *DaoError {
	return &DaoError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(errorType),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *DaoError {
	return &DaoError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Retryable: determineRetryable(errorType),
	}
}

// NewValidationError 创建校验错误（同步检出，不触达网络）
func NewValidationError(code, message string) *DaoError {
	return NewDaoError(ErrorTypeValidation, SeverityLow, code, message)
}

// determineRetryable 根据错误类型判断是否可重试
//
// 注意：可重试仅表示错误本身是瞬时的；控制器对状态变更操作
// 从不自动重试，重试策略只作用于幂等的读取与确认轮询。
func determineRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeConnection, ErrorTypeTimeout:
		return true
	case ErrorTypeRPC, ErrorTypeKafka:
		return true
	case ErrorTypeConfirmation:
		// 确认等待失败不代表操作失败，下一轮轮询可能命中
		return true
	default:
		return false
	}
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsSubmission 判断是否为提交错误
func IsSubmission(err error) bool {
	return hasType(err, ErrorTypeSubmission)
}

// IsConfirmation 判断是否为确认错误
func IsConfirmation(err error) bool {
	return hasType(err, ErrorTypeConfirmation)
}

// IsUpload 判断是否为上传错误
func IsUpload(err error) bool {
	return hasType(err, ErrorTypeUpload)
}

// hasType 判断错误链中是否存在指定类型的DaoError
func hasType(err error, t ErrorType) bool {
	for err != nil {
		if de, ok := err.(*DaoError); ok {
			return de.Type == t
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// 预定义错误
var (
	// 校验错误
	ErrInvalidAddress = NewDaoError(
		ErrorTypeValidation,
		SeverityLow,
		"INVALID_ADDRESS",
		"地址格式无效",
	)

	ErrNotContractAddress = NewDaoError(
		ErrorTypeValidation,
		SeverityLow,
		"NOT_CONTRACT_ADDRESS",
		"地址不是合约地址",
	)

	// 链上操作错误
	ErrSubmissionFailed = NewDaoError(
		ErrorTypeSubmission,
		SeverityHigh,
		"SUBMISSION_FAILED",
		"链上操作提交失败",
	)

	ErrConfirmationFailed = NewDaoError(
		ErrorTypeConfirmation,
		SeverityMedium,
		"CONFIRMATION_FAILED",
		"操作确认等待失败",
	)

	ErrOriginationFailed = NewDaoError(
		ErrorTypeOrigination,
		SeverityHigh,
		"ORIGINATION_FAILED",
		"合约部署失败",
	)

	// 协作方错误
	ErrUploadFailed = NewDaoError(
		ErrorTypeUpload,
		SeverityMedium,
		"UPLOAD_FAILED",
		"内容寻址上传失败",
	)

	ErrWalletUnavailable = NewDaoError(
		ErrorTypeWallet,
		SeverityHigh,
		"WALLET_UNAVAILABLE",
		"钱包桥接服务不可用",
	)

	ErrStorageFetchFailed = NewDaoError(
		ErrorTypeRPC,
		SeverityMedium,
		"STORAGE_FETCH_FAILED",
		"合约存储获取失败",
	)

	// 网络错误
	ErrNetworkTimeout = NewDaoError(
		ErrorTypeTimeout,
		SeverityMedium,
		"NETWORK_TIMEOUT",
		"网络请求超时",
	)

	ErrConnectionFailed = NewDaoError(
		ErrorTypeConnection,
		SeverityHigh,
		"CONNECTION_FAILED",
		"连接失败",
	)

	// 系统错误
	ErrSerializationFailed = NewDaoError(
		ErrorTypeSerialization,
		SeverityMedium,
		"SERIALIZATION_FAILED",
		"数据序列化失败",
	)

	ErrStoreFailed = NewDaoError(
		ErrorTypeStore,
		SeverityHigh,
		"STORE_FAILED",
		"本地状态持久化失败",
	)

	ErrConfigInvalid = NewDaoError(
		ErrorTypeConfig,
		SeverityCritical,
		"CONFIG_INVALID",
		"配置无效",
	)

	ErrKafkaProduceFailed = NewDaoError(
		ErrorTypeKafka,
		SeverityHigh,
		"KAFKA_PRODUCE_FAILED",
		"Kafka消息发送失败",
	)
)

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeValidation:    "Validation",
	ErrorTypeSubmission:    "Submission",
	ErrorTypeConfirmation:  "Confirmation",
	ErrorTypeOrigination:   "Origination",
	ErrorTypeUpload:        "Upload",
	ErrorTypeWallet:        "Wallet",
	ErrorTypeRPC:           "RPC",
	ErrorTypeNetwork:       "Network",
	ErrorTypeConnection:    "Connection",
	ErrorTypeTimeout:       "Timeout",
	ErrorTypeSerialization: "Serialization",
	ErrorTypeStore:         "Store",
	ErrorTypeConfig:        "Config",
	ErrorTypeKafka:         "Kafka",
	ErrorTypeSystem:        "System",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors       int                   `json:"total_errors"`
	ErrorsByType      map[ErrorType]int     `json:"errors_by_type"`
	ErrorsBySeverity  map[ErrorSeverity]int `json:"errors_by_severity"`
	ErrorsByComponent map[string]int        `json:"errors_by_component"`
	RecentErrors      []*DaoError           `json:"recent_errors"`
	LastError         *DaoError             `json:"last_error"`
	LastErrorTime     time.Time             `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByType:      make(map[ErrorType]int),
		ErrorsBySeverity:  make(map[ErrorSeverity]int),
		ErrorsByComponent: make(map[string]int),
		RecentErrors:      make([]*DaoError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *DaoError) {
	es.TotalErrors++
	es.ErrorsByType[err.Type]++
	es.ErrorsBySeverity[err.Severity]++
	if err.Component != "" {
		es.ErrorsByComponent[err.Component]++
	}

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	// 保留最近100个错误
	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > 100 {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// GetErrorRate 获取错误率（错误/小时）
func (es *ErrorStats) GetErrorRate(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-duration)
	recentCount := 0

	for _, err := range es.RecentErrors {
		if err.Timestamp.After(cutoff) {
			recentCount++
		}
	}

	hours := duration.Hours()
	if hours == 0 {
		return float64(recentCount)
	}

	return float64(recentCount) / hours
}
