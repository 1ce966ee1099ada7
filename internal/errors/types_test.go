package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDaoError(t *testing.T) {
	err := NewDaoError(ErrorTypeNetwork, SeverityHigh, "TEST_ERROR", "测试错误")

	assert.NotNil(t, err)
	assert.Equal(t, ErrorTypeNetwork, err.Type)
	assert.Equal(t, SeverityHigh, err.Severity)
	assert.Equal(t, "TEST_ERROR", err.Code)
	assert.Equal(t, "测试错误", err.Message)
	assert.True(t, err.Retryable) // 网络错误默认可重试
	assert.False(t, err.Timestamp.IsZero())
}

func TestWrapError(t *testing.T) {
	originalErr := errors.New("原始错误")
	wrappedErr := WrapError(originalErr, ErrorTypeSystem, SeverityMedium, "WRAPPED_ERROR", "包装错误")

	assert.NotNil(t, wrappedErr)
	assert.Equal(t, ErrorTypeSystem, wrappedErr.Type)
	assert.Equal(t, SeverityMedium, wrappedErr.Severity)
	assert.Equal(t, "WRAPPED_ERROR", wrappedErr.Code)
	assert.Equal(t, "包装错误", wrappedErr.Message)
	assert.Equal(t, originalErr, wrappedErr.Cause)
	assert.Contains(t, wrappedErr.Error(), "原始错误")
}

func TestDaoError_Error(t *testing.T) {
	// 测试没有原因的错误
	err := NewDaoError(ErrorTypeValidation, SeverityLow, "TEST_CODE", "测试消息")
	expected := "[TEST_CODE] 测试消息"
	assert.Equal(t, expected, err.Error())

	// 测试有原因的错误
	originalErr := errors.New("原始错误")
	wrappedErr := WrapError(originalErr, ErrorTypeRPC, SeverityLow, "TEST_CODE", "测试消息")
	expectedWithCause := "[TEST_CODE] 测试消息: 原始错误"
	assert.Equal(t, expectedWithCause, wrappedErr.Error())
}

func TestDaoError_Unwrap(t *testing.T) {
	originalErr := errors.New("原始错误")
	wrappedErr := WrapError(originalErr, ErrorTypeSystem, SeverityMedium, "WRAPPED", "包装")

	unwrapped := wrappedErr.Unwrap()
	assert.Equal(t, originalErr, unwrapped)

	// 测试没有原因的错误
	standaloneErr := NewDaoError(ErrorTypeValidation, SeverityLow, "STANDALONE", "独立错误")
	assert.Nil(t, standaloneErr.Unwrap())
}

func TestDaoError_IsRetryable(t *testing.T) {
	// 可重试的错误
	retryableErr := NewDaoError(ErrorTypeNetwork, SeverityMedium, "NETWORK_ERROR", "网络错误")
	assert.True(t, retryableErr.IsRetryable())

	// 不可重试的错误：校验失败重试没有意义
	nonRetryableErr := NewDaoError(ErrorTypeValidation, SeverityLow, "INVALID_INPUT", "输入无效")
	assert.False(t, nonRetryableErr.IsRetryable())

	// 提交失败不自动重试，由用户决定是否再次发起
	submissionErr := NewDaoError(ErrorTypeSubmission, SeverityHigh, "SUBMISSION_FAILED", "提交失败")
	assert.False(t, submissionErr.IsRetryable())
}

func TestDaoError_WithContext(t *testing.T) {
	err := NewDaoError(ErrorTypeRPC, SeverityMedium, "RPC_ERROR", "RPC错误")

	err.WithContext("indexer_url", "https://api.indexer.example")
	err.WithContext("attempt", 3)

	assert.NotNil(t, err.Context)
	assert.Equal(t, "https://api.indexer.example", err.Context["indexer_url"])
	assert.Equal(t, 3, err.Context["attempt"])
}

func TestDaoError_WithContract(t *testing.T) {
	err := NewDaoError(ErrorTypeRPC, SeverityMedium, "STORAGE_FETCH_FAILED", "存储获取失败")

	err.WithContract("KT1QuofAgnsWffHzLA7D78rxytJruGHDe7XG")

	assert.NotNil(t, err.Contract)
	assert.Equal(t, "KT1QuofAgnsWffHzLA7D78rxytJruGHDe7XG", *err.Contract)
}

func TestDaoError_WithOpHash(t *testing.T) {
	err := NewDaoError(ErrorTypeConfirmation, SeverityMedium, "CONFIRMATION_FAILED", "确认失败")

	opHash := "ooYvB4bbYyfb6bLGmDm6PhsF6rrqu9HBKAQF1KpwcqGa1zoZWrn"
	err.WithOpHash(opHash)

	assert.NotNil(t, err.OpHash)
	assert.Equal(t, opHash, *err.OpHash)
}

func TestDaoError_WithProposalID(t *testing.T) {
	err := NewDaoError(ErrorTypeSubmission, SeverityHigh, "SUBMISSION_FAILED", "提交失败")

	err.WithProposalID(5)

	assert.NotNil(t, err.ProposalID)
	assert.Equal(t, int64(5), *err.ProposalID)
}

func TestDetermineRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeConnection, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeRPC, true},
		{ErrorTypeKafka, true},
		{ErrorTypeConfirmation, true},
		{ErrorTypeValidation, false},
		{ErrorTypeSubmission, false},
		{ErrorTypeUpload, false},
		{ErrorTypeConfig, false},
		{ErrorTypeStore, false},
	}

	for _, tt := range tests {
		result := determineRetryable(tt.errorType)
		assert.Equal(t, tt.expected, result,
			"错误类型 %s 的可重试判断不符合预期", tt.errorType.String())
	}
}

func TestErrorTypePredicates(t *testing.T) {
	validationErr := NewValidationError("INVALID_ADDRESS", "地址格式无效")
	assert.True(t, IsValidation(validationErr))
	assert.False(t, IsSubmission(validationErr))

	submissionErr := NewDaoError(ErrorTypeSubmission, SeverityHigh, "SUBMISSION_FAILED", "提交失败")
	assert.True(t, IsSubmission(submissionErr))
	assert.False(t, IsValidation(submissionErr))

	confirmationErr := NewDaoError(ErrorTypeConfirmation, SeverityMedium, "CONFIRMATION_FAILED", "确认失败")
	assert.True(t, IsConfirmation(confirmationErr))

	uploadErr := NewDaoError(ErrorTypeUpload, SeverityMedium, "UPLOAD_FAILED", "上传失败")
	assert.True(t, IsUpload(uploadErr))

	// 错误链中间有普通包装时仍能识别
	wrapped := fmt.Errorf("外层: %w", validationErr)
	assert.True(t, IsValidation(wrapped))

	// 普通错误不属于任何类型
	assert.False(t, IsValidation(errors.New("普通错误")))
	assert.False(t, IsValidation(nil))
}

func TestErrorStats_RecordError(t *testing.T) {
	stats := NewErrorStats()

	err1 := NewDaoError(ErrorTypeValidation, SeverityLow, "E1", "错误1")
	err1.Component = "session"
	err2 := NewDaoError(ErrorTypeSubmission, SeverityHigh, "E2", "错误2")
	err2.Component = "wallet"

	stats.RecordError(err1)
	stats.RecordError(err2)

	assert.Equal(t, 2, stats.TotalErrors)
	assert.Equal(t, 1, stats.ErrorsByType[ErrorTypeValidation])
	assert.Equal(t, 1, stats.ErrorsByType[ErrorTypeSubmission])
	assert.Equal(t, 1, stats.ErrorsByComponent["session"])
	assert.Equal(t, err2, stats.LastError)
	assert.Len(t, stats.RecentErrors, 2)
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "Validation", ErrorTypeValidation.String())
	assert.Equal(t, "Submission", ErrorTypeSubmission.String())
	assert.Equal(t, "Confirmation", ErrorTypeConfirmation.String())
	assert.Equal(t, "Upload", ErrorTypeUpload.String())
	assert.Equal(t, "Unknown(999)", ErrorType(999).String())
}
