package validation

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minidao/internal/errors"
	"minidao/pkg/models"
)

const (
	user1    = "tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8LhKxZSx"
	user2    = "tz1gjaF81ZRRvdzjobyfVNsAeSC6PScjfQwN"
	user3    = "tz1faswCTDciRzE4oJ9jn2Vm2dvjeyA9fUzU"
	outsider = "tz1b7tUupMgCNw2cCLpKTkSD1NZzB5TkP2sv"
	contract = "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxton"
)

// newTestEnv 三个成员、100万mutez余额的测试环境
func newTestEnv() *Env {
	return &Env{
		Storage: &models.ContractStorage{
			Users:              []string{user1, user2, user3},
			MinimumVotes:       2,
			ExpirationTimeDays: 7,
			Proposals:          map[int64]*models.Proposal{},
			Votes:              map[string]bool{},
			Counter:            0,
		},
		Balance: 1_000_000,
	}
}

func newTestValidator() *Validator {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewValidator(logger)
}

func TestValidateContractAddress(t *testing.T) {
	v := newTestValidator()

	assert.NoError(t, v.ValidateContractAddress(contract))

	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"garbage", "hello"},
		{"implicit not contract", user1},
		{"broken checksum", "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxtoo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateContractAddress(tt.addr)
			assert.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestValidateProposal_Text(t *testing.T) {
	v := newTestValidator()
	env := newTestEnv()

	assert.NoError(t, v.ValidateProposal(models.TextPayload{Text: "升级提案说明"}, env))

	err := v.ValidateProposal(models.TextPayload{}, env)
	assert.True(t, errors.IsValidation(err))
}

func TestValidateProposal_TransferMutez(t *testing.T) {
	v := newTestValidator()
	env := newTestEnv()

	ok := models.TransferMutezPayload{Transfers: []models.MutezTransfer{
		{Amount: 400_000, Destination: user2},
		{Amount: 500_000, Destination: outsider},
	}}
	assert.NoError(t, v.ValidateProposal(ok, env))

	// 总额超过余额：必须在触网前被拒绝
	overBalance := models.TransferMutezPayload{Transfers: []models.MutezTransfer{
		{Amount: 600_000, Destination: user2},
		{Amount: 500_000, Destination: outsider},
	}}
	err := v.ValidateProposal(overBalance, env)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "超过合约余额")

	// 目标地址无效
	badDest := models.TransferMutezPayload{Transfers: []models.MutezTransfer{
		{Amount: 1, Destination: "nowhere"},
	}}
	assert.True(t, errors.IsValidation(v.ValidateProposal(badDest, env)))

	// 金额非正
	badAmount := models.TransferMutezPayload{Transfers: []models.MutezTransfer{
		{Amount: 0, Destination: user2},
	}}
	assert.True(t, errors.IsValidation(v.ValidateProposal(badAmount, env)))

	// 空列表
	assert.True(t, errors.IsValidation(
		v.ValidateProposal(models.TransferMutezPayload{}, env)))
}

func TestValidateProposal_TransferToken(t *testing.T) {
	v := newTestValidator()
	env := newTestEnv()

	ok := models.TransferTokenPayload{Transfers: []models.TokenTransfer{
		{TokenContract: contract, TokenID: 0, Amount: 10, Destination: user3},
	}}
	assert.NoError(t, v.ValidateProposal(ok, env))

	// 代币合约必须是KT1地址
	badToken := models.TransferTokenPayload{Transfers: []models.TokenTransfer{
		{TokenContract: user1, TokenID: 0, Amount: 10, Destination: user3},
	}}
	assert.True(t, errors.IsValidation(v.ValidateProposal(badToken, env)))

	badID := models.TransferTokenPayload{Transfers: []models.TokenTransfer{
		{TokenContract: contract, TokenID: -1, Amount: 10, Destination: user3},
	}}
	assert.True(t, errors.IsValidation(v.ValidateProposal(badID, env)))
}

func TestValidateProposal_MinimumVotes(t *testing.T) {
	v := newTestValidator()
	env := newTestEnv() // 3个成员

	assert.NoError(t, v.ValidateProposal(models.MinimumVotesPayload{MinimumVotes: 1}, env))
	assert.NoError(t, v.ValidateProposal(models.MinimumVotesPayload{MinimumVotes: 3}, env))

	// 下界：0不合法，错误消息需指明1..3的范围
	err := v.ValidateProposal(models.MinimumVotesPayload{MinimumVotes: 0}, env)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "1..3")

	// 上界：超过成员数
	err = v.ValidateProposal(models.MinimumVotesPayload{MinimumVotes: 4}, env)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "1..3")
}

func TestValidateProposal_ExpirationTime(t *testing.T) {
	v := newTestValidator()
	env := newTestEnv()

	assert.NoError(t, v.ValidateProposal(models.ExpirationTimePayload{ExpirationTimeDays: 14}, env))

	for _, bad := range []int64{0, -3} {
		err := v.ValidateProposal(models.ExpirationTimePayload{ExpirationTimeDays: bad}, env)
		assert.True(t, errors.IsValidation(err), "过期时间 %d 应被拒绝", bad)
	}
}

func TestValidateProposal_AddUser(t *testing.T) {
	v := newTestValidator()
	env := newTestEnv()

	assert.NoError(t, v.ValidateProposal(models.AddUserPayload{User: outsider}, env))

	// 已是成员
	err := v.ValidateProposal(models.AddUserPayload{User: user1}, env)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "已是当前成员")

	// 合约地址不能作为成员
	assert.True(t, errors.IsValidation(
		v.ValidateProposal(models.AddUserPayload{User: contract}, env)))

	// 无效地址
	assert.True(t, errors.IsValidation(
		v.ValidateProposal(models.AddUserPayload{User: "xyz"}, env)))
}

func TestValidateProposal_RemoveUser(t *testing.T) {
	v := newTestValidator()
	env := newTestEnv()

	assert.NoError(t, v.ValidateProposal(models.RemoveUserPayload{User: user2}, env))

	// 不是成员
	err := v.ValidateProposal(models.RemoveUserPayload{User: outsider}, env)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "不是当前成员")
}

func TestValidateProposal_Lambda(t *testing.T) {
	v := newTestValidator()
	env := newTestEnv()

	lambda := json.RawMessage(`[{"prim": "DROP"}, {"prim": "NIL", "args": [{"prim": "operation"}]}]`)
	assert.NoError(t, v.ValidateProposal(models.LambdaPayload{Lambda: lambda}, env))

	// 解析失败 → 校验错误，不触网
	broken := json.RawMessage(`{"prim": `)
	err := v.ValidateProposal(models.LambdaPayload{Lambda: broken}, env)
	assert.True(t, errors.IsValidation(err))
}

func TestValidateProposal_NoStorage(t *testing.T) {
	v := newTestValidator()

	err := v.ValidateProposal(models.TextPayload{Text: "x"}, nil)
	assert.True(t, errors.IsValidation(err))

	err = v.ValidateProposal(models.TextPayload{Text: "x"}, &Env{})
	assert.True(t, errors.IsValidation(err))
}

func TestValidateOrigination(t *testing.T) {
	v := newTestValidator()

	ok := models.OriginateParams{
		Name:               "team-dao",
		Users:              []string{user1, user2, user3},
		MinimumVotes:       2,
		ExpirationTimeDays: 7,
	}
	assert.NoError(t, v.ValidateOrigination(ok))

	tests := []struct {
		name   string
		mutate func(p *models.OriginateParams)
	}{
		{"no users", func(p *models.OriginateParams) { p.Users = nil }},
		{"invalid user", func(p *models.OriginateParams) { p.Users = []string{user1, "bad"} }},
		{"duplicate user", func(p *models.OriginateParams) { p.Users = []string{user1, user1} }},
		{"minimum votes zero", func(p *models.OriginateParams) { p.MinimumVotes = 0 }},
		{"minimum votes above count", func(p *models.OriginateParams) { p.MinimumVotes = 4 }},
		{"expiration zero", func(p *models.OriginateParams) { p.ExpirationTimeDays = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := ok
			params.Users = append([]string(nil), ok.Users...)
			tt.mutate(&params)
			err := v.ValidateOrigination(params)
			assert.Error(t, err)
			assert.True(t, errors.IsValidation(err), fmt.Sprintf("err=%v", err))
		})
	}
}
