package validation

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"minidao/internal/address"
	"minidao/internal/errors"
	"minidao/internal/micheline"
	"minidao/pkg/models"
)

// Validator 提案/部署参数验证器
//
// 所有规则在任何网络调用之前执行；任何一条不通过都会产生
// 校验错误并阻止操作触达协作方。
type Validator struct {
	logger *logrus.Logger
	rules  map[models.ProposalKind]ProposalRule
}

// Env 规则执行环境：当前合约存储与余额的只读视图
type Env struct {
	Storage *models.ContractStorage
	Balance int64 // 单位: mutez
}

// ProposalRule 单个提案类型的验证规则
type ProposalRule interface {
	Kind() models.ProposalKind
	Validate(payload models.ProposalPayload, env *Env) error
}

// NewValidator 创建验证器
func NewValidator(logger *logrus.Logger) *Validator {
	v := &Validator{
		logger: logger,
		rules:  make(map[models.ProposalKind]ProposalRule),
	}

	// 注册默认验证规则
	v.registerDefaultRules()

	return v
}

// registerDefaultRules 注册默认验证规则
func (v *Validator) registerDefaultRules() {
	v.AddRule(textRule{})
	v.AddRule(transferMutezRule{})
	v.AddRule(transferTokenRule{})
	v.AddRule(minimumVotesRule{})
	v.AddRule(expirationTimeRule{})
	v.AddRule(addUserRule{})
	v.AddRule(removeUserRule{})
	v.AddRule(lambdaRule{})
}

// AddRule 添加验证规则
func (v *Validator) AddRule(rule ProposalRule) {
	v.rules[rule.Kind()] = rule
	v.logger.Debugf("已注册提案验证规则: %s", rule.Kind())
}

// ValidateContractAddress 验证合约地址
func (v *Validator) ValidateContractAddress(addr string) error {
	if addr == "" {
		return errors.NewValidationError("EMPTY_ADDRESS", "合约地址为空")
	}
	kind := address.KindOf(addr)
	if kind == address.KindUnknown {
		return errors.NewValidationError("INVALID_ADDRESS",
			fmt.Sprintf("地址格式无效: %s", addr))
	}
	if kind != address.KindContract {
		return errors.NewValidationError("NOT_CONTRACT_ADDRESS",
			fmt.Sprintf("地址不是合约地址(KT1): %s", addr))
	}
	return nil
}

// ValidateProposal 验证提案负载
func (v *Validator) ValidateProposal(payload models.ProposalPayload, env *Env) error {
	if payload == nil {
		return errors.NewValidationError("EMPTY_PAYLOAD", "提案负载为空")
	}
	if env == nil || env.Storage == nil {
		return errors.NewValidationError("NO_STORAGE", "合约存储尚未加载")
	}

	rule, exists := v.rules[payload.Kind()]
	if !exists {
		return errors.NewValidationError("UNKNOWN_KIND",
			fmt.Sprintf("未知的提案类型: %s", payload.Kind()))
	}

	if err := rule.Validate(payload, env); err != nil {
		v.logger.Debugf("提案验证未通过 (kind=%s): %v", payload.Kind(), err)
		return err
	}

	return nil
}

// ValidateOrigination 验证合约部署参数
func (v *Validator) ValidateOrigination(params models.OriginateParams) error {
	if len(params.Users) == 0 {
		return errors.NewValidationError("NO_USERS", "成员列表为空")
	}

	seen := make(map[string]bool, len(params.Users))
	for _, u := range params.Users {
		if !address.IsValid(u) {
			return errors.NewValidationError("INVALID_ADDRESS",
				fmt.Sprintf("成员地址格式无效: %s", u))
		}
		if seen[u] {
			return errors.NewValidationError("DUPLICATE_USER",
				fmt.Sprintf("成员地址重复: %s", u))
		}
		seen[u] = true
	}

	if params.MinimumVotes < 1 || params.MinimumVotes > int64(len(params.Users)) {
		return errors.NewValidationError("MINIMUM_VOTES_OUT_OF_RANGE",
			fmt.Sprintf("最小票数必须在 1..%d 范围内, 实际: %d",
				len(params.Users), params.MinimumVotes))
	}

	if params.ExpirationTimeDays <= 0 {
		return errors.NewValidationError("EXPIRATION_TIME_OUT_OF_RANGE",
			fmt.Sprintf("过期时间必须大于0天, 实际: %d", params.ExpirationTimeDays))
	}

	return nil
}

// textRule 文本提案规则
type textRule struct{}

func (textRule) Kind() models.ProposalKind { return models.KindText }

func (textRule) Validate(payload models.ProposalPayload, env *Env) error {
	p, ok := payload.(models.TextPayload)
	if !ok {
		return badPayload(models.KindText)
	}
	if p.Text == "" {
		return errors.NewValidationError("TEXT_EMPTY", "文本提案内容为空")
	}
	return nil
}

// transferMutezRule mutez转账提案规则
type transferMutezRule struct{}

func (transferMutezRule) Kind() models.ProposalKind { return models.KindTransferMutez }

func (transferMutezRule) Validate(payload models.ProposalPayload, env *Env) error {
	p, ok := payload.(models.TransferMutezPayload)
	if !ok {
		return badPayload(models.KindTransferMutez)
	}
	if len(p.Transfers) == 0 {
		return errors.NewValidationError("NO_TRANSFERS", "转账列表为空")
	}
	for _, t := range p.Transfers {
		if !address.IsValid(t.Destination) {
			return errors.NewValidationError("INVALID_ADDRESS",
				fmt.Sprintf("转账目标地址格式无效: %s", t.Destination))
		}
		if t.Amount <= 0 {
			return errors.NewValidationError("AMOUNT_OUT_OF_RANGE",
				fmt.Sprintf("转账金额必须大于0, 实际: %d", t.Amount))
		}
	}
	if total := p.TotalAmount(); total > env.Balance {
		return errors.NewValidationError("INSUFFICIENT_BALANCE",
			fmt.Sprintf("转账总额 %d mutez 超过合约余额 %d mutez", total, env.Balance))
	}
	return nil
}

// transferTokenRule 代币转账提案规则
type transferTokenRule struct{}

func (transferTokenRule) Kind() models.ProposalKind { return models.KindTransferToken }

func (transferTokenRule) Validate(payload models.ProposalPayload, env *Env) error {
	p, ok := payload.(models.TransferTokenPayload)
	if !ok {
		return badPayload(models.KindTransferToken)
	}
	if len(p.Transfers) == 0 {
		return errors.NewValidationError("NO_TRANSFERS", "转账列表为空")
	}
	for _, t := range p.Transfers {
		if !address.IsContract(t.TokenContract) {
			return errors.NewValidationError("INVALID_ADDRESS",
				fmt.Sprintf("代币合约地址无效: %s", t.TokenContract))
		}
		if !address.IsValid(t.Destination) {
			return errors.NewValidationError("INVALID_ADDRESS",
				fmt.Sprintf("转账目标地址格式无效: %s", t.Destination))
		}
		if t.Amount <= 0 {
			return errors.NewValidationError("AMOUNT_OUT_OF_RANGE",
				fmt.Sprintf("转账数量必须大于0, 实际: %d", t.Amount))
		}
		if t.TokenID < 0 {
			return errors.NewValidationError("TOKEN_ID_OUT_OF_RANGE",
				fmt.Sprintf("代币ID不能为负, 实际: %d", t.TokenID))
		}
	}
	return nil
}

// minimumVotesRule 最小票数变更提案规则
type minimumVotesRule struct{}

func (minimumVotesRule) Kind() models.ProposalKind { return models.KindMinimumVotes }

func (minimumVotesRule) Validate(payload models.ProposalPayload, env *Env) error {
	p, ok := payload.(models.MinimumVotesPayload)
	if !ok {
		return badPayload(models.KindMinimumVotes)
	}
	userCount := int64(env.Storage.UserCount())
	if p.MinimumVotes < 1 || p.MinimumVotes > userCount {
		return errors.NewValidationError("MINIMUM_VOTES_OUT_OF_RANGE",
			fmt.Sprintf("最小票数必须在 1..%d 范围内, 实际: %d", userCount, p.MinimumVotes))
	}
	return nil
}

// expirationTimeRule 过期时间变更提案规则
type expirationTimeRule struct{}

func (expirationTimeRule) Kind() models.ProposalKind { return models.KindExpirationTime }

func (expirationTimeRule) Validate(payload models.ProposalPayload, env *Env) error {
	p, ok := payload.(models.ExpirationTimePayload)
	if !ok {
		return badPayload(models.KindExpirationTime)
	}
	if p.ExpirationTimeDays <= 0 {
		return errors.NewValidationError("EXPIRATION_TIME_OUT_OF_RANGE",
			fmt.Sprintf("过期时间必须大于0天, 实际: %d", p.ExpirationTimeDays))
	}
	return nil
}

// addUserRule 添加成员提案规则
type addUserRule struct{}

func (addUserRule) Kind() models.ProposalKind { return models.KindAddUser }

func (addUserRule) Validate(payload models.ProposalPayload, env *Env) error {
	p, ok := payload.(models.AddUserPayload)
	if !ok {
		return badPayload(models.KindAddUser)
	}
	if !address.IsImplicit(p.User) {
		return errors.NewValidationError("INVALID_ADDRESS",
			fmt.Sprintf("成员地址必须是隐式账户地址: %s", p.User))
	}
	if env.Storage.HasUser(p.User) {
		return errors.NewValidationError("USER_ALREADY_EXISTS",
			fmt.Sprintf("地址已是当前成员: %s", p.User))
	}
	return nil
}

// removeUserRule 移除成员提案规则
type removeUserRule struct{}

func (removeUserRule) Kind() models.ProposalKind { return models.KindRemoveUser }

func (removeUserRule) Validate(payload models.ProposalPayload, env *Env) error {
	p, ok := payload.(models.RemoveUserPayload)
	if !ok {
		return badPayload(models.KindRemoveUser)
	}
	if !address.IsValid(p.User) {
		return errors.NewValidationError("INVALID_ADDRESS",
			fmt.Sprintf("地址格式无效: %s", p.User))
	}
	if !env.Storage.HasUser(p.User) {
		return errors.NewValidationError("USER_NOT_FOUND",
			fmt.Sprintf("地址不是当前成员: %s", p.User))
	}
	return nil
}

// lambdaRule 任意代码提案规则
type lambdaRule struct{}

func (lambdaRule) Kind() models.ProposalKind { return models.KindLambda }

func (lambdaRule) Validate(payload models.ProposalPayload, env *Env) error {
	p, ok := payload.(models.LambdaPayload)
	if !ok {
		return badPayload(models.KindLambda)
	}
	return micheline.ValidateExpression(p.Lambda)
}

// badPayload 负载类型与提案类型不匹配
func badPayload(kind models.ProposalKind) error {
	return errors.NewValidationError("PAYLOAD_MISMATCH",
		fmt.Sprintf("负载类型与提案类型 %s 不匹配", kind))
}
