/*
 * @module service/validation/validator
 * @description 回答校验器，执行内置规则和自定义脚本规则
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/answer_validation.md
 * @stateFlow 接收回答 -> 必填检查 -> 评分范围检查 -> 脚本规则执行 -> 返回校验结果
 * @rules 跳过的回答不执行校验，脚本执行失败视为校验不通过
 * @dependencies ulasis-service/service/models, ulasis-service/service/validation
 * @refs service/validation/script_executor.go, service/response/submission_service.go
 */

package validation

import (
	"context"
	"fmt"
	"strings"
	"ulasis-service/service/models"
)

// Result 校验结果
type Result struct {
	Status string   `json:"status"`
	Errors []string `json:"errors,omitempty"`
}

// Validator 回答校验器
type Validator struct {
	executor ScriptExecutor
}

// NewValidator 创建回答校验器实例
func NewValidator() *Validator {
	return &Validator{
		executor: NewYaegiScriptExecutor(),
	}
}

// NewValidatorWithExecutor 使用指定脚本执行器创建校验器
func NewValidatorWithExecutor(executor ScriptExecutor) *Validator {
	return &Validator{executor: executor}
}

// ValidateAnswer 校验单条回答
// 跳过的回答不执行规则，状态保持 pending
func (v *Validator) ValidateAnswer(ctx context.Context, question *models.Question, answer *models.Answer) Result {
	if answer.IsSkipped {
		if question.IsRequired {
			return Result{
				Status: models.ValidationStatusInvalid,
				Errors: []string{"必填问题不能跳过"},
			}
		}
		return Result{Status: models.ValidationStatusPending}
	}

	var errs []string

	if question.IsRequired && v.isEmpty(answer) {
		errs = append(errs, "必填问题的回答不能为空")
	}

	if question.IsRatingType() && answer.RatingScore != nil {
		if question.MinValue != nil && *answer.RatingScore < *question.MinValue {
			errs = append(errs, fmt.Sprintf("评分不能低于 %g", *question.MinValue))
		}
		if question.MaxValue != nil && *answer.RatingScore > *question.MaxValue {
			errs = append(errs, fmt.Sprintf("评分不能高于 %g", *question.MaxValue))
		}
	}

	if question.ValidationRule != "" {
		if scriptErrs := v.runScript(ctx, question, answer); len(scriptErrs) > 0 {
			errs = append(errs, scriptErrs...)
		}
	}

	if len(errs) > 0 {
		return Result{Status: models.ValidationStatusInvalid, Errors: errs}
	}
	return Result{Status: models.ValidationStatusValid}
}

// ValidateRule 校验规则脚本语法
func (v *Validator) ValidateRule(script string) error {
	return v.executor.Validate(script)
}

// runScript 执行自定义校验脚本
// 返回值约定：nil/true/"" 表示通过，字符串表示错误信息，false 表示通用失败
func (v *Validator) runScript(ctx context.Context, question *models.Question, answer *models.Answer) []string {
	params := map[string]interface{}{
		"value":           answer.AnswerValue,
		"selectedOptions": []string(answer.SelectedOptions),
		"questionType":    question.QuestionType,
	}
	if answer.RatingScore != nil {
		params["ratingScore"] = *answer.RatingScore
	}

	result, err := v.executor.Execute(ctx, question.ValidationRule, params)
	if err != nil {
		return []string{fmt.Sprintf("校验规则执行失败: %v", err)}
	}

	switch r := result.(type) {
	case nil:
		return nil
	case bool:
		if r {
			return nil
		}
		return []string{"回答未通过校验规则"}
	case string:
		if strings.TrimSpace(r) == "" {
			return nil
		}
		return []string{r}
	case error:
		return []string{r.Error()}
	default:
		return []string{fmt.Sprintf("校验规则返回了不支持的类型: %T", result)}
	}
}

// isEmpty 判断回答内容是否为空
func (v *Validator) isEmpty(answer *models.Answer) bool {
	if answer.RatingScore != nil {
		return false
	}
	if len(answer.SelectedOptions) > 0 {
		return false
	}
	return strings.TrimSpace(answer.AnswerValue) == ""
}
