package validation

import (
	"context"
	"testing"
	"ulasis-service/service/models"

	"github.com/stretchr/testify/assert"
)

func float64Ptr(v float64) *float64 {
	return &v
}

// TestValidateAnswerRequired 测试必填问题校验
func TestValidateAnswerRequired(t *testing.T) {
	validator := NewValidator()
	question := &models.Question{
		QuestionType: "text",
		IsRequired:   true,
	}

	empty := &models.Answer{AnswerValue: "   "}
	result := validator.ValidateAnswer(context.Background(), question, empty)
	assert.Equal(t, models.ValidationStatusInvalid, result.Status)
	assert.NotEmpty(t, result.Errors)

	filled := &models.Answer{AnswerValue: "服务很好"}
	result = validator.ValidateAnswer(context.Background(), question, filled)
	assert.Equal(t, models.ValidationStatusValid, result.Status)
}

// TestValidateAnswerSkipped 测试跳过回答的处理
func TestValidateAnswerSkipped(t *testing.T) {
	validator := NewValidator()

	optional := &models.Question{QuestionType: "text", IsRequired: false}
	skipped := &models.Answer{IsSkipped: true}
	result := validator.ValidateAnswer(context.Background(), optional, skipped)
	assert.Equal(t, models.ValidationStatusPending, result.Status)

	// 必填问题不允许跳过
	required := &models.Question{QuestionType: "text", IsRequired: true}
	result = validator.ValidateAnswer(context.Background(), required, skipped)
	assert.Equal(t, models.ValidationStatusInvalid, result.Status)
}

// TestValidateAnswerRatingRange 测试评分范围校验
func TestValidateAnswerRatingRange(t *testing.T) {
	validator := NewValidator()
	question := &models.Question{
		QuestionType: "rating",
		MinValue:     float64Ptr(1),
		MaxValue:     float64Ptr(5),
	}

	tests := []struct {
		name     string
		score    float64
		expected string
	}{
		{"范围内", 3.5, models.ValidationStatusValid},
		{"下边界", 1, models.ValidationStatusValid},
		{"上边界", 5, models.ValidationStatusValid},
		{"低于下限", 0.5, models.ValidationStatusInvalid},
		{"高于上限", 5.5, models.ValidationStatusInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := &models.Answer{RatingScore: float64Ptr(tt.score)}
			result := validator.ValidateAnswer(context.Background(), question, answer)
			assert.Equal(t, tt.expected, result.Status)
		})
	}
}

// TestValidateAnswerScript 测试自定义脚本规则
func TestValidateAnswerScript(t *testing.T) {
	validator := NewValidator()
	question := &models.Question{
		QuestionType: "text",
		ValidationRule: `
	text, ok := value.(string)
	if !ok {
		return "回答必须是文本", nil
	}
	if utf8.RuneCountInString(text) < 5 {
		return "反馈内容至少5个字", nil
	}
	return nil, nil
`,
	}

	short := &models.Answer{AnswerValue: "好"}
	result := validator.ValidateAnswer(context.Background(), question, short)
	assert.Equal(t, models.ValidationStatusInvalid, result.Status)
	assert.Contains(t, result.Errors[0], "至少5个字")

	long := &models.Answer{AnswerValue: "服务态度非常好点赞"}
	result = validator.ValidateAnswer(context.Background(), question, long)
	assert.Equal(t, models.ValidationStatusValid, result.Status)
}

// TestValidateAnswerScriptBool 测试脚本返回布尔值
func TestValidateAnswerScriptBool(t *testing.T) {
	validator := NewValidator()
	question := &models.Question{
		QuestionType: "rating",
		ValidationRule: `
	score, ok := ratingScore.(float64)
	if !ok {
		return false, nil
	}
	return score >= 1 && score <= 10, nil
`,
	}

	valid := &models.Answer{RatingScore: float64Ptr(8)}
	result := validator.ValidateAnswer(context.Background(), question, valid)
	assert.Equal(t, models.ValidationStatusValid, result.Status)

	invalid := &models.Answer{RatingScore: float64Ptr(12)}
	result = validator.ValidateAnswer(context.Background(), question, invalid)
	assert.Equal(t, models.ValidationStatusInvalid, result.Status)
}

// TestValidateRuleSyntax 测试规则脚本语法校验
func TestValidateRuleSyntax(t *testing.T) {
	validator := NewValidator()

	err := validator.ValidateRule("\treturn nil, nil\n")
	assert.NoError(t, err)

	err = validator.ValidateRule("\treturn nil nil\n")
	assert.Error(t, err)
}

// TestScriptExecutorCache 测试脚本编译缓存
func TestScriptExecutorCache(t *testing.T) {
	executor := NewYaegiScriptExecutor()
	script := "\treturn true, nil\n"

	_, err := executor.Execute(context.Background(), script, map[string]interface{}{})
	assert.NoError(t, err)

	stats := executor.GetCacheStats()
	assert.Equal(t, 1, stats["cached_scripts"])

	// 相同脚本命中缓存
	_, err = executor.Execute(context.Background(), script, map[string]interface{}{})
	assert.NoError(t, err)
	stats = executor.GetCacheStats()
	assert.Equal(t, 1, stats["cached_scripts"])

	executor.ClearCache()
	stats = executor.GetCacheStats()
	assert.Equal(t, 0, stats["cached_scripts"])
}
