/*
 * @module service/questionnaire/questionnaire_service
 * @description 问卷管理服务，提供问卷和问题的增删改查
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/questionnaire_mgmt.md
 * @stateFlow 问卷创建(draft) -> 发布(active) -> 归档(archived)
 * @rules 区域标签写入时归一化出分组键；自定义校验规则入库前做语法检查
 * @dependencies ulasis-service/service/models, gorm.io/gorm, golang.org/x/text
 * @refs service/validation/validator.go, api/controllers/questionnaire_controller.go
 */

package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"ulasis-service/service/models"
	"ulasis-service/service/validation"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

// 业务错误定义
var (
	ErrQuestionnaireNotFound = errors.New("问卷不存在")
	ErrInvalidStatus         = errors.New("无效的问卷状态")
	ErrInvalidRule           = errors.New("校验规则脚本语法错误")
)

// 问卷状态集合
var validStatuses = map[string]bool{
	"draft":    true,
	"active":   true,
	"archived": true,
}

// QuestionnaireService 问卷管理服务
type QuestionnaireService struct {
	db        *gorm.DB
	validator *validation.Validator
	logger    *slog.Logger
}

// NewQuestionnaireService 创建问卷管理服务实例
func NewQuestionnaireService(db *gorm.DB, validator *validation.Validator, logger *slog.Logger) *QuestionnaireService {
	return &QuestionnaireService{
		db:        db,
		validator: validator,
		logger:    logger,
	}
}

// CreateQuestionnaire 创建问卷
func (s *QuestionnaireService) CreateQuestionnaire(ctx context.Context, questionnaire *models.Questionnaire) error {
	if questionnaire.Status == "" {
		questionnaire.Status = "draft"
	}
	if !validStatuses[questionnaire.Status] {
		return ErrInvalidStatus
	}

	if err := s.db.WithContext(ctx).Create(questionnaire).Error; err != nil {
		return fmt.Errorf("创建问卷失败: %w", err)
	}

	s.logger.Info("问卷已创建",
		"questionnaire_id", questionnaire.ID,
		"business_id", questionnaire.BusinessID)
	return nil
}

// GetQuestionnaire 查询问卷详情，包含按顺序排列的问题
func (s *QuestionnaireService) GetQuestionnaire(ctx context.Context, id string) (*models.Questionnaire, error) {
	var questionnaire models.Questionnaire
	err := s.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC")
		}).
		Preload("QRCodes").
		First(&questionnaire, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrQuestionnaireNotFound
		}
		return nil, fmt.Errorf("查询问卷失败: %w", err)
	}
	return &questionnaire, nil
}

// ListQuestionnaires 分页查询商户下的问卷
func (s *QuestionnaireService) ListQuestionnaires(ctx context.Context, businessID string, page, pageSize int) ([]models.Questionnaire, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Questionnaire{})
	if businessID != "" {
		query = query.Where("business_id = ?", businessID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计问卷数量失败: %w", err)
	}

	var questionnaires []models.Questionnaire
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&questionnaires).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询问卷列表失败: %w", err)
	}

	return questionnaires, total, nil
}

// UpdateQuestionnaire 更新问卷基本信息和状态
func (s *QuestionnaireService) UpdateQuestionnaire(ctx context.Context, id string, updates map[string]interface{}) (*models.Questionnaire, error) {
	if status, exists := updates["status"]; exists {
		statusStr, _ := status.(string)
		if !validStatuses[statusStr] {
			return nil, ErrInvalidStatus
		}
	}

	var questionnaire models.Questionnaire
	err := s.db.WithContext(ctx).First(&questionnaire, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrQuestionnaireNotFound
		}
		return nil, fmt.Errorf("查询问卷失败: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&questionnaire).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新问卷失败: %w", err)
	}
	return &questionnaire, nil
}

// DeleteQuestionnaire 软删除问卷
func (s *QuestionnaireService) DeleteQuestionnaire(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&models.Questionnaire{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("删除问卷失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrQuestionnaireNotFound
	}
	return nil
}

// AddQuestion 向问卷追加问题，归一化区域分组键并校验规则脚本
func (s *QuestionnaireService) AddQuestion(ctx context.Context, question *models.Question) error {
	var questionnaire models.Questionnaire
	err := s.db.WithContext(ctx).First(&questionnaire, "id = ?", question.QuestionnaireID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrQuestionnaireNotFound
		}
		return fmt.Errorf("查询问卷失败: %w", err)
	}

	question.CategoryKey = NormalizeCategoryKey(question.Category)

	if question.ValidationRule != "" {
		if err := s.validator.ValidateRule(question.ValidationRule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
	}

	if err := s.db.WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("创建问题失败: %w", err)
	}
	return nil
}

// DeleteQuestion 软删除问题
func (s *QuestionnaireService) DeleteQuestion(ctx context.Context, questionnaireID, questionID string) error {
	result := s.db.WithContext(ctx).
		Delete(&models.Question{}, "id = ? AND questionnaire_id = ?", questionID, questionnaireID)
	if result.Error != nil {
		return fmt.Errorf("删除问题失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("问题不存在: %s", questionID)
	}
	return nil
}

// NormalizeCategoryKey 把区域标签归一化为分组键
// 去除变音符号，小写，空白折叠为下划线
func NormalizeCategoryKey(category string) string {
	// NFD分解后去除组合记号，再重组
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, category)
	if err != nil {
		normalized = category
	}

	normalized = strings.ToLower(strings.TrimSpace(normalized))
	fields := strings.Fields(normalized)
	return strings.Join(fields, "_")
}
