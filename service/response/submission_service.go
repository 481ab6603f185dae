/*
 * @module service/response/submission_service
 * @description 反馈提交服务，管理应答生命周期、单题回答写入和进度重算
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/submission_flow.md
 * @stateFlow 首题提交创建应答 -> 校验回答 -> 写入回答 -> 重算进度 -> 完成发布事件
 * @rules (response_id, question_id) 重复提交返回ErrDuplicateAnswer，由唯一索引兜底
 * @rules 进度重算必须幂等，任何时刻重算结果一致
 * @dependencies ulasis-service/service/models, gorm.io/gorm, github.com/lib/pq
 * @refs service/validation/validator.go, service/event/publisher.go
 */

package response

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ulasis-service/service/event"
	"ulasis-service/service/models"
	"ulasis-service/service/validation"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// 业务错误定义
var (
	ErrDuplicateAnswer        = errors.New("该问题已有回答，不能重复提交")
	ErrQuestionnaireNotActive = errors.New("问卷未在收集中")
	ErrQuestionNotFound       = errors.New("问题不存在")
	ErrResponseNotFound       = errors.New("应答不存在")
	ErrResponseMismatch       = errors.New("应答与问卷不匹配")
)

// SubmitAnswerRequest 单题回答提交请求
type SubmitAnswerRequest struct {
	ResponseID        string   `json:"response_id,omitempty"` // 空表示首题提交，创建新应答
	QuestionnaireID   string   `json:"questionnaire_id"`
	QuestionID        string   `json:"question_id"`
	QRCodeID          *string  `json:"qr_code_id,omitempty"`
	DeviceFingerprint string   `json:"device_fingerprint,omitempty"`
	AnswerValue       string   `json:"answer_value,omitempty"`
	RatingScore       *float64 `json:"rating_score,omitempty"`
	SelectedOptions   []string `json:"selected_options,omitempty"`
	IsSkipped         bool     `json:"is_skipped,omitempty"`
}

// SubmissionService 反馈提交服务
type SubmissionService struct {
	db        *gorm.DB
	validator *validation.Validator
	publisher event.Publisher
	logger    *slog.Logger
}

// NewSubmissionService 创建反馈提交服务实例
func NewSubmissionService(db *gorm.DB, validator *validation.Validator, publisher event.Publisher, logger *slog.Logger) *SubmissionService {
	return &SubmissionService{
		db:        db,
		validator: validator,
		publisher: publisher,
		logger:    logger,
	}
}

// SubmitAnswer 提交单题回答
// ResponseID为空时创建新应答，写入后重算进度
func (s *SubmissionService) SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*models.Response, *models.Answer, error) {
	var questionnaire models.Questionnaire
	err := s.db.WithContext(ctx).First(&questionnaire, "id = ?", req.QuestionnaireID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, fmt.Errorf("问卷不存在: %s", req.QuestionnaireID)
		}
		return nil, nil, fmt.Errorf("查询问卷失败: %w", err)
	}
	if !questionnaire.IsActive() {
		return nil, nil, ErrQuestionnaireNotActive
	}

	var question models.Question
	err = s.db.WithContext(ctx).
		First(&question, "id = ? AND questionnaire_id = ?", req.QuestionID, req.QuestionnaireID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, ErrQuestionNotFound
		}
		return nil, nil, fmt.Errorf("查询问题失败: %w", err)
	}

	response, err := s.resolveResponse(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	answer := &models.Answer{
		ResponseID:      response.ID,
		QuestionID:      question.ID,
		AnswerValue:     req.AnswerValue,
		RatingScore:     req.RatingScore,
		SelectedOptions: models.JSONBStringArray(req.SelectedOptions),
		IsSkipped:       req.IsSkipped,
	}

	result := s.validator.ValidateAnswer(ctx, &question, answer)
	answer.ValidationStatus = result.Status
	answer.ValidationErrors = models.JSONBStringArray(result.Errors)

	if err := s.db.WithContext(ctx).Create(answer).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, nil, ErrDuplicateAnswer
		}
		return nil, nil, fmt.Errorf("写入回答失败: %w", err)
	}

	response, err = s.UpdateProgress(ctx, response.ID)
	if err != nil {
		return nil, nil, err
	}

	return response, answer, nil
}

// resolveResponse 定位或创建应答
func (s *SubmissionService) resolveResponse(ctx context.Context, req *SubmitAnswerRequest) (*models.Response, error) {
	if req.ResponseID == "" {
		response := &models.Response{
			QuestionnaireID:   req.QuestionnaireID,
			QRCodeID:          req.QRCodeID,
			DeviceFingerprint: req.DeviceFingerprint,
		}
		if err := s.db.WithContext(ctx).Create(response).Error; err != nil {
			return nil, fmt.Errorf("创建应答失败: %w", err)
		}

		if err := s.publisher.Publish(ctx, &event.DomainEvent{
			EventType:       event.EventTypeResponseCreated,
			QuestionnaireID: req.QuestionnaireID,
			Payload:         map[string]interface{}{"response_id": response.ID},
		}); err != nil {
			s.logger.Warn("应答创建事件发布失败", "response_id", response.ID, "error", err)
		}
		return response, nil
	}

	var response models.Response
	err := s.db.WithContext(ctx).First(&response, "id = ?", req.ResponseID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrResponseNotFound
		}
		return nil, fmt.Errorf("查询应答失败: %w", err)
	}
	if response.QuestionnaireID != req.QuestionnaireID {
		return nil, ErrResponseMismatch
	}
	return &response, nil
}

// UpdateProgress 重算应答进度，幂等
func (s *SubmissionService) UpdateProgress(ctx context.Context, responseID string) (*models.Response, error) {
	var response models.Response
	err := s.db.WithContext(ctx).First(&response, "id = ?", responseID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrResponseNotFound
		}
		return nil, fmt.Errorf("查询应答失败: %w", err)
	}

	// 跳过的问题不计入进度
	var answeredCount int64
	err = s.db.WithContext(ctx).Model(&models.Answer{}).
		Where("response_id = ? AND is_skipped = ?", responseID, false).
		Count(&answeredCount).Error
	if err != nil {
		return nil, fmt.Errorf("统计已答题数失败: %w", err)
	}

	var totalQuestions int64
	err = s.db.WithContext(ctx).Model(&models.Question{}).
		Where("questionnaire_id = ?", response.QuestionnaireID).
		Count(&totalQuestions).Error
	if err != nil {
		return nil, fmt.Errorf("统计问题总数失败: %w", err)
	}

	wasComplete := response.IsComplete
	response.ApplyProgress(answeredCount, int(totalQuestions))

	err = s.db.WithContext(ctx).Model(&response).
		Select("progress_percentage", "is_complete").
		Updates(map[string]interface{}{
			"progress_percentage": response.ProgressPercentage,
			"is_complete":         response.IsComplete,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("更新进度失败: %w", err)
	}

	// 进度首次达到100时发布完成事件
	if response.IsComplete && !wasComplete {
		s.publishCompleted(ctx, &response)
	}

	return &response, nil
}

// CompleteResponse 显式完成应答，记录作答耗时
// 完成状态由进度重算得出，进度不足100%时应答保持未完成
func (s *SubmissionService) CompleteResponse(ctx context.Context, responseID string, completionTime *int) (*models.Response, error) {
	// 重算进度，首次达到100%时由UpdateProgress发布完成事件
	response, err := s.UpdateProgress(ctx, responseID)
	if err != nil {
		return nil, err
	}

	response.CompletionTime = completionTime
	err = s.db.WithContext(ctx).Model(response).
		Update("completion_time", completionTime).Error
	if err != nil {
		return nil, fmt.Errorf("完成应答失败: %w", err)
	}

	return response, nil
}

// GetResponse 查询应答详情，包含全部回答
func (s *SubmissionService) GetResponse(ctx context.Context, responseID string) (*models.Response, error) {
	var response models.Response
	err := s.db.WithContext(ctx).
		Preload("Answers").
		First(&response, "id = ?", responseID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrResponseNotFound
		}
		return nil, fmt.Errorf("查询应答失败: %w", err)
	}
	return &response, nil
}

// publishCompleted 发布应答完成事件
func (s *SubmissionService) publishCompleted(ctx context.Context, response *models.Response) {
	err := s.publisher.Publish(ctx, &event.DomainEvent{
		EventType:       event.EventTypeResponseCompleted,
		QuestionnaireID: response.QuestionnaireID,
		Payload: map[string]interface{}{
			"response_id": response.ID,
			"progress":    response.ProgressPercentage,
		},
	})
	if err != nil {
		s.logger.Warn("应答完成事件发布失败", "response_id", response.ID, "error", err)
	}
}

// isUniqueViolation 判断是否为唯一约束冲突
// PostgreSQL用SQLSTATE 23505，其他数据库按错误文本兜底
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}
