/*
 * @module service/statistics/answer_repository
 * @description 回答数据访问层，提供按问题分组的计数和评分均值查询
 * @architecture 分层架构 - 数据访问层
 * @documentReference dev_docs/analytics_statistics.md
 * @stateFlow 聚合器调用 -> 分组SQL查询 -> 按问题ID聚合结果
 * @rules 批量查询统一走分组SQL，避免按问题逐条查询
 * @dependencies ulasis-service/service/models, gorm.io/gorm
 * @refs service/statistics/aggregator.go
 */

package statistics

import (
	"context"
	"fmt"
	"ulasis-service/service/models"

	"gorm.io/gorm"
)

// AnswerCounts 单个问题的回答计数
// 无效数不单独查询，由总数减有效数得出
type AnswerCounts struct {
	QuestionID     string `json:"question_id"`
	TotalAnswers   int64  `json:"total_answers"`
	SkippedAnswers int64  `json:"skipped_answers"`
	ValidAnswers   int64  `json:"valid_answers"`
}

// RatingAverage 单个问题的评分均值
type RatingAverage struct {
	QuestionID    string  `json:"question_id"`
	AverageRating float64 `json:"average_rating"`
	RatedAnswers  int64   `json:"rated_answers"`
}

// AnswerRepository 回答统计数据访问接口
type AnswerRepository interface {
	// CountByQuestions 按问题分组统计回答计数
	// includeSkipped为false时基础计数排除跳过的回答
	CountByQuestions(ctx context.Context, questionIDs []string, includeSkipped bool) (map[string]AnswerCounts, error)
	// AverageRatingByQuestions 按问题分组统计有效评分均值
	AverageRatingByQuestions(ctx context.Context, questionIDs []string) (map[string]RatingAverage, error)
	// ListQuestionIDs 列出问卷下的全部问题ID
	ListQuestionIDs(ctx context.Context, questionnaireID string) ([]string, error)
}

// GormAnswerRepository 基于GORM的回答统计实现
type GormAnswerRepository struct {
	db *gorm.DB
}

// NewGormAnswerRepository 创建回答统计数据访问实例
func NewGormAnswerRepository(db *gorm.DB) *GormAnswerRepository {
	return &GormAnswerRepository{db: db}
}

// CountByQuestions 按问题分组统计回答计数，一次查询覆盖所有问题
// 跳过数和有效数始终使用各自的显式过滤条件
func (r *GormAnswerRepository) CountByQuestions(ctx context.Context, questionIDs []string, includeSkipped bool) (map[string]AnswerCounts, error) {
	result := make(map[string]AnswerCounts, len(questionIDs))
	if len(questionIDs) == 0 {
		return result, nil
	}

	query := r.db.WithContext(ctx).Model(&models.Answer{}).
		Select(`question_id,
			COUNT(*) as total_answers,
			SUM(CASE WHEN is_skipped = ? THEN 1 ELSE 0 END) as skipped_answers,
			SUM(CASE WHEN is_skipped = ? AND validation_status = ? THEN 1 ELSE 0 END) as valid_answers`,
			true, false, models.ValidationStatusValid).
		Where("question_id IN ?", questionIDs).
		Group("question_id")
	if !includeSkipped {
		query = query.Where("is_skipped = ?", false)
	}

	var rows []AnswerCounts
	err := query.Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计回答计数失败: %w", err)
	}

	for _, row := range rows {
		result[row.QuestionID] = row
	}
	return result, nil
}

// AverageRatingByQuestions 按问题分组统计有效评分均值
// 仅统计未跳过且校验通过的评分型回答
func (r *GormAnswerRepository) AverageRatingByQuestions(ctx context.Context, questionIDs []string) (map[string]RatingAverage, error) {
	result := make(map[string]RatingAverage, len(questionIDs))
	if len(questionIDs) == 0 {
		return result, nil
	}

	var rows []RatingAverage
	err := r.db.WithContext(ctx).Model(&models.Answer{}).
		Select("question_id, AVG(rating_score) as average_rating, COUNT(*) as rated_answers").
		Where("question_id IN ?", questionIDs).
		Where("is_skipped = ?", false).
		Where("validation_status = ?", models.ValidationStatusValid).
		Where("rating_score IS NOT NULL").
		Group("question_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计评分均值失败: %w", err)
	}

	for _, row := range rows {
		result[row.QuestionID] = row
	}
	return result, nil
}

// ListQuestionIDs 列出问卷下的全部问题ID
func (r *GormAnswerRepository) ListQuestionIDs(ctx context.Context, questionnaireID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Question{}).
		Where("questionnaire_id = ?", questionnaireID).
		Order("display_order ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询问题列表失败: %w", err)
	}
	return ids, nil
}
