/*
 * @module service/statistics/aggregator
 * @description 统计聚合器，计算问题维度的回答统计指标
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/analytics_statistics.md
 * @stateFlow 接收问题ID -> 分组查询计数/均值 -> 计算比率 -> 返回统计结果
 * @rules 百分比整数四舍五入(half-up)，均值保留两位小数，计数为零时比率为零
 * @rules 部分查询失败时返回已有数据并标记 Degraded，不得静默归零
 * @dependencies ulasis-service/service/statistics
 * @refs service/statistics/answer_repository.go
 */

package statistics

import (
	"context"
	"log/slog"
	"math"
)

// QuestionStatistics 单个问题的统计结果
type QuestionStatistics struct {
	QuestionID     string  `json:"question_id"`
	TotalAnswers   int64   `json:"total_answers"`
	SkippedAnswers int64   `json:"skipped_answers"`
	ValidAnswers   int64   `json:"valid_answers"`
	InvalidAnswers int64   `json:"invalid_answers"`
	SkipRate       int     `json:"skip_rate"`
	ValidRate      int     `json:"valid_rate"`
	AverageRating  float64 `json:"average_rating"`
	RatedAnswers   int64   `json:"rated_answers"`
	Degraded       bool    `json:"degraded"`
	DegradedReason string  `json:"degraded_reason,omitempty"`
}

// StatisticsOptions 统计查询选项
type StatisticsOptions struct {
	// IncludeSkipped 控制基础计数是否包含跳过的回答
	// 跳过数和有效数始终使用各自的显式过滤条件
	IncludeSkipped bool
}

// DefaultStatisticsOptions 默认选项，基础计数包含跳过的回答
func DefaultStatisticsOptions() *StatisticsOptions {
	return &StatisticsOptions{IncludeSkipped: true}
}

// Aggregator 统计聚合器
type Aggregator struct {
	repo   AnswerRepository
	logger *slog.Logger
}

// NewAggregator 创建统计聚合器实例
func NewAggregator(repo AnswerRepository, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		repo:   repo,
		logger: logger,
	}
}

// GetStatistics 获取单个问题的统计结果，opts为nil时使用默认选项
func (a *Aggregator) GetStatistics(ctx context.Context, questionID string, opts *StatisticsOptions) (*QuestionStatistics, error) {
	batch, err := a.GetBatchStatistics(ctx, []string{questionID}, opts)
	if err != nil {
		return nil, err
	}
	stats := batch[questionID]
	return &stats, nil
}

// GetBatchStatistics 批量获取问题统计结果
// 无回答的问题返回全零统计，查询部分失败时标记 Degraded
func (a *Aggregator) GetBatchStatistics(ctx context.Context, questionIDs []string, opts *StatisticsOptions) (map[string]QuestionStatistics, error) {
	if opts == nil {
		opts = DefaultStatisticsOptions()
	}

	result := make(map[string]QuestionStatistics, len(questionIDs))
	if len(questionIDs) == 0 {
		return result, nil
	}

	counts, err := a.repo.CountByQuestions(ctx, questionIDs, opts.IncludeSkipped)
	if err != nil {
		// 计数是统计的基础，失败时无法给出有意义的结果
		return nil, err
	}

	averages, avgErr := a.repo.AverageRatingByQuestions(ctx, questionIDs)
	if avgErr != nil {
		a.logger.Warn("评分均值查询失败，统计结果降级",
			"error", avgErr,
			"question_count", len(questionIDs))
	}

	for _, id := range questionIDs {
		stats := QuestionStatistics{QuestionID: id}

		if c, exists := counts[id]; exists {
			stats.TotalAnswers = c.TotalAnswers
			stats.SkippedAnswers = c.SkippedAnswers
			stats.ValidAnswers = c.ValidAnswers
			// 无效数按构造定义为总数减有效数，跳过也算未产生有效回答
			stats.InvalidAnswers = c.TotalAnswers - c.ValidAnswers
			if c.TotalAnswers > 0 {
				stats.SkipRate = roundHalfUp(float64(c.SkippedAnswers) / float64(c.TotalAnswers) * 100)
				stats.ValidRate = roundHalfUp(float64(c.ValidAnswers) / float64(c.TotalAnswers) * 100)
			}
		}

		if avgErr != nil {
			stats.Degraded = true
			stats.DegradedReason = "评分均值查询失败"
		} else if avg, exists := averages[id]; exists {
			stats.AverageRating = round2(avg.AverageRating)
			stats.RatedAnswers = avg.RatedAnswers
		}

		result[id] = stats
	}

	return result, nil
}

// GetQuestionnaireStatistics 获取问卷下全部问题的统计结果
func (a *Aggregator) GetQuestionnaireStatistics(ctx context.Context, questionnaireID string) (map[string]QuestionStatistics, error) {
	questionIDs, err := a.repo.ListQuestionIDs(ctx, questionnaireID)
	if err != nil {
		return nil, err
	}
	return a.GetBatchStatistics(ctx, questionIDs, nil)
}

// roundHalfUp 百分比整数四舍五入，0.5 进位
func roundHalfUp(value float64) int {
	return int(math.Floor(value + 0.5))
}

// round2 保留两位小数
func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
