/*
 * @module service/analytics/period_aggregator
 * @description 周期聚合器，把原始回答物化为区域分解、日趋势和KPI快照
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/analytics_period.md
 * @stateFlow 确定周期边界 -> 分组统计当期/上期 -> 计算趋势和状态 -> upsert汇总表 -> 发布事件
 * @rules 聚合必须幂等，重算同一周期走upsert覆盖；上期为零时趋势记0
 * @rules 区域状态档位阈值来自配置：urgent优先于good，其余为monitor
 * @dependencies ulasis-service/service/models, gorm.io/gorm, gorm.io/gorm/clause
 * @refs service/analytics/period.go, service/scheduler/scheduler_service.go
 */

package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"ulasis-service/service/config"
	"ulasis-service/service/event"
	"ulasis-service/service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AggregationResult 单次周期聚合的结果
type AggregationResult struct {
	QuestionnaireID string    `json:"questionnaire_id"`
	PeriodType      string    `json:"period_type"`
	PeriodDate      time.Time `json:"period_date"`
	AreaCount       int       `json:"area_count"`
	TotalResponses  int64     `json:"total_responses"`
}

// bubbleCacheInvalidator 气泡缓存失效接口，由BubbleFormatter实现
type bubbleCacheInvalidator interface {
	InvalidateCache(ctx context.Context, questionnaireID, periodType string, at time.Time) error
}

// PeriodAggregator 周期聚合器
type PeriodAggregator struct {
	db            *gorm.DB
	configService *config.ConfigService
	publisher     event.Publisher
	cache         bubbleCacheInvalidator
	logger        *slog.Logger
}

// NewPeriodAggregator 创建周期聚合器实例
func NewPeriodAggregator(db *gorm.DB, configService *config.ConfigService, publisher event.Publisher, logger *slog.Logger) *PeriodAggregator {
	return &PeriodAggregator{
		db:            db,
		configService: configService,
		publisher:     publisher,
		logger:        logger,
	}
}

// SetBubbleFormatter 注入气泡格式化器，聚合重算后失效对应缓存
func (a *PeriodAggregator) SetBubbleFormatter(formatter *BubbleFormatter) {
	a.cache = formatter
}

// areaStat 区域分组统计行，按归一化分组键分组
type areaStat struct {
	AreaKey   string          `json:"area_key"`
	Area      string          `json:"area"`
	AvgRating sql.NullFloat64 `json:"avg_rating"`
	Responses int64           `json:"responses"`
}

// dailyStat 日级分组统计行
type dailyStat struct {
	Day       string          `json:"day"`
	AvgRating sql.NullFloat64 `json:"avg_rating"`
	Responses int64           `json:"responses"`
}

// AggregatePeriod 聚合指定问卷在时间点所在周期的数据
func (a *PeriodAggregator) AggregatePeriod(ctx context.Context, questionnaireID, periodType string, at time.Time) (*AggregationResult, error) {
	if !models.IsValidPeriodType(periodType) {
		return nil, fmt.Errorf("无效的周期类型: %s", periodType)
	}

	periodStart, err := PeriodStart(at, periodType)
	if err != nil {
		return nil, err
	}
	periodEnd := PeriodEnd(periodStart, periodType)
	prevStart := PreviousPeriodStart(periodStart, periodType)

	// 当期和上期的区域分组统计
	current, err := a.queryAreaStats(ctx, questionnaireID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("查询当期区域统计失败: %w", err)
	}
	previous, err := a.queryAreaStats(ctx, questionnaireID, prevStart, periodStart)
	if err != nil {
		return nil, fmt.Errorf("查询上期区域统计失败: %w", err)
	}
	prevByArea := make(map[string]areaStat, len(previous))
	for _, stat := range previous {
		prevByArea[stat.AreaKey] = stat
	}

	thresholds := a.configService.GetStatusThresholds()
	generatedAt := time.Now()

	for _, stat := range current {
		avgRating := round2(stat.AvgRating.Float64)
		trend := 0.0
		if prev, exists := prevByArea[stat.AreaKey]; exists && prev.AvgRating.Valid {
			trend = TrendPercentage(avgRating, round2(prev.AvgRating.Float64))
		}

		breakdown := models.AnalyticsBreakdown{
			QuestionnaireID: questionnaireID,
			PeriodType:      periodType,
			PeriodDate:      periodStart,
			AreaKey:         stat.AreaKey,
			Area:            stat.Area,
			AvgRating:       avgRating,
			Responses:       stat.Responses,
			Trend:           trend,
			Status:          a.resolveStatus(avgRating, trend, thresholds),
			GeneratedAt:     generatedAt,
		}

		err = a.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "questionnaire_id"}, {Name: "period_type"},
				{Name: "period_date"}, {Name: "area_key"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"area", "avg_rating", "responses", "trend", "status", "generated_at",
			}),
		}).Create(&breakdown).Error
		if err != nil {
			return nil, fmt.Errorf("写入区域分解失败: %w", err)
		}
	}

	if err := a.aggregateTrends(ctx, questionnaireID, periodType, periodStart, periodEnd, generatedAt); err != nil {
		return nil, err
	}

	kpi, err := a.aggregateKPI(ctx, questionnaireID, periodType, periodStart, periodEnd, generatedAt)
	if err != nil {
		return nil, err
	}

	// 汇总表已更新，失效对应周期的气泡缓存
	if a.cache != nil {
		if err := a.cache.InvalidateCache(ctx, questionnaireID, periodType, periodStart); err != nil {
			a.logger.Warn("气泡缓存失效失败",
				"questionnaire_id", questionnaireID,
				"period_type", periodType,
				"error", err)
		}
	}

	result := &AggregationResult{
		QuestionnaireID: questionnaireID,
		PeriodType:      periodType,
		PeriodDate:      periodStart,
		AreaCount:       len(current),
		TotalResponses:  kpi.TotalResponses,
	}

	a.logger.Info("周期聚合完成",
		"questionnaire_id", questionnaireID,
		"period_type", periodType,
		"period_date", periodStart.Format("2006-01-02"),
		"areas", result.AreaCount,
		"responses", result.TotalResponses)

	if err := a.publisher.Publish(ctx, &event.DomainEvent{
		EventType:       event.EventTypeAggregationCompleted,
		QuestionnaireID: questionnaireID,
		Payload: map[string]interface{}{
			"period_type": periodType,
			"period_date": periodStart.Format("2006-01-02"),
		},
	}); err != nil {
		// 事件发布失败不影响聚合结果
		a.logger.Warn("聚合完成事件发布失败", "error", err)
	}

	return result, nil
}

// AggregateAllPeriods 聚合指定问卷的全部周期类型
func (a *PeriodAggregator) AggregateAllPeriods(ctx context.Context, questionnaireID string, at time.Time) error {
	periodTypes := []string{
		models.PeriodTypeDay, models.PeriodTypeWeek,
		models.PeriodTypeMonth, models.PeriodTypeYear,
	}
	for _, periodType := range periodTypes {
		if _, err := a.AggregatePeriod(ctx, questionnaireID, periodType, at); err != nil {
			return fmt.Errorf("聚合周期 %s 失败: %w", periodType, err)
		}
	}
	return nil
}

// AggregateActiveQuestionnaires 聚合所有收集中问卷，供调度任务使用
func (a *PeriodAggregator) AggregateActiveQuestionnaires(ctx context.Context, at time.Time) error {
	var ids []string
	err := a.db.WithContext(ctx).Model(&models.Questionnaire{}).
		Where("status = ?", "active").
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("查询收集中问卷失败: %w", err)
	}

	var failed int
	for _, id := range ids {
		if err := a.AggregateAllPeriods(ctx, id, at); err != nil {
			failed++
			a.logger.Error("问卷聚合失败", "questionnaire_id", id, "error", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d/%d 个问卷聚合失败", failed, len(ids))
	}
	return nil
}

// queryAreaStats 按区域分组统计周期内的有效评分，单条SQL覆盖全部区域
// 分组走归一化分组键，展示标签取同组内任意一个原始标签
func (a *PeriodAggregator) queryAreaStats(ctx context.Context, questionnaireID string, start, end time.Time) ([]areaStat, error) {
	var rows []areaStat
	err := a.db.WithContext(ctx).Model(&models.Answer{}).
		Select(`questions.category_key as area_key,
			MAX(questions.category) as area,
			AVG(answers.rating_score) as avg_rating,
			COUNT(DISTINCT answers.response_id) as responses`).
		Joins("JOIN questions ON questions.id = answers.question_id AND questions.deleted_at IS NULL").
		Joins("JOIN responses ON responses.id = answers.response_id AND responses.deleted_at IS NULL").
		Where("questions.questionnaire_id = ?", questionnaireID).
		Where("responses.response_date >= ? AND responses.response_date < ?", start, end).
		Where("answers.is_skipped = ?", false).
		Where("answers.validation_status = ?", models.ValidationStatusValid).
		Where("answers.rating_score IS NOT NULL").
		Group("questions.category_key").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// aggregateTrends 写入周期内的日级时间序列
func (a *PeriodAggregator) aggregateTrends(ctx context.Context, questionnaireID, periodType string, start, end, generatedAt time.Time) error {
	var rows []dailyStat
	err := a.db.WithContext(ctx).Model(&models.Answer{}).
		Select(`DATE(responses.response_date) as day,
			AVG(answers.rating_score) as avg_rating,
			COUNT(DISTINCT answers.response_id) as responses`).
		Joins("JOIN questions ON questions.id = answers.question_id AND questions.deleted_at IS NULL").
		Joins("JOIN responses ON responses.id = answers.response_id AND responses.deleted_at IS NULL").
		Where("questions.questionnaire_id = ?", questionnaireID).
		Where("responses.response_date >= ? AND responses.response_date < ?", start, end).
		Where("answers.is_skipped = ?", false).
		Where("answers.validation_status = ?", models.ValidationStatusValid).
		Where("answers.rating_score IS NOT NULL").
		Group("DATE(responses.response_date)").
		Order("day ASC").
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("查询日趋势失败: %w", err)
	}

	totalScans, err := a.queryTotalScans(ctx, questionnaireID)
	if err != nil {
		return err
	}

	prevAvg := 0.0
	for i, row := range rows {
		date, err := parseDay(row.Day, start.Location())
		if err != nil {
			return fmt.Errorf("解析趋势日期失败: %w", err)
		}

		avgRating := round2(row.AvgRating.Float64)
		trendValue := 0.0
		if i > 0 {
			trendValue = TrendPercentage(avgRating, prevAvg)
		}
		prevAvg = avgRating

		responseRate := 0.0
		if totalScans > 0 {
			responseRate = round2(float64(row.Responses) / float64(totalScans) * 100)
		}

		trend := models.AnalyticsTrend{
			QuestionnaireID: questionnaireID,
			PeriodType:      periodType,
			PeriodDate:      start,
			Date:            date,
			AvgRating:       avgRating,
			ResponseRate:    responseRate,
			TrendValue:      trendValue,
			GeneratedAt:     generatedAt,
		}

		err = a.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "questionnaire_id"}, {Name: "period_type"},
				{Name: "period_date"}, {Name: "date"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"avg_rating", "response_rate", "trend_value", "generated_at",
			}),
		}).Create(&trend).Error
		if err != nil {
			return fmt.Errorf("写入日趋势失败: %w", err)
		}
	}

	return nil
}

// aggregateKPI 写入周期顶层汇总
func (a *PeriodAggregator) aggregateKPI(ctx context.Context, questionnaireID, periodType string, start, end, generatedAt time.Time) (*models.AnalyticsKPI, error) {
	var totalResponses int64
	err := a.db.WithContext(ctx).Model(&models.Response{}).
		Where("questionnaire_id = ?", questionnaireID).
		Where("response_date >= ? AND response_date < ?", start, end).
		Count(&totalResponses).Error
	if err != nil {
		return nil, fmt.Errorf("统计应答总数失败: %w", err)
	}

	// 有效评分的均值和正向占比，一条SQL同时算出
	positiveMin := a.configService.GetPositiveSentimentMinRating()
	var ratingRow struct {
		AvgRating    sql.NullFloat64 `json:"avg_rating"`
		RatedAnswers int64           `json:"rated_answers"`
		Positive     int64           `json:"positive"`
	}
	err = a.db.WithContext(ctx).Model(&models.Answer{}).
		Select(`AVG(answers.rating_score) as avg_rating,
			COUNT(*) as rated_answers,
			SUM(CASE WHEN answers.rating_score >= ? THEN 1 ELSE 0 END) as positive`, positiveMin).
		Joins("JOIN questions ON questions.id = answers.question_id AND questions.deleted_at IS NULL").
		Joins("JOIN responses ON responses.id = answers.response_id AND responses.deleted_at IS NULL").
		Where("questions.questionnaire_id = ?", questionnaireID).
		Where("responses.response_date >= ? AND responses.response_date < ?", start, end).
		Where("answers.is_skipped = ?", false).
		Where("answers.validation_status = ?", models.ValidationStatusValid).
		Where("answers.rating_score IS NOT NULL").
		Find(&ratingRow).Error
	if err != nil {
		return nil, fmt.Errorf("统计评分汇总失败: %w", err)
	}

	totalScans, err := a.queryTotalScans(ctx, questionnaireID)
	if err != nil {
		return nil, err
	}

	responseRate := 0.0
	if totalScans > 0 {
		responseRate = round2(float64(totalResponses) / float64(totalScans) * 100)
	}
	positiveSentiment := 0.0
	if ratingRow.RatedAnswers > 0 {
		positiveSentiment = round2(float64(ratingRow.Positive) / float64(ratingRow.RatedAnswers) * 100)
	}

	kpi := models.AnalyticsKPI{
		QuestionnaireID:   questionnaireID,
		PeriodType:        periodType,
		PeriodDate:        start,
		TotalResponses:    totalResponses,
		AvgRating:         round2(ratingRow.AvgRating.Float64),
		ResponseRate:      responseRate,
		PositiveSentiment: positiveSentiment,
		GeneratedAt:       generatedAt,
	}

	err = a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "questionnaire_id"}, {Name: "period_type"}, {Name: "period_date"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_responses", "avg_rating", "response_rate",
			"positive_sentiment", "generated_at",
		}),
	}).Create(&kpi).Error
	if err != nil {
		return nil, fmt.Errorf("写入KPI汇总失败: %w", err)
	}

	return &kpi, nil
}

// queryTotalScans 统计问卷全部二维码的累计扫码数，作为回收率分母
func (a *PeriodAggregator) queryTotalScans(ctx context.Context, questionnaireID string) (int64, error) {
	var row struct {
		Total sql.NullInt64 `json:"total"`
	}
	err := a.db.WithContext(ctx).Model(&models.QRCode{}).
		Select("SUM(scan_count) as total").
		Where("questionnaire_id = ?", questionnaireID).
		Find(&row).Error
	if err != nil {
		return 0, fmt.Errorf("统计扫码数失败: %w", err)
	}
	return row.Total.Int64, nil
}

// resolveStatus 按阈值判定区域状态，urgent优先于good
func (a *PeriodAggregator) resolveStatus(avgRating, trend float64, thresholds config.StatusThresholds) string {
	if avgRating < thresholds.UrgentMaxRating || trend <= thresholds.UrgentMaxTrend {
		return models.AreaStatusUrgent
	}
	if avgRating >= thresholds.GoodMinRating && trend >= thresholds.GoodMinTrend {
		return models.AreaStatusGood
	}
	return models.AreaStatusMonitor
}

// parseDay 解析DATE()分组结果，不同数据库返回的日期文本格式不同
func parseDay(value string, loc *time.Location) (time.Time, error) {
	layouts := []string{"2006-01-02", "2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期: %s", value)
}

// round2 保留两位小数
func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
