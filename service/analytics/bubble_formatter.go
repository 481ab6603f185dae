/*
 * @module service/analytics/bubble_formatter
 * @description 气泡分析格式化器，把汇总表转换为前端气泡图数据，带Redis缓存
 * @architecture 分层架构 - 业务服务层（读侧）
 * @documentReference dev_docs/analytics_bubble.md
 * @stateFlow 缓存命中直接返回 -> 未命中读取汇总表 -> 组装气泡数据 -> 回写缓存
 * @rules 状态到颜色映射固定：good->green, monitor->yellow, urgent->red
 * @rules 汇总表无数据时返回空气泡列表而非错误，缓存未配置时直读数据库
 * @dependencies ulasis-service/service/models, github.com/go-redis/redis/v8
 * @refs service/analytics/period_aggregator.go, api/controllers/analytics_controller.go
 */

package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ulasis-service/service/config"
	"ulasis-service/service/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// 状态到气泡颜色的映射
var statusColors = map[string]string{
	models.AreaStatusGood:    "green",
	models.AreaStatusMonitor: "yellow",
	models.AreaStatusUrgent:  "red",
}

// AreaBubble 单个区域的气泡数据
// ResponseRate为该区域应答数占问卷当期应答总数的百分比
type AreaBubble struct {
	Area         string  `json:"area"`
	AvgRating    float64 `json:"avg_rating"`
	Responses    int64   `json:"responses"`
	ResponseRate float64 `json:"response_rate"`
	Trend        float64 `json:"trend"`
	Status       string  `json:"status"`
	Color        string  `json:"color"`
}

// PeriodComparison 当期与上期的对比
type PeriodComparison struct {
	CurrentAvgRating  float64 `json:"current_avg_rating"`
	PreviousAvgRating float64 `json:"previous_avg_rating"`
	RatingChange      float64 `json:"rating_change"`
	CurrentResponses  int64   `json:"current_responses"`
	PreviousResponses int64   `json:"previous_responses"`
	ResponsesChange   float64 `json:"responses_change"`
}

// BubbleAnalytics 气泡分析数据
type BubbleAnalytics struct {
	QuestionnaireID  string           `json:"questionnaire_id"`
	PeriodType       string           `json:"period_type"`
	PeriodDate       time.Time        `json:"period_date"`
	Bubbles          []AreaBubble     `json:"bubbles"`
	ResponseRate     float64          `json:"response_rate"`
	PeriodComparison PeriodComparison `json:"period_comparison"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// BubbleFormatter 气泡分析格式化器
type BubbleFormatter struct {
	db            *gorm.DB
	configService *config.ConfigService
	cache         *redis.Client // 可为nil，表示不启用缓存
	logger        *slog.Logger
}

// NewBubbleFormatter 创建气泡分析格式化器实例
func NewBubbleFormatter(db *gorm.DB, configService *config.ConfigService, cache *redis.Client, logger *slog.Logger) *BubbleFormatter {
	return &BubbleFormatter{
		db:            db,
		configService: configService,
		cache:         cache,
		logger:        logger,
	}
}

// GetBubbleAnalytics 获取指定问卷和周期的气泡分析数据
func (f *BubbleFormatter) GetBubbleAnalytics(ctx context.Context, questionnaireID, periodType string, at time.Time) (*BubbleAnalytics, error) {
	if !models.IsValidPeriodType(periodType) {
		return nil, fmt.Errorf("无效的周期类型: %s", periodType)
	}

	periodStart, err := PeriodStart(at, periodType)
	if err != nil {
		return nil, err
	}

	cacheKey := f.buildCacheKey(questionnaireID, periodType, periodStart)
	if cached := f.readCache(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	result, err := f.buildBubbleAnalytics(ctx, questionnaireID, periodType, periodStart)
	if err != nil {
		return nil, err
	}

	f.writeCache(ctx, cacheKey, result)
	return result, nil
}

// InvalidateCache 删除问卷在指定周期的气泡缓存，聚合重算后调用
func (f *BubbleFormatter) InvalidateCache(ctx context.Context, questionnaireID, periodType string, at time.Time) error {
	if f.cache == nil {
		return nil
	}
	periodStart, err := PeriodStart(at, periodType)
	if err != nil {
		return err
	}
	return f.cache.Del(ctx, f.buildCacheKey(questionnaireID, periodType, periodStart)).Err()
}

// buildBubbleAnalytics 从汇总表组装气泡数据
func (f *BubbleFormatter) buildBubbleAnalytics(ctx context.Context, questionnaireID, periodType string, periodStart time.Time) (*BubbleAnalytics, error) {
	var breakdowns []models.AnalyticsBreakdown
	err := f.db.WithContext(ctx).
		Where("questionnaire_id = ? AND period_type = ? AND period_date = ?",
			questionnaireID, periodType, periodStart).
		Order("avg_rating DESC").
		Find(&breakdowns).Error
	if err != nil {
		return nil, fmt.Errorf("查询区域分解失败: %w", err)
	}

	var totalAreaResponses int64
	for _, b := range breakdowns {
		totalAreaResponses += b.Responses
	}

	bubbles := make([]AreaBubble, 0, len(breakdowns))
	for _, b := range breakdowns {
		color, exists := statusColors[b.Status]
		if !exists {
			color = statusColors[models.AreaStatusMonitor]
		}
		var areaRate float64
		if totalAreaResponses > 0 {
			areaRate = round2(float64(b.Responses) / float64(totalAreaResponses) * 100)
		}
		bubbles = append(bubbles, AreaBubble{
			Area:         b.Area,
			AvgRating:    b.AvgRating,
			Responses:    b.Responses,
			ResponseRate: areaRate,
			Trend:        b.Trend,
			Status:       b.Status,
			Color:        color,
		})
	}

	result := &BubbleAnalytics{
		QuestionnaireID: questionnaireID,
		PeriodType:      periodType,
		PeriodDate:      periodStart,
		Bubbles:         bubbles,
		GeneratedAt:     time.Now(),
	}

	// KPI提供回收率和周期对比，缺失时保持零值
	var currentKPI models.AnalyticsKPI
	err = f.db.WithContext(ctx).
		Where("questionnaire_id = ? AND period_type = ? AND period_date = ?",
			questionnaireID, periodType, periodStart).
		First(&currentKPI).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("查询KPI汇总失败: %w", err)
		}
		return result, nil
	}

	result.ResponseRate = currentKPI.ResponseRate
	result.PeriodComparison = PeriodComparison{
		CurrentAvgRating: currentKPI.AvgRating,
		CurrentResponses: currentKPI.TotalResponses,
	}

	prevStart := PreviousPeriodStart(periodStart, periodType)
	var previousKPI models.AnalyticsKPI
	err = f.db.WithContext(ctx).
		Where("questionnaire_id = ? AND period_type = ? AND period_date = ?",
			questionnaireID, periodType, prevStart).
		First(&previousKPI).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("查询上期KPI失败: %w", err)
		}
		return result, nil
	}

	result.PeriodComparison.PreviousAvgRating = previousKPI.AvgRating
	result.PeriodComparison.PreviousResponses = previousKPI.TotalResponses
	result.PeriodComparison.RatingChange = TrendPercentage(currentKPI.AvgRating, previousKPI.AvgRating)
	result.PeriodComparison.ResponsesChange = TrendPercentage(
		float64(currentKPI.TotalResponses), float64(previousKPI.TotalResponses))

	return result, nil
}

// buildCacheKey 构造气泡缓存Key
func (f *BubbleFormatter) buildCacheKey(questionnaireID, periodType string, periodStart time.Time) string {
	return fmt.Sprintf("bubble_analytics:%s:%s:%s",
		questionnaireID, periodType, periodStart.Format("2006-01-02"))
}

// readCache 读取缓存，任何错误按未命中处理
func (f *BubbleFormatter) readCache(ctx context.Context, key string) *BubbleAnalytics {
	if f.cache == nil {
		return nil
	}

	data, err := f.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			f.logger.Warn("气泡缓存读取失败", "key", key, "error", err)
		}
		return nil
	}

	var result BubbleAnalytics
	if err := json.Unmarshal(data, &result); err != nil {
		f.logger.Warn("气泡缓存反序列化失败", "key", key, "error", err)
		return nil
	}
	return &result
}

// writeCache 回写缓存，失败仅记录日志
func (f *BubbleFormatter) writeCache(ctx context.Context, key string, result *BubbleAnalytics) {
	if f.cache == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		f.logger.Warn("气泡缓存序列化失败", "key", key, "error", err)
		return
	}

	ttl := time.Duration(f.configService.GetBubbleCacheTTLSeconds()) * time.Second
	if err := f.cache.Set(ctx, key, data, ttl).Err(); err != nil {
		f.logger.Warn("气泡缓存写入失败", "key", key, "error", err)
	}
}
