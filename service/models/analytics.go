/*
 * @module service/models/analytics
 * @description 分析汇总表模型，包括区域分解、日趋势和KPI快照
 * @architecture DDD领域驱动设计 - 实体模型（物化汇总）
 * @documentReference dev_docs/model.md
 * @stateFlow 周期聚合任务写入（upsert） -> 仪表盘读取
 * @rules 三张表均可由Answer+Response幂等重算；复合键唯一，重算走upsert而非插入
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/analytics
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 周期类型
const (
	PeriodTypeDay   = "day"
	PeriodTypeWeek  = "week"
	PeriodTypeMonth = "month"
	PeriodTypeYear  = "year"
)

// 区域状态档位
const (
	AreaStatusGood    = "good"
	AreaStatusMonitor = "monitor"
	AreaStatusUrgent  = "urgent"
)

// IsValidPeriodType 判断周期类型是否有效
func IsValidPeriodType(periodType string) bool {
	switch periodType {
	case PeriodTypeDay, PeriodTypeWeek, PeriodTypeMonth, PeriodTypeYear:
		return true
	}
	return false
}

// AnalyticsBreakdown 区域分解快照，每(问卷,周期类型,周期起点,区域)一行
// 唯一键用归一化分组键，Area保留展示标签
type AnalyticsBreakdown struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	QuestionnaireID string    `json:"questionnaire_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_breakdown_key"`
	PeriodType      string    `json:"period_type" gorm:"not null;size:10;uniqueIndex:idx_breakdown_key"`
	PeriodDate      time.Time `json:"period_date" gorm:"not null;uniqueIndex:idx_breakdown_key"`
	AreaKey         string    `json:"area_key" gorm:"not null;size:100;uniqueIndex:idx_breakdown_key"`
	Area            string    `json:"area" gorm:"not null;size:100"`
	AvgRating       float64   `json:"avg_rating" gorm:"not null;default:0;type:numeric(5,2)"`
	Responses       int64     `json:"responses" gorm:"not null;default:0"`
	Trend           float64   `json:"trend" gorm:"not null;default:0;type:numeric(8,2)"` // 相对上一周期的百分比变化
	Status          string    `json:"status" gorm:"not null;default:'monitor';size:20"`  // good, monitor, urgent
	GeneratedAt     time.Time `json:"generated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (b *AnalyticsBreakdown) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (AnalyticsBreakdown) TableName() string {
	return "analytics_breakdowns"
}

// AnalyticsTrend 周期内的日级时间序列
type AnalyticsTrend struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	QuestionnaireID string    `json:"questionnaire_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_trend_key"`
	PeriodType      string    `json:"period_type" gorm:"not null;size:10;uniqueIndex:idx_trend_key"`
	PeriodDate      time.Time `json:"period_date" gorm:"not null;uniqueIndex:idx_trend_key"`
	Date            time.Time `json:"date" gorm:"not null;uniqueIndex:idx_trend_key"`
	AvgRating       float64   `json:"avg_rating" gorm:"not null;default:0;type:numeric(5,2)"`
	ResponseRate    float64   `json:"response_rate" gorm:"not null;default:0;type:numeric(5,2)"`
	TrendValue      float64   `json:"trend_value" gorm:"not null;default:0;type:numeric(8,2)"`
	GeneratedAt     time.Time `json:"generated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (t *AnalyticsTrend) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (AnalyticsTrend) TableName() string {
	return "analytics_trends"
}

// AnalyticsKPI 周期顶层汇总，每(问卷,周期类型,周期起点)一行
type AnalyticsKPI struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	QuestionnaireID   string    `json:"questionnaire_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_kpi_key"`
	PeriodType        string    `json:"period_type" gorm:"not null;size:10;uniqueIndex:idx_kpi_key"`
	PeriodDate        time.Time `json:"period_date" gorm:"not null;uniqueIndex:idx_kpi_key"`
	TotalResponses    int64     `json:"total_responses" gorm:"not null;default:0"`
	AvgRating         float64   `json:"avg_rating" gorm:"not null;default:0;type:numeric(5,2)"`
	ResponseRate      float64   `json:"response_rate" gorm:"not null;default:0;type:numeric(5,2)"`       // 应答数/扫码数
	PositiveSentiment float64   `json:"positive_sentiment" gorm:"not null;default:0;type:numeric(5,2)"` // 评分达到正向阈值的占比
	GeneratedAt       time.Time `json:"generated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (k *AnalyticsKPI) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (AnalyticsKPI) TableName() string {
	return "analytics_kpis"
}
