/*
 * @module service/analytics/period
 * @description 周期计算工具，提供日/周/月/年的边界归一化和上一周期推导
 * @architecture 工具层 - 纯函数，无外部依赖
 * @documentReference dev_docs/analytics_period.md
 * @stateFlow 任意时间点 -> 归一化到周期起点 -> 推导周期终点和上一周期
 * @rules 周以ISO规则从周一开始，所有边界使用输入时间的时区
 * @refs service/analytics/period_aggregator.go
 */

package analytics

import (
	"fmt"
	"time"
	"ulasis-service/service/models"
)

// PeriodStart 返回时间点所在周期的起点（零点）
func PeriodStart(t time.Time, periodType string) (time.Time, error) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())

	switch periodType {
	case models.PeriodTypeDay:
		return day, nil
	case models.PeriodTypeWeek:
		// ISO周从周一开始，周日回退6天
		offset := int(day.Weekday()) - int(time.Monday)
		if offset < 0 {
			offset += 7
		}
		return day.AddDate(0, 0, -offset), nil
	case models.PeriodTypeMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()), nil
	case models.PeriodTypeYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("无效的周期类型: %s", periodType)
	}
}

// PeriodEnd 返回周期起点对应的下一周期起点（半开区间右端）
func PeriodEnd(start time.Time, periodType string) time.Time {
	switch periodType {
	case models.PeriodTypeDay:
		return start.AddDate(0, 0, 1)
	case models.PeriodTypeWeek:
		return start.AddDate(0, 0, 7)
	case models.PeriodTypeMonth:
		return start.AddDate(0, 1, 0)
	case models.PeriodTypeYear:
		return start.AddDate(1, 0, 0)
	default:
		return start
	}
}

// PreviousPeriodStart 返回上一周期的起点
func PreviousPeriodStart(start time.Time, periodType string) time.Time {
	switch periodType {
	case models.PeriodTypeDay:
		return start.AddDate(0, 0, -1)
	case models.PeriodTypeWeek:
		return start.AddDate(0, 0, -7)
	case models.PeriodTypeMonth:
		return start.AddDate(0, -1, 0)
	case models.PeriodTypeYear:
		return start.AddDate(-1, 0, 0)
	default:
		return start
	}
}

// TrendPercentage 计算相对上一周期的百分比变化，保留两位小数
// 上一周期为零时返回0，避免除零产生无穷大
func TrendPercentage(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return round2((current - previous) / previous * 100)
}
