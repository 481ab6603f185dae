/*
 * @module api/controllers/analytics_controller
 * @description 分析控制器，提供气泡分析查询和手动触发聚合的接口
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow 查询缓存 -> 未命中读库 -> 组装气泡结果
 * @rules 聚合为幂等操作，可重复触发
 * @dependencies ulasis-service/service, github.com/go-chi/render
 * @refs service/analytics
 */

package controllers

import (
	"net/http"
	"time"

	"ulasis-service/service"
	"ulasis-service/service/analytics"
	"ulasis-service/service/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// AnalyticsController 分析控制器
type AnalyticsController struct {
	aggregator *analytics.PeriodAggregator
	formatter  *analytics.BubbleFormatter
}

// NewAnalyticsController 创建分析控制器实例
func NewAnalyticsController() *AnalyticsController {
	return &AnalyticsController{
		aggregator: service.GlobalPeriodAggregator,
		formatter:  service.GlobalBubbleFormatter,
	}
}

// GetBubbleAnalytics 获取气泡分析
// @Summary 获取气泡分析
// @Description 获取问卷在指定周期的区域气泡、趋势和环比数据
// @Tags 分析
// @Produce json
// @Param id path string true "问卷ID"
// @Param period_type query string false "周期类型 day/week/month/year，默认week"
// @Param date query string false "周期内任意日期，格式2006-01-02，默认当天"
// @Success 200 {object} APIResponse{data=analytics.BubbleAnalytics}
// @Failure 400 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /analytics/questionnaires/{id}/bubble [get]
func (c *AnalyticsController) GetBubbleAnalytics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	periodType := r.URL.Query().Get("period_type")
	if periodType == "" {
		periodType = models.PeriodTypeWeek
	}
	if !models.IsValidPeriodType(periodType) {
		render.JSON(w, r, BadRequestResponse("无效的周期类型: "+periodType, nil))
		return
	}

	at := time.Now()
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
		if err != nil {
			render.JSON(w, r, BadRequestResponse("日期格式错误，应为2006-01-02", nil))
			return
		}
		at = parsed
	}

	result, err := c.formatter.GetBubbleAnalytics(r.Context(), id, periodType, at)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("气泡分析查询失败: "+err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("查询成功", result))
}

// AggregateQuestionnaire 手动触发问卷聚合
// @Summary 手动触发问卷聚合
// @Description 立即对问卷执行日/周/月/年四个周期的聚合
// @Tags 分析
// @Produce json
// @Param id path string true "问卷ID"
// @Success 200 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /analytics/questionnaires/{id}/aggregate [post]
func (c *AnalyticsController) AggregateQuestionnaire(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	if err := c.aggregator.AggregateAllPeriods(r.Context(), id, time.Now()); err != nil {
		render.JSON(w, r, InternalErrorResponse("聚合失败: "+err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("聚合完成", nil))
}

// TriggerAggregation 触发全量聚合
// @Summary 触发全量聚合
// @Description 异步触发所有收集中问卷的周期聚合，与定时任务走同一执行路径
// @Tags 分析
// @Produce json
// @Success 200 {object} APIResponse
// @Router /analytics/aggregate [post]
func (c *AnalyticsController) TriggerAggregation(w http.ResponseWriter, r *http.Request) {
	service.GlobalSchedulerService.TriggerNow()
	render.JSON(w, r, SuccessResponse("聚合任务已触发", nil))
}
