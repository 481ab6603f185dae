/*
 * @module api/controllers/statistics_controller
 * @description 统计控制器，提供问题级与问卷级的回答统计查询
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow HTTP请求 -> 统计聚合服务 -> 数据库
 * @rules 统计查询为实时计算，评分均值查询失败时返回降级结果而非静默置零
 * @dependencies ulasis-service/service, github.com/go-chi/render
 * @refs service/statistics/aggregator.go
 */

package controllers

import (
	"net/http"

	"ulasis-service/service"
	"ulasis-service/service/statistics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// StatisticsController 统计控制器
type StatisticsController struct {
	aggregator *statistics.Aggregator
}

// NewStatisticsController 创建统计控制器实例
func NewStatisticsController() *StatisticsController {
	return &StatisticsController{
		aggregator: service.GlobalStatisticsAggregator,
	}
}

// GetQuestionStatistics 获取单个问题统计
// @Summary 获取单个问题统计
// @Description 获取问题的回答数、跳过率、有效率和评分均值
// @Tags 统计
// @Produce json
// @Param id path string true "问题ID"
// @Success 200 {object} APIResponse{data=statistics.QuestionStatistics}
// @Failure 500 {object} APIResponse
// @Router /questions/{id}/statistics [get]
func (c *StatisticsController) GetQuestionStatistics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	stats, err := c.aggregator.GetStatistics(r.Context(), id, nil)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("统计查询失败: "+err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("查询成功", stats))
}

// GetQuestionnaireStatistics 获取问卷统计
// @Summary 获取问卷统计
// @Description 批量获取问卷下所有问题的统计结果
// @Tags 统计
// @Produce json
// @Param id path string true "问卷ID"
// @Success 200 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /questionnaires/{id}/statistics [get]
func (c *StatisticsController) GetQuestionnaireStatistics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	stats, err := c.aggregator.GetQuestionnaireStatistics(r.Context(), id)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("统计查询失败: "+err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("查询成功", stats))
}
