/*
 * @module api/controllers/submission_controller
 * @description 反馈提交控制器，处理逐题提交、应答完成和应答查询请求
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow 提交回答 -> 校验 -> 落库 -> 更新进度
 * @rules 同一应答的同一问题只接受一次回答，重复提交返回409
 * @dependencies ulasis-service/service, github.com/go-chi/render
 * @refs service/response/submission_service.go
 */

package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"ulasis-service/service"
	"ulasis-service/service/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// SubmissionController 反馈提交控制器
type SubmissionController struct {
	service *response.SubmissionService
}

// NewSubmissionController 创建反馈提交控制器实例
func NewSubmissionController() *SubmissionController {
	return &SubmissionController{
		service: service.GlobalSubmissionService,
	}
}

// SubmitAnswerResult 提交回答结果
type SubmitAnswerResult struct {
	ResponseID         string  `json:"response_id"`
	AnswerID           string  `json:"answer_id"`
	ValidationStatus   string  `json:"validation_status"`
	ProgressPercentage float64 `json:"progress_percentage"`
	IsComplete         bool    `json:"is_complete"`
}

// SubmitAnswer 提交单题回答
// @Summary 提交单题回答
// @Description 提交回答，response_id为空时创建新应答。重复提交同一问题返回409
// @Tags 反馈提交
// @Accept json
// @Produce json
// @Param request body response.SubmitAnswerRequest true "提交回答请求"
// @Success 200 {object} APIResponse{data=SubmitAnswerResult}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /responses/answers [post]
func (c *SubmissionController) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req response.SubmitAnswerRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse(fmt.Sprintf("请求参数格式错误:%s", err.Error()), nil))
		return
	}
	if req.QuestionnaireID == "" || req.QuestionID == "" {
		render.JSON(w, r, BadRequestResponse("问卷ID和问题ID不能为空", nil))
		return
	}

	resp, answer, err := c.service.SubmitAnswer(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, response.ErrDuplicateAnswer):
			render.JSON(w, r, ConflictResponse(err.Error(), nil))
		case errors.Is(err, response.ErrQuestionNotFound), errors.Is(err, response.ErrResponseNotFound):
			render.JSON(w, r, NotFoundResponse(err.Error(), nil))
		default:
			render.JSON(w, r, BadRequestResponse(err.Error(), nil))
		}
		return
	}

	render.JSON(w, r, SuccessResponse("提交成功", SubmitAnswerResult{
		ResponseID:         resp.ID,
		AnswerID:           answer.ID,
		ValidationStatus:   answer.ValidationStatus,
		ProgressPercentage: resp.ProgressPercentage,
		IsComplete:         resp.IsComplete,
	}))
}

// CompleteResponseRequest 完成应答请求
type CompleteResponseRequest struct {
	CompletionTime *int `json:"completion_time,omitempty"` // 填答耗时，秒
}

// CompleteResponse 完成应答
// @Summary 完成应答
// @Description 将应答标记为完成，可附带填答耗时
// @Tags 反馈提交
// @Accept json
// @Produce json
// @Param id path string true "应答ID"
// @Param request body CompleteResponseRequest false "完成应答请求"
// @Success 200 {object} APIResponse{data=models.Response}
// @Failure 404 {object} APIResponse
// @Router /responses/{id}/complete [post]
func (c *SubmissionController) CompleteResponse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	var req CompleteResponseRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.JSON(w, r, BadRequestResponse("请求参数格式错误", nil))
			return
		}
	}

	resp, err := c.service.CompleteResponse(r.Context(), id, req.CompletionTime)
	if err != nil {
		if errors.Is(err, response.ErrResponseNotFound) {
			render.JSON(w, r, NotFoundResponse("应答不存在", nil))
			return
		}
		render.JSON(w, r, InternalErrorResponse(err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("完成成功", resp))
}

// GetResponse 获取应答详情
// @Summary 获取应答详情
// @Description 获取应答及其所有回答
// @Tags 反馈提交
// @Produce json
// @Param id path string true "应答ID"
// @Success 200 {object} APIResponse{data=models.Response}
// @Failure 404 {object} APIResponse
// @Router /responses/{id} [get]
func (c *SubmissionController) GetResponse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	resp, err := c.service.GetResponse(r.Context(), id)
	if err != nil {
		render.JSON(w, r, NotFoundResponse("应答不存在", nil))
		return
	}

	render.JSON(w, r, SuccessResponse("查询成功", resp))
}
