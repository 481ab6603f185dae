/*
 * @module api/controllers/questionnaire_controller
 * @description 问卷管理控制器，处理问卷与问题的增删改查请求
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow HTTP请求处理流程
 * @rules 统一的错误处理和响应格式，参数验证
 * @dependencies ulasis-service/service, github.com/go-chi/render
 * @refs dev_docs/model.md
 */

package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ulasis-service/service"
	"ulasis-service/service/models"
	"ulasis-service/service/questionnaire"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// QuestionnaireController 问卷控制器
type QuestionnaireController struct {
	service *questionnaire.QuestionnaireService
}

// NewQuestionnaireController 创建问卷控制器实例
func NewQuestionnaireController() *QuestionnaireController {
	return &QuestionnaireController{
		service: service.GlobalQuestionnaireService,
	}
}

// CreateQuestionnaire 创建问卷
// @Summary 创建问卷
// @Description 创建新问卷，初始状态为草稿
// @Tags 问卷管理
// @Accept json
// @Produce json
// @Param questionnaire body models.Questionnaire true "问卷信息"
// @Success 200 {object} APIResponse{data=models.Questionnaire}
// @Failure 400 {object} APIResponse
// @Router /questionnaires [post]
func (c *QuestionnaireController) CreateQuestionnaire(w http.ResponseWriter, r *http.Request) {
	var req models.Questionnaire
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse(fmt.Sprintf("请求参数格式错误:%s", err.Error()), nil))
		return
	}

	if err := c.service.CreateQuestionnaire(r.Context(), &req); err != nil {
		render.JSON(w, r, BadRequestResponse(err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("创建成功", &req))
}

// GetQuestionnaire 获取问卷详情
// @Summary 获取问卷详情
// @Description 根据ID获取问卷及其问题和二维码
// @Tags 问卷管理
// @Produce json
// @Param id path string true "问卷ID"
// @Success 200 {object} APIResponse{data=models.Questionnaire}
// @Failure 404 {object} APIResponse
// @Router /questionnaires/{id} [get]
func (c *QuestionnaireController) GetQuestionnaire(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	result, err := c.service.GetQuestionnaire(r.Context(), id)
	if err != nil {
		render.JSON(w, r, NotFoundResponse("问卷不存在", nil))
		return
	}

	render.JSON(w, r, SuccessResponse("查询成功", result))
}

// ListQuestionnaires 获取问卷列表
// @Summary 获取问卷列表
// @Description 分页获取问卷列表，可按商户过滤
// @Tags 问卷管理
// @Produce json
// @Param business_id query string false "商户ID"
// @Param page query int false "页码"
// @Param size query int false "每页数量"
// @Success 200 {object} PaginatedResponse
// @Router /questionnaires [get]
func (c *QuestionnaireController) ListQuestionnaires(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	list, total, err := c.service.ListQuestionnaires(r.Context(), businessID, page, size)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询失败: "+err.Error(), nil))
		return
	}

	render.JSON(w, r, PagedResponse("查询成功", list, total, page, size))
}

// UpdateQuestionnaire 更新问卷
// @Summary 更新问卷
// @Description 更新问卷信息，包括状态流转
// @Tags 问卷管理
// @Accept json
// @Produce json
// @Param id path string true "问卷ID"
// @Param updates body map[string]interface{} true "更新字段"
// @Success 200 {object} APIResponse{data=models.Questionnaire}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /questionnaires/{id} [put]
func (c *QuestionnaireController) UpdateQuestionnaire(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	var updates map[string]interface{}
	if err := render.DecodeJSON(r.Body, &updates); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数格式错误", nil))
		return
	}

	result, err := c.service.UpdateQuestionnaire(r.Context(), id, updates)
	if err != nil {
		if errors.Is(err, questionnaire.ErrQuestionnaireNotFound) {
			render.JSON(w, r, NotFoundResponse("问卷不存在", nil))
			return
		}
		render.JSON(w, r, BadRequestResponse(err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("更新成功", result))
}

// DeleteQuestionnaire 删除问卷
// @Summary 删除问卷
// @Description 软删除问卷
// @Tags 问卷管理
// @Produce json
// @Param id path string true "问卷ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /questionnaires/{id} [delete]
func (c *QuestionnaireController) DeleteQuestionnaire(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	if err := c.service.DeleteQuestionnaire(r.Context(), id); err != nil {
		if errors.Is(err, questionnaire.ErrQuestionnaireNotFound) {
			render.JSON(w, r, NotFoundResponse("问卷不存在", nil))
			return
		}
		render.JSON(w, r, InternalErrorResponse(err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("删除成功", nil))
}

// AddQuestion 添加问题
// @Summary 添加问题
// @Description 为问卷添加问题，校验规则脚本会先做语法检查
// @Tags 问卷管理
// @Accept json
// @Produce json
// @Param id path string true "问卷ID"
// @Param question body models.Question true "问题信息"
// @Success 200 {object} APIResponse{data=models.Question}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /questionnaires/{id}/questions [post]
func (c *QuestionnaireController) AddQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	var req models.Question
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse(fmt.Sprintf("请求参数格式错误:%s", err.Error()), nil))
		return
	}
	req.QuestionnaireID = id

	if err := c.service.AddQuestion(r.Context(), &req); err != nil {
		if errors.Is(err, questionnaire.ErrQuestionnaireNotFound) {
			render.JSON(w, r, NotFoundResponse("问卷不存在", nil))
			return
		}
		render.JSON(w, r, BadRequestResponse(err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("添加成功", &req))
}

// DeleteQuestion 删除问题
// @Summary 删除问题
// @Description 从问卷中删除指定问题
// @Tags 问卷管理
// @Produce json
// @Param id path string true "问卷ID"
// @Param questionId path string true "问题ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /questionnaires/{id}/questions/{questionId} [delete]
func (c *QuestionnaireController) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	questionID := chi.URLParam(r, "questionId")
	if id == "" || questionID == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	if err := c.service.DeleteQuestion(r.Context(), id, questionID); err != nil {
		render.JSON(w, r, NotFoundResponse(err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("删除成功", nil))
}
