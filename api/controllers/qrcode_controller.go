/*
 * @module api/controllers/qrcode_controller
 * @description 二维码控制器，处理二维码创建、扫码进入和停用请求
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow 扫码请求 -> 限流检查 -> 口令校验 -> 返回问卷
 * @rules 扫码接口对设备做限流，口令错误不透露二维码其他信息
 * @dependencies ulasis-service/service, github.com/go-chi/render
 * @refs service/questionnaire/qrcode_service.go
 */

package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"ulasis-service/service"
	"ulasis-service/service/models"
	"ulasis-service/service/questionnaire"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// QRCodeController 二维码控制器
type QRCodeController struct {
	service *questionnaire.QRCodeService
}

// NewQRCodeController 创建二维码控制器实例
func NewQRCodeController() *QRCodeController {
	return &QRCodeController{
		service: service.GlobalQRCodeService,
	}
}

// CreateQRCodeRequest 创建二维码请求
type CreateQRCodeRequest struct {
	QuestionnaireID string `json:"questionnaire_id" binding:"required"`
	Label           string `json:"label"`
	Passcode        string `json:"passcode"`
}

// CreateQRCode 创建二维码
// @Summary 创建二维码
// @Description 为问卷创建投放二维码，可选设置访问口令
// @Tags 二维码
// @Accept json
// @Produce json
// @Param request body CreateQRCodeRequest true "创建二维码请求"
// @Success 200 {object} APIResponse{data=models.QRCode}
// @Failure 400 {object} APIResponse
// @Router /qr-codes [post]
func (c *QRCodeController) CreateQRCode(w http.ResponseWriter, r *http.Request) {
	var req CreateQRCodeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse(fmt.Sprintf("请求参数格式错误:%s", err.Error()), nil))
		return
	}
	if req.QuestionnaireID == "" {
		render.JSON(w, r, BadRequestResponse("问卷ID不能为空", nil))
		return
	}

	qrCode := &models.QRCode{
		QuestionnaireID: req.QuestionnaireID,
		Label:           req.Label,
	}
	if err := c.service.CreateQRCode(r.Context(), qrCode, req.Passcode); err != nil {
		render.JSON(w, r, BadRequestResponse(err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("创建成功", qrCode))
}

// ScanQRCodeRequest 扫码请求
type ScanQRCodeRequest struct {
	DeviceFingerprint string `json:"device_fingerprint" binding:"required"`
	Passcode          string `json:"passcode"`
}

// Scan 扫码进入问卷
// @Summary 扫码进入问卷
// @Description 扫码后校验状态与口令，累加扫码次数并返回问卷
// @Tags 二维码
// @Accept json
// @Produce json
// @Param id path string true "二维码ID"
// @Param request body ScanQRCodeRequest true "扫码请求"
// @Success 200 {object} APIResponse{data=questionnaire.ScanResult}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 429 {object} APIResponse
// @Router /qr-codes/{id}/scan [post]
func (c *QRCodeController) Scan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	var req ScanQRCodeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse(fmt.Sprintf("请求参数格式错误:%s", err.Error()), nil))
		return
	}

	result, err := c.service.Scan(r.Context(), id, req.DeviceFingerprint, req.Passcode)
	if err != nil {
		switch {
		case errors.Is(err, questionnaire.ErrQRCodeNotFound):
			render.JSON(w, r, NotFoundResponse("二维码不存在", nil))
		case errors.Is(err, questionnaire.ErrScanRateLimited):
			render.JSON(w, r, TooManyRequestsResponse(err.Error(), nil))
		default:
			render.JSON(w, r, BadRequestResponse(err.Error(), nil))
		}
		return
	}

	render.JSON(w, r, SuccessResponse("扫码成功", result))
}

// Disable 停用二维码
// @Summary 停用二维码
// @Description 停用后扫码将被拒绝
// @Tags 二维码
// @Produce json
// @Param id path string true "二维码ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /qr-codes/{id}/disable [post]
func (c *QRCodeController) Disable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("ID参数不能为空", nil))
		return
	}

	if err := c.service.DisableQRCode(r.Context(), id); err != nil {
		render.JSON(w, r, NotFoundResponse(err.Error(), nil))
		return
	}

	render.JSON(w, r, SuccessResponse("停用成功", nil))
}
