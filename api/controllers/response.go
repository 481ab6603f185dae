package controllers

import "net/http"

// APIResponse 统一API响应结构
type APIResponse struct {
	Status int         `json:"status" example:"200"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Status int         `json:"status" example:"200"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total" example:"100"`
	Page   int         `json:"page" example:"1"`
	Size   int         `json:"size" example:"10"`
}

// SuccessResponse 成功响应
func SuccessResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusOK, Msg: msg, Data: data}
}

// BadRequestResponse 参数错误响应
func BadRequestResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusBadRequest, Msg: msg, Data: data}
}

// NotFoundResponse 资源不存在响应
func NotFoundResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusNotFound, Msg: msg, Data: data}
}

// ConflictResponse 资源冲突响应，用于重复提交等场景
func ConflictResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusConflict, Msg: msg, Data: data}
}

// TooManyRequestsResponse 限流响应
func TooManyRequestsResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusTooManyRequests, Msg: msg, Data: data}
}

// InternalErrorResponse 服务端错误响应
func InternalErrorResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusInternalServerError, Msg: msg, Data: data}
}

// PagedResponse 分页成功响应
func PagedResponse(msg string, data interface{}, total int64, page, size int) *PaginatedResponse {
	return &PaginatedResponse{Status: http.StatusOK, Msg: msg, Data: data, Total: total, Page: page, Size: size}
}
