/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs dev_docs/model.md
 */

package api

import (
	"ulasis-service/api/controllers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 问卷管理
	r.Route("/questionnaires", func(r chi.Router) {
		questionnaireController := controllers.NewQuestionnaireController()
		statisticsController := controllers.NewStatisticsController()

		// 基础CRUD操作
		r.Post("/", questionnaireController.CreateQuestionnaire)
		r.Get("/", questionnaireController.ListQuestionnaires)
		r.Get("/{id}", questionnaireController.GetQuestionnaire)
		r.Put("/{id}", questionnaireController.UpdateQuestionnaire)
		r.Delete("/{id}", questionnaireController.DeleteQuestionnaire)

		// 问题管理
		r.Post("/{id}/questions", questionnaireController.AddQuestion)
		r.Delete("/{id}/questions/{questionId}", questionnaireController.DeleteQuestion)

		// 问卷级统计
		r.Get("/{id}/statistics", statisticsController.GetQuestionnaireStatistics)
	})

	// 问题级统计
	r.Route("/questions", func(r chi.Router) {
		statisticsController := controllers.NewStatisticsController()
		r.Get("/{id}/statistics", statisticsController.GetQuestionStatistics)
	})

	// 二维码管理
	r.Route("/qr-codes", func(r chi.Router) {
		qrCodeController := controllers.NewQRCodeController()
		r.Post("/", qrCodeController.CreateQRCode)
		r.Post("/{id}/scan", qrCodeController.Scan)
		r.Post("/{id}/disable", qrCodeController.Disable)
	})

	// 反馈提交
	r.Route("/responses", func(r chi.Router) {
		submissionController := controllers.NewSubmissionController()
		r.Post("/answers", submissionController.SubmitAnswer)
		r.Get("/{id}", submissionController.GetResponse)
		r.Post("/{id}/complete", submissionController.CompleteResponse)
	})

	// 周期分析
	r.Route("/analytics", func(r chi.Router) {
		analyticsController := controllers.NewAnalyticsController()
		r.Get("/questionnaires/{id}/bubble", analyticsController.GetBubbleAnalytics)
		r.Post("/questionnaires/{id}/aggregate", analyticsController.AggregateQuestionnaire)
		r.Post("/aggregate", analyticsController.TriggerAggregation)
	})

	// 系统配置
	r.Route("/config", func(r chi.Router) {
		configController := controllers.NewConfigController()
		r.Get("/", configController.GetAllConfigs)
		r.Get("/{key}", configController.GetConfig)
		r.Put("/{key}", configController.UpdateConfig)
	})
}
