/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新数据库表结构
 * @architecture 数据访问层 - 迁移管理
 * @documentReference dev_docs/model.md
 * @stateFlow 应用启动时执行数据库迁移
 * @rules 确保数据库结构与模型定义保持一致
 * @dependencies ulasis-service/service/models, gorm.io/gorm
 * @refs dev_docs/backend_requirements.md
 */

package database

import (
	"log"
	"ulasis-service/service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	// 问卷相关表
	err := db.AutoMigrate(
		&models.Questionnaire{},
		&models.Question{},
		&models.QRCode{},
	)
	if err != nil {
		return err
	}

	// 反馈响应相关表
	err = db.AutoMigrate(
		&models.Response{},
		&models.Answer{},
	)
	if err != nil {
		return err
	}

	// 分析聚合相关表
	err = db.AutoMigrate(
		&models.AnalyticsBreakdown{},
		&models.AnalyticsTrend{},
		&models.AnalyticsKPI{},
	)
	if err != nil {
		return err
	}

	// 系统配置表
	err = db.AutoMigrate(
		&models.SystemConfig{},
	)
	if err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}

// defaultConfigs 首次启动时写入的默认配置
var defaultConfigs = []models.SystemConfig{
	{Key: "analytics.status.good_min_rating", Value: "4.0", Description: "良好状态的最低平均评分"},
	{Key: "analytics.status.good_min_trend", Value: "0", Description: "良好状态的最低趋势百分比"},
	{Key: "analytics.status.urgent_max_rating", Value: "3.0", Description: "紧急状态的最高平均评分"},
	{Key: "analytics.status.urgent_max_trend", Value: "-10", Description: "紧急状态的趋势下跌阈值"},
	{Key: "analytics.positive_sentiment_min_rating", Value: "4.0", Description: "正面评价的最低评分"},
	{Key: "analytics.bubble_cache_ttl_seconds", Value: "300", Description: "气泡分析缓存过期秒数"},
	{Key: "analytics.aggregation_cron", Value: "0 10 * * * *", Description: "周期聚合任务的Cron表达式"},
	{Key: "qrcode.scan_rate_limit_per_minute", Value: "30", Description: "单设备每分钟扫码次数上限"},
	{Key: "analytics.trend_retention_days", Value: "365", Description: "日粒度趋势数据保留天数"},
	{Key: "response.abandoned_retention_days", Value: "90", Description: "未完成应答保留天数"},
}

// InitializeData 初始化基础数据，已存在的配置不会被覆盖
func InitializeData(db *gorm.DB) error {
	for _, config := range defaultConfigs {
		var count int64
		err := db.Model(&models.SystemConfig{}).
			Where("key = ? AND environment = ?", config.Key, "default").
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		config.ID = uuid.New().String()
		config.Environment = "default"
		if err := db.Create(&config).Error; err != nil {
			return err
		}
	}

	log.Println("基础配置初始化完成")
	return nil
}
