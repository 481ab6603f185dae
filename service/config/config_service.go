/*
 * @module service/config/config_service
 * @description 配置服务，提供业务层的配置管理功能和分析阈值读取
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/analytics_config.md
 * @stateFlow 服务调用 -> 配置管理器 -> 数据库/环境变量/默认值
 * @rules 阈值读取失败时一律回退到内置默认值，不向调用方传播错误
 * @dependencies ulasis-service/service/models, gorm.io/gorm, github.com/spf13/cast
 * @refs service/config/config_manager.go
 */

package config

import (
	"fmt"
	"ulasis-service/service/models"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// 配置键定义
const (
	// ConfigKeyStatusGoodMinRating 区域状态为 good 所需的最低平均评分
	ConfigKeyStatusGoodMinRating = "analytics.status.good_min_rating"
	// ConfigKeyStatusGoodMinTrend 区域状态为 good 所需的最低趋势百分比
	ConfigKeyStatusGoodMinTrend = "analytics.status.good_min_trend"
	// ConfigKeyStatusUrgentMaxRating 低于该平均评分时区域状态为 urgent
	ConfigKeyStatusUrgentMaxRating = "analytics.status.urgent_max_rating"
	// ConfigKeyStatusUrgentMaxTrend 趋势百分比不高于该值时区域状态为 urgent
	ConfigKeyStatusUrgentMaxTrend = "analytics.status.urgent_max_trend"
	// ConfigKeyPositiveSentimentMinRating 计入正向情绪的最低评分
	ConfigKeyPositiveSentimentMinRating = "analytics.positive_sentiment_min_rating"
	// ConfigKeyBubbleCacheTTLSeconds 气泡分析结果缓存秒数
	ConfigKeyBubbleCacheTTLSeconds = "analytics.bubble_cache_ttl_seconds"
	// ConfigKeyAggregationCron 周期聚合任务的 cron 表达式
	ConfigKeyAggregationCron = "analytics.aggregation_cron"
	// ConfigKeyScanRateLimitPerMinute 单设备每分钟扫码次数上限
	ConfigKeyScanRateLimitPerMinute = "qrcode.scan_rate_limit_per_minute"
	// ConfigKeyTrendRetentionDays 日粒度趋势数据保留天数
	ConfigKeyTrendRetentionDays = "analytics.trend_retention_days"
	// ConfigKeyAbandonedResponseRetentionDays 未完成应答保留天数
	ConfigKeyAbandonedResponseRetentionDays = "response.abandoned_retention_days"
)

// 默认值定义
const (
	DefaultStatusGoodMinRating         = 4.0
	DefaultStatusGoodMinTrend          = 0.0
	DefaultStatusUrgentMaxRating       = 3.0
	DefaultStatusUrgentMaxTrend        = -10.0
	DefaultPositiveSentimentMinRating  = 4.0
	DefaultBubbleCacheTTLSeconds       = 300
	DefaultAggregationCron             = "0 10 * * * *"
	DefaultScanRateLimitPerMinute      = 30
	DefaultTrendRetentionDays          = 365
	DefaultAbandonedRetentionDays      = 90
)

// StatusThresholds 区域状态判定阈值
type StatusThresholds struct {
	GoodMinRating   float64 `json:"good_min_rating"`
	GoodMinTrend    float64 `json:"good_min_trend"`
	UrgentMaxRating float64 `json:"urgent_max_rating"`
	UrgentMaxTrend  float64 `json:"urgent_max_trend"`
}

// ConfigService 配置服务
type ConfigService struct {
	db      *gorm.DB
	manager *ConfigManager
}

// NewConfigService 创建配置服务实例
func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{
		db:      db,
		manager: NewConfigManager(db),
	}
}

// GetSystemConfig 获取系统配置
func (s *ConfigService) GetSystemConfig(key string) (string, error) {
	return s.manager.GetConfig(key)
}

// SetSystemConfig 设置系统配置
func (s *ConfigService) SetSystemConfig(key, value, description string) error {
	return s.manager.SetConfig(key, value, description)
}

// GetAllSystemConfigs 获取所有系统配置
func (s *ConfigService) GetAllSystemConfigs() ([]models.SystemConfigItem, error) {
	var configs []models.SystemConfig
	err := s.db.Where("environment = ?", defaultEnvironment).Find(&configs).Error
	if err != nil {
		return nil, fmt.Errorf("查询配置失败: %w", err)
	}

	items := make([]models.SystemConfigItem, 0, len(configs))
	existingKeys := make(map[string]bool)
	for _, config := range configs {
		items = append(items, models.SystemConfigItem{
			Key:         config.Key,
			Value:       config.Value,
			Description: config.Description,
			ValueType:   "string", // 简化处理，都当字符串
		})
		existingKeys[config.Key] = true
	}

	// 补充数据库中不存在的默认配置
	defaults := []models.SystemConfigItem{
		{Key: ConfigKeyStatusGoodMinRating, Value: cast.ToString(DefaultStatusGoodMinRating), Description: "区域状态 good 的最低平均评分", ValueType: "float"},
		{Key: ConfigKeyStatusGoodMinTrend, Value: cast.ToString(DefaultStatusGoodMinTrend), Description: "区域状态 good 的最低趋势百分比", ValueType: "float"},
		{Key: ConfigKeyStatusUrgentMaxRating, Value: cast.ToString(DefaultStatusUrgentMaxRating), Description: "区域状态 urgent 的平均评分上限", ValueType: "float"},
		{Key: ConfigKeyStatusUrgentMaxTrend, Value: cast.ToString(DefaultStatusUrgentMaxTrend), Description: "区域状态 urgent 的趋势百分比上限", ValueType: "float"},
		{Key: ConfigKeyPositiveSentimentMinRating, Value: cast.ToString(DefaultPositiveSentimentMinRating), Description: "计入正向情绪的最低评分", ValueType: "float"},
		{Key: ConfigKeyBubbleCacheTTLSeconds, Value: cast.ToString(DefaultBubbleCacheTTLSeconds), Description: "气泡分析结果缓存秒数", ValueType: "int"},
		{Key: ConfigKeyAggregationCron, Value: DefaultAggregationCron, Description: "周期聚合任务 cron 表达式", ValueType: "string"},
		{Key: ConfigKeyScanRateLimitPerMinute, Value: cast.ToString(DefaultScanRateLimitPerMinute), Description: "单设备每分钟扫码次数上限", ValueType: "int"},
		{Key: ConfigKeyTrendRetentionDays, Value: cast.ToString(DefaultTrendRetentionDays), Description: "日粒度趋势数据保留天数", ValueType: "int"},
		{Key: ConfigKeyAbandonedResponseRetentionDays, Value: cast.ToString(DefaultAbandonedRetentionDays), Description: "未完成应答保留天数", ValueType: "int"},
	}
	for _, item := range defaults {
		if !existingKeys[item.Key] {
			items = append(items, item)
		}
	}

	return items, nil
}

// GetStatusThresholds 获取区域状态判定阈值
func (s *ConfigService) GetStatusThresholds() StatusThresholds {
	return StatusThresholds{
		GoodMinRating:   s.getFloat(ConfigKeyStatusGoodMinRating, DefaultStatusGoodMinRating),
		GoodMinTrend:    s.getFloat(ConfigKeyStatusGoodMinTrend, DefaultStatusGoodMinTrend),
		UrgentMaxRating: s.getFloat(ConfigKeyStatusUrgentMaxRating, DefaultStatusUrgentMaxRating),
		UrgentMaxTrend:  s.getFloat(ConfigKeyStatusUrgentMaxTrend, DefaultStatusUrgentMaxTrend),
	}
}

// GetPositiveSentimentMinRating 获取正向情绪最低评分
func (s *ConfigService) GetPositiveSentimentMinRating() float64 {
	return s.getFloat(ConfigKeyPositiveSentimentMinRating, DefaultPositiveSentimentMinRating)
}

// GetBubbleCacheTTLSeconds 获取气泡分析缓存秒数
func (s *ConfigService) GetBubbleCacheTTLSeconds() int {
	return s.getInt(ConfigKeyBubbleCacheTTLSeconds, DefaultBubbleCacheTTLSeconds)
}

// GetAggregationCron 获取周期聚合任务 cron 表达式
func (s *ConfigService) GetAggregationCron() string {
	value, err := s.manager.GetConfig(ConfigKeyAggregationCron)
	if err != nil || value == "" {
		return DefaultAggregationCron
	}
	return value
}

// GetScanRateLimitPerMinute 获取扫码频率限制
func (s *ConfigService) GetScanRateLimitPerMinute() int {
	return s.getInt(ConfigKeyScanRateLimitPerMinute, DefaultScanRateLimitPerMinute)
}

// GetTrendRetentionDays 获取日粒度趋势数据保留天数
func (s *ConfigService) GetTrendRetentionDays() int {
	return s.getInt(ConfigKeyTrendRetentionDays, DefaultTrendRetentionDays)
}

// GetAbandonedResponseRetentionDays 获取未完成应答保留天数
func (s *ConfigService) GetAbandonedResponseRetentionDays() int {
	return s.getInt(ConfigKeyAbandonedResponseRetentionDays, DefaultAbandonedRetentionDays)
}

// ClearCache 清除配置缓存
func (s *ConfigService) ClearCache() {
	s.manager.ClearCache()
}

func (s *ConfigService) getFloat(key string, defaultValue float64) float64 {
	valueStr, err := s.manager.GetConfig(key)
	if err != nil {
		return defaultValue
	}
	value, err := cast.ToFloat64E(valueStr)
	if err != nil {
		return defaultValue // 解析失败返回默认值
	}
	return value
}

func (s *ConfigService) getInt(key string, defaultValue int) int {
	valueStr, err := s.manager.GetConfig(key)
	if err != nil {
		return defaultValue
	}
	value, err := cast.ToIntE(valueStr)
	if err != nil {
		return defaultValue // 解析失败返回默认值
	}
	return value
}
