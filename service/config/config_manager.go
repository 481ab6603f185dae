/*
 * @module service/config/config_manager
 * @description 配置管理器，负责配置的数据库读写、环境变量覆盖和本地缓存
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/analytics_config.md
 * @stateFlow 配置读取 -> 缓存命中/数据库查询 -> 环境变量回退 -> 默认值
 * @rules 配置键统一使用小写点分隔格式，环境变量覆盖使用 ULASIS_ 前缀
 * @dependencies ulasis-service/service/models, gorm.io/gorm
 * @refs service/config/config_service.go
 */

package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"ulasis-service/service/models"

	"gorm.io/gorm"
)

// 配置环境名称，当前仅使用 default
const defaultEnvironment = "default"

// 环境变量覆盖前缀
const envPrefix = "ULASIS_"

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// ConfigManager 配置管理器
type ConfigManager struct {
	db *gorm.DB

	cacheLock    sync.RWMutex
	configCache  map[string]cacheEntry
	cacheEnabled bool
	cacheExpiry  time.Duration
}

// NewConfigManager 创建配置管理器实例
func NewConfigManager(db *gorm.DB) *ConfigManager {
	return &ConfigManager{
		db:           db,
		configCache:  make(map[string]cacheEntry),
		cacheEnabled: true,
		cacheExpiry:  5 * time.Minute,
	}
}

// GetConfig 获取指定键的配置值
// 优先级：缓存 -> 数据库 -> 环境变量，均未命中时返回错误
func (c *ConfigManager) GetConfig(key string) (string, error) {
	if c.cacheEnabled {
		c.cacheLock.RLock()
		entry, exists := c.configCache[key]
		c.cacheLock.RUnlock()
		if exists && time.Now().Before(entry.expiresAt) {
			return entry.value, nil
		}
	}

	var config models.SystemConfig
	err := c.db.Where("key = ? AND environment = ?", key, defaultEnvironment).
		First(&config).Error
	if err == nil {
		c.cacheSet(key, config.Value)
		return config.Value, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", fmt.Errorf("查询配置失败: %w", err)
	}

	// 数据库中不存在时回退到环境变量
	envKey := envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if value := os.Getenv(envKey); value != "" {
		c.cacheSet(key, value)
		return value, nil
	}

	return "", fmt.Errorf("配置 %s 不存在", key)
}

// SetConfig 设置配置值，已存在时更新
func (c *ConfigManager) SetConfig(key, value, description string) error {
	var config models.SystemConfig
	err := c.db.Where("key = ? AND environment = ?", key, defaultEnvironment).
		First(&config).Error

	if err == gorm.ErrRecordNotFound {
		config = models.SystemConfig{
			Key:         key,
			Value:       value,
			Description: description,
			Environment: defaultEnvironment,
		}
		if err := c.db.Create(&config).Error; err != nil {
			return fmt.Errorf("创建配置失败: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("查询配置失败: %w", err)
	} else {
		config.Value = value
		if description != "" {
			config.Description = description
		}
		if err := c.db.Save(&config).Error; err != nil {
			return fmt.Errorf("更新配置失败: %w", err)
		}
	}

	c.cacheLock.Lock()
	delete(c.configCache, key)
	c.cacheLock.Unlock()

	return nil
}

// ClearCache 清除配置缓存
func (c *ConfigManager) ClearCache() {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()
	c.configCache = make(map[string]cacheEntry)
}

func (c *ConfigManager) cacheSet(key, value string) {
	if !c.cacheEnabled {
		return
	}
	c.cacheLock.Lock()
	c.configCache[key] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(c.cacheExpiry),
	}
	c.cacheLock.Unlock()
}
