/*
 * @module service/cleanup/retention_service
 * @description 数据保留服务，负责定期清理过期的日粒度趋势数据和长期未完成的应答
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/analytics_config.md
 * @stateFlow 定时触发 -> 读取保留配置 -> 执行清理 -> 记录结果
 * @rules 清理只针对日粒度趋势和未完成应答，已完成的反馈数据永久保留
 * @dependencies ulasis-service/service/config, gorm.io/gorm, github.com/robfig/cron/v3
 * @refs service/config
 */

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ulasis-service/service/config"
	"ulasis-service/service/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// RetentionService 数据保留服务
type RetentionService struct {
	db            *gorm.DB
	configService *config.ConfigService
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
}

// NewRetentionService 创建数据保留服务实例
func NewRetentionService(db *gorm.DB, configService *config.ConfigService) *RetentionService {
	ctx, cancel := context.WithCancel(context.Background())

	return &RetentionService{
		db:            db,
		configService: configService,
		cron:          cron.New(cron.WithSeconds()),
		ctx:           ctx,
		cancel:        cancel,
		started:       false,
	}
}

// CleanupExpiredData 清理所有过期数据
func (s *RetentionService) CleanupExpiredData(ctx context.Context) error {
	slog.Info("开始清理过期数据")
	startTime := time.Now()

	// 1. 清理日粒度趋势数据
	trendRetentionDays := s.configService.GetTrendRetentionDays()
	trendDeleted, err := s.CleanupDailyTrends(ctx, trendRetentionDays)
	if err != nil {
		slog.Error("清理日粒度趋势数据失败", "error", err)
	} else {
		slog.Info("清理日粒度趋势数据完成", "deleted_count", trendDeleted, "retention_days", trendRetentionDays)
	}

	// 2. 清理长期未完成的应答
	abandonedRetentionDays := s.configService.GetAbandonedResponseRetentionDays()
	responseDeleted, err := s.CleanupAbandonedResponses(ctx, abandonedRetentionDays)
	if err != nil {
		slog.Error("清理未完成应答失败", "error", err)
	} else {
		slog.Info("清理未完成应答完成", "deleted_count", responseDeleted, "retention_days", abandonedRetentionDays)
	}

	duration := time.Since(startTime)
	slog.Info("过期数据清理完成",
		"trend_deleted", trendDeleted,
		"response_deleted", responseDeleted,
		"duration_ms", duration.Milliseconds())

	return nil
}

// CleanupDailyTrends 清理超出保留期的日粒度趋势数据
// 周、月、年粒度的聚合结果不在清理范围内
func (s *RetentionService) CleanupDailyTrends(ctx context.Context, retentionDays int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	slog.Debug("清理日粒度趋势数据", "cutoff_date", cutoffDate.Format("2006-01-02"), "retention_days", retentionDays)

	result := s.db.WithContext(ctx).
		Where("period_type = ? AND period_date < ?", models.PeriodTypeDay, cutoffDate).
		Delete(&models.AnalyticsTrend{})

	if result.Error != nil {
		return 0, fmt.Errorf("删除日粒度趋势数据失败: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// CleanupAbandonedResponses 清理长期未完成的应答及其回答
// 已完成的应答不受保留期限制
func (s *RetentionService) CleanupAbandonedResponses(ctx context.Context, retentionDays int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	slog.Debug("清理未完成应答", "cutoff_date", cutoffDate.Format("2006-01-02"), "retention_days", retentionDays)

	// 先删回答，再删应答，保证中途失败不会留下无主回答的反向情况
	abandoned := s.db.WithContext(ctx).Model(&models.Response{}).
		Select("id").
		Where("is_complete = ? AND updated_at < ?", false, cutoffDate)

	if err := s.db.WithContext(ctx).
		Where("response_id IN (?)", abandoned).
		Delete(&models.Answer{}).Error; err != nil {
		return 0, fmt.Errorf("删除未完成应答的回答失败: %w", err)
	}

	result := s.db.WithContext(ctx).
		Where("is_complete = ? AND updated_at < ?", false, cutoffDate).
		Delete(&models.Response{})

	if result.Error != nil {
		return 0, fmt.Errorf("删除未完成应答失败: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// StartScheduledCleanup 启动定时清理任务
func (s *RetentionService) StartScheduledCleanup() error {
	if s.started {
		return fmt.Errorf("数据保留调度器已经启动")
	}

	slog.Info("启动数据保留调度器")

	// 每天凌晨2点执行清理任务
	// Cron表达式：秒 分 时 日 月 周
	_, err := s.cron.AddFunc("0 0 2 * * *", func() {
		slog.Info("开始执行定时数据清理任务")

		if err := s.CleanupExpiredData(s.ctx); err != nil {
			slog.Error("定时数据清理任务失败", "error", err)
		}
	})

	if err != nil {
		return fmt.Errorf("添加定时任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true

	slog.Info("数据保留调度器启动成功，将于每天凌晨2点执行清理任务")

	return nil
}

// StopScheduledCleanup 停止定时清理任务
func (s *RetentionService) StopScheduledCleanup() {
	if !s.started {
		return
	}

	slog.Info("停止数据保留调度器")

	s.cancel()

	if s.cron != nil {
		s.cron.Stop()
	}

	s.started = false

	slog.Info("数据保留调度器已停止")
}
