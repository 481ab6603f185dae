/**
 * @module SchedulerService
 * @description 周期聚合调度器，定时重算所有收集中问卷的分析汇总
 * @architecture 基于cron定时器的调度器模式，分布式锁防止多实例重复执行
 * @documentReference ../dev_docs/analytics_period.md
 * @stateFlow 定时触发 -> 抢占分布式锁 -> 聚合收集中问卷 -> 记录指标 -> 释放锁
 * @rules Cron表达式带秒字段，来自配置中心；单次执行失败不影响后续调度
 * @dependencies gorm, cron库, prometheus
 * @refs ../analytics/period_aggregator.go, ../distributed_lock/redis_lock.go
 */

package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"ulasis-service/service/analytics"
	"ulasis-service/service/config"
	"ulasis-service/service/distributed_lock"
)

// 聚合任务的分布式锁参数
const (
	aggregationLockKey      = "period_aggregation"
	aggregationLockTTL      = 10 * time.Minute
	aggregationLockRefresh  = 2 * time.Minute
	aggregationRunTimeout   = 8 * time.Minute
)

var (
	aggregationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analytics_aggregation_duration_seconds",
		Help:    "周期聚合任务耗时",
		Buckets: prometheus.DefBuckets,
	})
	aggregationRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_aggregation_runs_total",
		Help: "周期聚合任务执行次数",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(aggregationDuration, aggregationRuns)
}

// SchedulerService 周期聚合调度器
type SchedulerService struct {
	aggregator    *analytics.PeriodAggregator
	configService *config.ConfigService
	lockExecutor  *distributed_lock.LockExecutor // 可为nil，表示单实例部署
	cron          *cron.Cron
	logger        *slog.Logger
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewSchedulerService 创建调度器服务
func NewSchedulerService(aggregator *analytics.PeriodAggregator, configService *config.ConfigService, lockExecutor *distributed_lock.LockExecutor, logger *slog.Logger) *SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())

	return &SchedulerService{
		aggregator:    aggregator,
		configService: configService,
		lockExecutor:  lockExecutor,
		cron:          cron.New(cron.WithSeconds()),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start 启动调度器
func (s *SchedulerService) Start() error {
	cronExpr := s.configService.GetAggregationCron()

	_, err := s.cron.AddFunc(cronExpr, s.runAggregation)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("周期聚合调度器已启动", "cron", cronExpr)
	return nil
}

// Stop 停止调度器
func (s *SchedulerService) Stop() {
	s.cancel()
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	s.logger.Info("周期聚合调度器已停止")
}

// TriggerNow 立即触发一次聚合，供管理接口使用
func (s *SchedulerService) TriggerNow() {
	go s.runAggregation()
}

// runAggregation 执行一轮聚合，多实例环境下由分布式锁保证只跑一份
func (s *SchedulerService) runAggregation() {
	ctx, cancel := context.WithTimeout(s.ctx, aggregationRunTimeout)
	defer cancel()

	run := func() error {
		start := time.Now()
		err := s.aggregator.AggregateActiveQuestionnaires(ctx, start)
		aggregationDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			aggregationRuns.WithLabelValues("failure").Inc()
			s.logger.Error("周期聚合执行失败", "error", err, "duration", time.Since(start))
			return err
		}

		aggregationRuns.WithLabelValues("success").Inc()
		s.logger.Info("周期聚合执行完成", "duration", time.Since(start))
		return nil
	}

	if s.lockExecutor == nil {
		_ = run()
		return
	}

	err := s.lockExecutor.ExecuteWithLockAndRefresh(
		ctx, aggregationLockKey, aggregationLockTTL, aggregationLockRefresh, run)
	if err != nil {
		s.logger.Error("周期聚合任务加锁执行失败", "error", err)
	}
}
