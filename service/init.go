/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、配置加载和各分析服务的装配
 * @architecture 分层架构 - 服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 应用启动时执行初始化流程
 * @rules 确保所有依赖服务正常启动后才提供API服务，Redis与Kafka不可用时降级为单机模式
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs dev_docs/model.md
 */

package service

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"ulasis-service/logger"
	"ulasis-service/service/analytics"
	"ulasis-service/service/cleanup"
	"ulasis-service/service/config"
	"ulasis-service/service/database"
	"ulasis-service/service/distributed_lock"
	"ulasis-service/service/event"
	"ulasis-service/service/questionnaire"
	"ulasis-service/service/rate_limiter"
	"ulasis-service/service/response"
	"ulasis-service/service/scheduler"
	"ulasis-service/service/statistics"
	"ulasis-service/service/validation"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB                         *gorm.DB
	GlobalConfigService        *config.ConfigService
	GlobalValidator            *validation.Validator
	GlobalEventPublisher       event.Publisher
	GlobalStatisticsAggregator *statistics.Aggregator
	GlobalPeriodAggregator     *analytics.PeriodAggregator
	GlobalBubbleFormatter      *analytics.BubbleFormatter
	GlobalSubmissionService    *response.SubmissionService
	GlobalQuestionnaireService *questionnaire.QuestionnaireService
	GlobalQRCodeService        *questionnaire.QRCodeService
	GlobalSchedulerService     *scheduler.SchedulerService
	GlobalRetentionService     *cleanup.RetentionService
)

func init() {
	logger.InitLogger()
	initDatabase()
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		// 使用分离的环境变量构建连接字符串
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "ulasis2024")
		dbname := getEnvWithDefault("DB_NAME", "ulasis")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=Europe/Berlin",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移
func runMigrations() {
	log.Println("开始运行数据库迁移...")

	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库表结构迁移完成")

	if err := database.InitializeData(DB); err != nil {
		log.Fatalf("基础数据初始化失败: %v", err)
	}
	log.Println("基础数据初始化完成")
}

// initServices 初始化服务
func initServices() {
	logger := slog.Default()

	GlobalConfigService = config.NewConfigService(DB)
	GlobalValidator = validation.NewValidator()
	GlobalEventPublisher = initEventPublisher(logger)

	// 统计聚合服务
	answerRepo := statistics.NewGormAnswerRepository(DB)
	GlobalStatisticsAggregator = statistics.NewAggregator(answerRepo, logger)

	// 气泡分析缓存与扫码限流依赖Redis，连接失败时降级
	cache := initRedisCache(logger)
	rateLimiter := initRateLimiter(logger)

	GlobalPeriodAggregator = analytics.NewPeriodAggregator(DB, GlobalConfigService, GlobalEventPublisher, logger)
	GlobalBubbleFormatter = analytics.NewBubbleFormatter(DB, GlobalConfigService, cache, logger)
	// 聚合重算后失效对应周期的气泡缓存
	GlobalPeriodAggregator.SetBubbleFormatter(GlobalBubbleFormatter)
	GlobalSubmissionService = response.NewSubmissionService(DB, GlobalValidator, GlobalEventPublisher, logger)
	GlobalQuestionnaireService = questionnaire.NewQuestionnaireService(DB, GlobalValidator, logger)
	GlobalQRCodeService = questionnaire.NewQRCodeService(DB, rateLimiter, GlobalConfigService, logger)

	// 周期聚合调度器，多实例部署时通过分布式锁防止重复执行
	lockExecutor := initLockExecutor(logger)
	GlobalSchedulerService = scheduler.NewSchedulerService(GlobalPeriodAggregator, GlobalConfigService, lockExecutor, logger)
	if err := GlobalSchedulerService.Start(); err != nil {
		log.Printf("启动聚合调度器失败: %v", err)
	}

	// 数据保留清理任务
	GlobalRetentionService = cleanup.NewRetentionService(DB, GlobalConfigService)
	if err := GlobalRetentionService.StartScheduledCleanup(); err != nil {
		log.Printf("启动数据保留调度器失败: %v", err)
	}

	log.Println("服务初始化完成")
}

// initEventPublisher 初始化事件发布器，未配置Kafka时使用空实现
func initEventPublisher(logger *slog.Logger) event.Publisher {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		logger.Info("未配置KAFKA_BROKERS，事件发布降级为空实现")
		return event.NewNoopPublisher()
	}

	return event.NewKafkaPublisher(&event.KafkaPublisherConfig{
		Brokers:      strings.Split(brokers, ","),
		Topic:        getEnvWithDefault("KAFKA_TOPIC", "ulasis.feedback.events"),
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}, logger)
}

// initRedisCache 初始化气泡分析结果缓存
func initRedisCache(logger *slog.Logger) *redis.Client {
	host := getEnvWithDefault("REDIS_HOST", "localhost")
	port := getEnvWithDefault("REDIS_PORT", "6379")
	db := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsed, err := strconv.Atoi(dbStr); err == nil {
			db = parsed
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(client.Context()).Err(); err != nil {
		logger.Warn("Redis连接失败，气泡分析缓存关闭", "error", err)
		return nil
	}
	return client
}

// initRateLimiter 初始化扫码限流器，Redis不可用时不限流
func initRateLimiter(logger *slog.Logger) *rate_limiter.RedisRateLimiter {
	limiter, err := rate_limiter.NewRedisRateLimiter()
	if err != nil {
		logger.Warn("限流器初始化失败，扫码限流关闭", "error", err)
		return nil
	}
	return limiter
}

// initLockExecutor 初始化分布式锁执行器，Redis不可用时调度器单机执行
func initLockExecutor(logger *slog.Logger) *distributed_lock.LockExecutor {
	lock, err := distributed_lock.NewRedisLock()
	if err != nil {
		logger.Warn("分布式锁初始化失败，聚合任务单机执行", "error", err)
		return nil
	}
	return distributed_lock.NewLockExecutor(lock)
}
