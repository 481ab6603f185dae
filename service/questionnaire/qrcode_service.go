/*
 * @module service/questionnaire/qrcode_service
 * @description 二维码服务，管理问卷入口二维码、扫码计数和口令保护
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/qrcode_design.md
 * @stateFlow 创建二维码 -> 张贴扫码 -> 限流检查 -> 口令校验 -> 计数自增 -> 返回问卷
 * @rules 扫码计数用原子自增，作为回收率分母；口令只存bcrypt哈希
 * @dependencies ulasis-service/service/models, golang.org/x/crypto/bcrypt
 * @refs service/rate_limiter/redis_rate_limiter.go, api/controllers/qrcode_controller.go
 */

package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ulasis-service/service/config"
	"ulasis-service/service/models"
	"ulasis-service/service/rate_limiter"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// 业务错误定义
var (
	ErrQRCodeNotFound   = errors.New("二维码不存在")
	ErrQRCodeDisabled   = errors.New("二维码已停用")
	ErrPasscodeRequired = errors.New("该问卷需要访问口令")
	ErrPasscodeInvalid  = errors.New("访问口令不正确")
	ErrScanRateLimited  = errors.New("扫码过于频繁，请稍后再试")
)

// ScanResult 扫码结果
type ScanResult struct {
	QRCode        *models.QRCode        `json:"qr_code"`
	Questionnaire *models.Questionnaire `json:"questionnaire"`
}

// QRCodeService 二维码服务
type QRCodeService struct {
	db            *gorm.DB
	rateLimiter   *rate_limiter.RedisRateLimiter // 可为nil，表示不启用限流
	configService *config.ConfigService
	logger        *slog.Logger
}

// NewQRCodeService 创建二维码服务实例
func NewQRCodeService(db *gorm.DB, rateLimiter *rate_limiter.RedisRateLimiter, configService *config.ConfigService, logger *slog.Logger) *QRCodeService {
	return &QRCodeService{
		db:            db,
		rateLimiter:   rateLimiter,
		configService: configService,
		logger:        logger,
	}
}

// CreateQRCode 创建二维码，passcode非空时启用口令保护
func (s *QRCodeService) CreateQRCode(ctx context.Context, qrCode *models.QRCode, passcode string) error {
	var questionnaire models.Questionnaire
	err := s.db.WithContext(ctx).First(&questionnaire, "id = ?", qrCode.QuestionnaireID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrQuestionnaireNotFound
		}
		return fmt.Errorf("查询问卷失败: %w", err)
	}

	if passcode != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("口令哈希失败: %w", err)
		}
		qrCode.PasscodeHash = string(hash)
	}

	if qrCode.Status == "" {
		qrCode.Status = "active"
	}

	if err := s.db.WithContext(ctx).Create(qrCode).Error; err != nil {
		return fmt.Errorf("创建二维码失败: %w", err)
	}
	return nil
}

// Scan 处理一次扫码：限流、口令校验、计数自增，返回对应问卷
func (s *QRCodeService) Scan(ctx context.Context, qrCodeID, deviceFingerprint, passcode string) (*ScanResult, error) {
	if err := s.checkScanRateLimit(ctx, qrCodeID, deviceFingerprint); err != nil {
		return nil, err
	}

	var qrCode models.QRCode
	err := s.db.WithContext(ctx).
		Preload("Questionnaire").
		First(&qrCode, "id = ?", qrCodeID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrQRCodeNotFound
		}
		return nil, fmt.Errorf("查询二维码失败: %w", err)
	}

	if qrCode.Status != "active" {
		return nil, ErrQRCodeDisabled
	}

	if qrCode.IsProtected() {
		if passcode == "" {
			return nil, ErrPasscodeRequired
		}
		if bcrypt.CompareHashAndPassword([]byte(qrCode.PasscodeHash), []byte(passcode)) != nil {
			return nil, ErrPasscodeInvalid
		}
	}

	// 原子自增，多实例并发扫码不丢计数
	err = s.db.WithContext(ctx).Model(&models.QRCode{}).
		Where("id = ?", qrCodeID).
		UpdateColumn("scan_count", gorm.Expr("scan_count + ?", 1)).Error
	if err != nil {
		return nil, fmt.Errorf("更新扫码计数失败: %w", err)
	}
	qrCode.ScanCount++

	s.logger.Debug("二维码已扫码",
		"qr_code_id", qrCodeID,
		"scan_count", qrCode.ScanCount)

	return &ScanResult{
		QRCode:        &qrCode,
		Questionnaire: &qrCode.Questionnaire,
	}, nil
}

// DisableQRCode 停用二维码
func (s *QRCodeService) DisableQRCode(ctx context.Context, qrCodeID string) error {
	result := s.db.WithContext(ctx).Model(&models.QRCode{}).
		Where("id = ?", qrCodeID).
		Update("status", "disabled")
	if result.Error != nil {
		return fmt.Errorf("停用二维码失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrQRCodeNotFound
	}
	return nil
}

// checkScanRateLimit 扫码限流，限流器未配置时放行
func (s *QRCodeService) checkScanRateLimit(ctx context.Context, qrCodeID, deviceFingerprint string) error {
	if s.rateLimiter == nil {
		return nil
	}

	limit := s.configService.GetScanRateLimitPerMinute()
	rules := []rate_limiter.RateLimitRule{
		{
			Type:        rate_limiter.RateLimitTypeQRCode,
			TargetID:    qrCodeID,
			TimeWindow:  60,
			MaxRequests: limit * 10, // 单码整体上限放宽10倍
		},
	}
	if deviceFingerprint != "" {
		rules = append(rules, rate_limiter.RateLimitRule{
			Type:        rate_limiter.RateLimitTypeDevice,
			TargetID:    deviceFingerprint,
			TimeWindow:  60,
			MaxRequests: limit,
		})
	}

	result, err := s.rateLimiter.CheckRateLimit(ctx, rules)
	if err != nil {
		// 限流器故障时放行，避免Redis抖动阻断扫码
		s.logger.Warn("扫码限流检查失败，已放行", "qr_code_id", qrCodeID, "error", err)
		return nil
	}
	if !result.Allowed {
		return ErrScanRateLimited
	}
	return nil
}
