/*
 * @module service/models/test_utils
 * @description 模型层测试工具，提供内存数据库和测试数据工厂
 * @architecture 测试基础设施
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 仅供 *_test.go 使用，保持测试环境一致性
 * @dependencies gorm, sqlite
 * @refs response.go, survey.go, analytics.go
 */

package models

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ModelTestDB 模型测试数据库
type ModelTestDB struct {
	DB *gorm.DB
}

// NewModelTestDB 创建内存测试数据库并迁移全部模型
func NewModelTestDB() *ModelTestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	err = db.AutoMigrate(
		&Questionnaire{},
		&Question{},
		&QRCode{},
		&Response{},
		&Answer{},
		&AnalyticsBreakdown{},
		&AnalyticsTrend{},
		&AnalyticsKPI{},
		&SystemConfig{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &ModelTestDB{DB: db}
}

// CleanDB 清空所有表
func (tdb *ModelTestDB) CleanDB() {
	tables := []string{
		"answers",
		"responses",
		"questions",
		"qr_codes",
		"questionnaires",
		"analytics_breakdowns",
		"analytics_trends",
		"analytics_kpis",
		"system_configs",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *ModelTestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// ModelTestDataFactory 模型测试数据工厂
type ModelTestDataFactory struct {
	DB *gorm.DB
}

// NewModelTestDataFactory 创建模型测试数据工厂
func NewModelTestDataFactory(db *gorm.DB) *ModelTestDataFactory {
	return &ModelTestDataFactory{DB: db}
}

// QuestionnaireOption 问卷选项函数类型
type QuestionnaireOption func(*Questionnaire)

// CreateQuestionnaire 创建测试问卷
func (f *ModelTestDataFactory) CreateQuestionnaire(opts ...QuestionnaireOption) *Questionnaire {
	questionnaire := &Questionnaire{
		BusinessID:  "test-business-001",
		Name:        "测试问卷",
		Description: "这是一个测试问卷",
		Status:      "active",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	for _, opt := range opts {
		opt(questionnaire)
	}

	if err := f.DB.Create(questionnaire).Error; err != nil {
		panic(fmt.Sprintf("failed to create test questionnaire: %v", err))
	}

	return questionnaire
}

// QuestionOption 问题选项函数类型
type QuestionOption func(*Question)

// CreateQuestion 创建测试问题
func (f *ModelTestDataFactory) CreateQuestion(questionnaireID string, opts ...QuestionOption) *Question {
	minValue := 1.0
	maxValue := 5.0
	question := &Question{
		QuestionnaireID: questionnaireID,
		Text:            "请为本次服务打分",
		Category:        "Service",
		CategoryKey:     "service",
		QuestionType:    "rating",
		MinValue:        &minValue,
		MaxValue:        &maxValue,
		IsRequired:      true,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	for _, opt := range opts {
		opt(question)
	}

	if err := f.DB.Create(question).Error; err != nil {
		panic(fmt.Sprintf("failed to create test question: %v", err))
	}

	return question
}

// ResponseOption 应答选项函数类型
type ResponseOption func(*Response)

// CreateResponse 创建测试应答
func (f *ModelTestDataFactory) CreateResponse(questionnaireID string, opts ...ResponseOption) *Response {
	response := &Response{
		QuestionnaireID:   questionnaireID,
		ResponseDate:      time.Now(),
		DeviceFingerprint: "test-device",
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	for _, opt := range opts {
		opt(response)
	}

	if err := f.DB.Create(response).Error; err != nil {
		panic(fmt.Sprintf("failed to create test response: %v", err))
	}

	return response
}

// QRCodeOption 二维码选项函数类型
type QRCodeOption func(*QRCode)

// CreateQRCode 创建测试二维码
func (f *ModelTestDataFactory) CreateQRCode(questionnaireID string, opts ...QRCodeOption) *QRCode {
	qrCode := &QRCode{
		QuestionnaireID: questionnaireID,
		Label:           "前台-1号桌",
		Status:          "active",
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	for _, opt := range opts {
		opt(qrCode)
	}

	if err := f.DB.Create(qrCode).Error; err != nil {
		panic(fmt.Sprintf("failed to create test qr code: %v", err))
	}

	return qrCode
}

// WithScanCount 设置扫码次数
func WithScanCount(count int64) QRCodeOption {
	return func(c *QRCode) {
		c.ScanCount = count
	}
}

// AnswerOption 回答选项函数类型
type AnswerOption func(*Answer)

// CreateAnswer 创建测试回答
func (f *ModelTestDataFactory) CreateAnswer(responseID, questionID string, opts ...AnswerOption) *Answer {
	answer := &Answer{
		ResponseID:       responseID,
		QuestionID:       questionID,
		ValidationStatus: ValidationStatusValid,
		CreatedAt:        time.Now(),
	}

	for _, opt := range opts {
		opt(answer)
	}

	if err := f.DB.Create(answer).Error; err != nil {
		panic(fmt.Sprintf("failed to create test answer: %v", err))
	}

	return answer
}

// WithResponseDate 设置应答提交日期
func WithResponseDate(date time.Time) ResponseOption {
	return func(r *Response) {
		r.ResponseDate = date
	}
}

// WithCategory 设置问题所属区域
func WithCategory(category, categoryKey string) QuestionOption {
	return func(q *Question) {
		q.Category = category
		q.CategoryKey = categoryKey
	}
}

// WithRating 设置评分回答
func WithRating(score float64) AnswerOption {
	return func(a *Answer) {
		a.RatingScore = &score
	}
}

// WithSkipped 设置跳过回答
func WithSkipped() AnswerOption {
	return func(a *Answer) {
		a.IsSkipped = true
		a.ValidationStatus = ValidationStatusPending
	}
}

// WithValidationStatus 设置校验状态
func WithValidationStatus(status string) AnswerOption {
	return func(a *Answer) {
		a.ValidationStatus = status
	}
}
