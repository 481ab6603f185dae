/*
 * @module service/models/response
 * @description 反馈提交相关模型定义，包括应答（Response）与单题回答（Answer）
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference dev_docs/model.md
 * @stateFlow 首题提交创建应答 -> 逐题追加回答 -> 进度重算 -> 完成
 * @rules (response_id, question_id) 复合唯一，重复提交拒绝而非覆盖；应答仅软删除
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/response, service/statistics
 */

package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 回答校验状态
const (
	ValidationStatusValid   = "valid"
	ValidationStatusInvalid = "invalid"
	ValidationStatusPending = "pending"
)

// Response 应答模型，代表一次完整或部分的问卷提交
type Response struct {
	ID                 string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	QuestionnaireID    string         `json:"questionnaire_id" gorm:"not null;type:varchar(36);index"`
	QRCodeID           *string        `json:"qr_code_id,omitempty" gorm:"type:varchar(36);index"`
	ResponseDate       time.Time      `json:"response_date" gorm:"not null;index"`
	DeviceFingerprint  string         `json:"device_fingerprint" gorm:"size:128"`
	IsComplete         bool           `json:"is_complete" gorm:"not null;default:false"`
	ProgressPercentage float64        `json:"progress_percentage" gorm:"not null;default:0;type:numeric(5,2)"`
	CompletionTime     *int           `json:"completion_time,omitempty"` // 秒
	CreatedAt          time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`

	// 关联关系
	Questionnaire Questionnaire `json:"questionnaire,omitempty" gorm:"foreignKey:QuestionnaireID"`
	Answers       []Answer      `json:"answers,omitempty" gorm:"foreignKey:ResponseID"`
}

// BeforeCreate GORM钩子，创建前生成UUID并补全提交日期
func (r *Response) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.ResponseDate.IsZero() {
		r.ResponseDate = time.Now()
	}
	return nil
}

// ApplyProgress 按已答题数重算进度，is_complete由进度推导
// totalQuestions为0时进度记0，避免除零
func (r *Response) ApplyProgress(answeredCount int64, totalQuestions int) {
	if totalQuestions <= 0 {
		r.ProgressPercentage = 0
		r.IsComplete = false
		return
	}
	pct := float64(answeredCount) / float64(totalQuestions) * 100
	r.ProgressPercentage = math.Round(pct*100) / 100
	r.IsComplete = r.ProgressPercentage >= 100
}

// Answer 单题回答模型，创建后除软删除外不可变
type Answer struct {
	ID               string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ResponseID       string           `json:"response_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_answer_response_question"`
	QuestionID       string           `json:"question_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_answer_response_question;index"`
	AnswerValue      string           `json:"answer_value" gorm:"type:text"`
	RatingScore      *float64         `json:"rating_score,omitempty" gorm:"type:numeric;index"`
	SelectedOptions  JSONBStringArray `json:"selected_options,omitempty" gorm:"type:jsonb"`
	IsSkipped        bool             `json:"is_skipped" gorm:"not null;default:false"`
	ValidationStatus string           `json:"validation_status" gorm:"not null;default:'pending';size:20"` // valid, invalid, pending
	ValidationErrors JSONBStringArray `json:"validation_errors,omitempty" gorm:"type:jsonb"`
	CreatedAt        time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt        gorm.DeletedAt   `json:"-" gorm:"index"`

	// 关联关系
	Response Response `json:"response,omitempty" gorm:"foreignKey:ResponseID"`
	Question Question `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (a *Answer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// IsValid 判断回答是否通过校验
func (a *Answer) IsValid() bool {
	return !a.IsSkipped && a.ValidationStatus == ValidationStatusValid
}

// CountsTowardRating 判断回答是否计入评分均值
func (a *Answer) CountsTowardRating() bool {
	return a.IsValid() && a.RatingScore != nil
}
