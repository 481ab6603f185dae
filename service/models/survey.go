/*
 * @module service/models/survey
 * @description 问卷相关模型定义，包括问卷、问题、二维码等核心实体
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference dev_docs/model.md
 * @stateFlow 问卷创建 -> 发布 -> 收集反馈 -> 归档
 * @rules 遵循数据库设计规范，确保数据完整性和一致性
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs dev_docs/requirements.md
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Questionnaire 问卷模型
type Questionnaire struct {
	ID          string         `json:"id" gorm:"primaryKey;type:varchar(36)" example:"550e8400-e29b-41d4-a716-446655440000"`
	BusinessID  string         `json:"business_id" gorm:"not null;type:varchar(36);index" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name        string         `json:"name" gorm:"not null;size:255" example:"门店服务满意度调查"`
	Description string         `json:"description" gorm:"size:1000"`
	Status      string         `json:"status" gorm:"not null;default:'draft';size:20" example:"active"` // draft, active, archived
	CreatedAt   time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// 关联关系
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:QuestionnaireID"`
	QRCodes   []QRCode   `json:"qr_codes,omitempty" gorm:"foreignKey:QuestionnaireID"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (q *Questionnaire) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	return nil
}

// IsActive 判断问卷是否处于收集状态
func (q *Questionnaire) IsActive() bool {
	return q.Status == "active"
}

// Question 问题模型，category（服务区域）用于分析聚合分组
type Question struct {
	ID              string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	QuestionnaireID string         `json:"questionnaire_id" gorm:"not null;type:varchar(36);index"`
	Text            string         `json:"text" gorm:"not null;size:1000"`
	Category        string         `json:"category" gorm:"not null;size:100;index" example:"Service"`          // 区域标签，用于气泡分析分组
	CategoryKey     string         `json:"category_key" gorm:"not null;size:100;index" example:"service"`      // 归一化后的分组键
	QuestionType    string         `json:"question_type" gorm:"not null;size:20" example:"rating"`             // rating, text, choice
	MinValue        *float64       `json:"min_value,omitempty" gorm:"type:numeric"`                            // 数值校验下界
	MaxValue        *float64       `json:"max_value,omitempty" gorm:"type:numeric"`                            // 数值校验上界
	IsRequired      bool           `json:"is_required" gorm:"not null;default:false"`
	DisplayOrder    int            `json:"display_order" gorm:"not null;default:0"`
	ValidationRule  string         `json:"validation_rule,omitempty" gorm:"type:text"`                         // 可选的自定义校验脚本
	CreatedAt       time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`

	// 关联关系
	Questionnaire Questionnaire `json:"questionnaire,omitempty" gorm:"foreignKey:QuestionnaireID"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	return nil
}

// IsRatingType 判断是否为评分题
func (q *Question) IsRatingType() bool {
	return q.QuestionType == "rating"
}

// QRCode 二维码模型，scan_count作为回收率的分母
type QRCode struct {
	ID              string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	QuestionnaireID string         `json:"questionnaire_id" gorm:"not null;type:varchar(36);index"`
	Label           string         `json:"label" gorm:"not null;size:255" example:"前台-1号桌"`
	ScanCount       int64          `json:"scan_count" gorm:"not null;default:0"`
	PasscodeHash    string         `json:"-" gorm:"size:100"` // 受保护问卷的访问口令哈希，空表示公开
	Status          string         `json:"status" gorm:"not null;default:'active';size:20"` // active, disabled
	CreatedAt       time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`

	// 关联关系
	Questionnaire Questionnaire `json:"questionnaire,omitempty" gorm:"foreignKey:QuestionnaireID"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (c *QRCode) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// IsProtected 判断二维码是否需要口令
func (c *QRCode) IsProtected() bool {
	return c.PasscodeHash != ""
}
