package questionnaire

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"ulasis-service/service/config"
	"ulasis-service/service/models"
	"ulasis-service/service/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// QuestionnaireServiceTestSuite 问卷管理服务测试套件
type QuestionnaireServiceTestSuite struct {
	suite.Suite
	testDB  *models.ModelTestDB
	factory *models.ModelTestDataFactory
	service *QuestionnaireService
	qrSvc   *QRCodeService
}

func (suite *QuestionnaireServiceTestSuite) SetupSuite() {
	suite.testDB = models.NewModelTestDB()
	suite.factory = models.NewModelTestDataFactory(suite.testDB.DB)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	validator := validation.NewValidator()
	suite.service = NewQuestionnaireService(suite.testDB.DB, validator, logger)
	suite.qrSvc = NewQRCodeService(
		suite.testDB.DB, nil, config.NewConfigService(suite.testDB.DB), logger)
}

func (suite *QuestionnaireServiceTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

func (suite *QuestionnaireServiceTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

// TestCreateAndGetQuestionnaire 测试问卷创建和查询
func (suite *QuestionnaireServiceTestSuite) TestCreateAndGetQuestionnaire() {
	ctx := context.Background()
	questionnaire := &models.Questionnaire{
		BusinessID: "biz-001",
		Name:       "门店服务满意度调查",
	}

	err := suite.service.CreateQuestionnaire(ctx, questionnaire)
	require.NoError(suite.T(), err)
	assert.NotEmpty(suite.T(), questionnaire.ID)
	assert.Equal(suite.T(), "draft", questionnaire.Status)

	found, err := suite.service.GetQuestionnaire(ctx, questionnaire.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), questionnaire.Name, found.Name)

	_, err = suite.service.GetQuestionnaire(ctx, "missing")
	assert.ErrorIs(suite.T(), err, ErrQuestionnaireNotFound)
}

// TestCreateQuestionnaireInvalidStatus 测试无效状态被拒绝
func (suite *QuestionnaireServiceTestSuite) TestCreateQuestionnaireInvalidStatus() {
	err := suite.service.CreateQuestionnaire(context.Background(), &models.Questionnaire{
		BusinessID: "biz-001",
		Name:       "测试",
		Status:     "published",
	})
	assert.ErrorIs(suite.T(), err, ErrInvalidStatus)
}

// TestListQuestionnaires 测试分页列表
func (suite *QuestionnaireServiceTestSuite) TestListQuestionnaires() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		suite.factory.CreateQuestionnaire(func(q *models.Questionnaire) {
			q.BusinessID = "biz-list"
		})
	}
	suite.factory.CreateQuestionnaire(func(q *models.Questionnaire) {
		q.BusinessID = "biz-other"
	})

	list, total, err := suite.service.ListQuestionnaires(ctx, "biz-list", 1, 2)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(3), total)
	assert.Len(suite.T(), list, 2)

	list, total, err = suite.service.ListQuestionnaires(ctx, "", 1, 10)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(4), total)
	assert.Len(suite.T(), list, 4)
}

// TestUpdateQuestionnaireStatus 测试状态流转
func (suite *QuestionnaireServiceTestSuite) TestUpdateQuestionnaireStatus() {
	ctx := context.Background()
	questionnaire := suite.factory.CreateQuestionnaire(func(q *models.Questionnaire) {
		q.Status = "draft"
	})

	_, err := suite.service.UpdateQuestionnaire(ctx, questionnaire.ID,
		map[string]interface{}{"status": "active"})
	require.NoError(suite.T(), err)

	found, err := suite.service.GetQuestionnaire(ctx, questionnaire.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), found.IsActive())

	_, err = suite.service.UpdateQuestionnaire(ctx, questionnaire.ID,
		map[string]interface{}{"status": "void"})
	assert.ErrorIs(suite.T(), err, ErrInvalidStatus)
}

// TestAddQuestionNormalizesCategory 测试追加问题时区域键归一化
func (suite *QuestionnaireServiceTestSuite) TestAddQuestionNormalizesCategory() {
	ctx := context.Background()
	questionnaire := suite.factory.CreateQuestionnaire()

	question := &models.Question{
		QuestionnaireID: questionnaire.ID,
		Text:            "厨房出餐速度如何",
		Category:        "  Küche Bereich ",
		QuestionType:    "rating",
	}
	err := suite.service.AddQuestion(ctx, question)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "kuche_bereich", question.CategoryKey)
}

// TestAddQuestionInvalidRule 测试非法校验脚本被拒绝
func (suite *QuestionnaireServiceTestSuite) TestAddQuestionInvalidRule() {
	ctx := context.Background()
	questionnaire := suite.factory.CreateQuestionnaire()

	question := &models.Question{
		QuestionnaireID: questionnaire.ID,
		Text:            "意见",
		Category:        "Service",
		QuestionType:    "text",
		ValidationRule:  "return nil nil",
	}
	err := suite.service.AddQuestion(ctx, question)
	assert.ErrorIs(suite.T(), err, ErrInvalidRule)
}

// TestDeleteQuestionnaire 测试软删除
func (suite *QuestionnaireServiceTestSuite) TestDeleteQuestionnaire() {
	ctx := context.Background()
	questionnaire := suite.factory.CreateQuestionnaire()

	err := suite.service.DeleteQuestionnaire(ctx, questionnaire.ID)
	require.NoError(suite.T(), err)

	_, err = suite.service.GetQuestionnaire(ctx, questionnaire.ID)
	assert.ErrorIs(suite.T(), err, ErrQuestionnaireNotFound)

	err = suite.service.DeleteQuestionnaire(ctx, questionnaire.ID)
	assert.ErrorIs(suite.T(), err, ErrQuestionnaireNotFound)
}

// TestQRCodeScan 测试扫码计数和问卷返回
func (suite *QuestionnaireServiceTestSuite) TestQRCodeScan() {
	ctx := context.Background()
	questionnaire := suite.factory.CreateQuestionnaire()

	qrCode := &models.QRCode{
		QuestionnaireID: questionnaire.ID,
		Label:           "前台-1号桌",
	}
	err := suite.qrSvc.CreateQRCode(ctx, qrCode, "")
	require.NoError(suite.T(), err)

	result, err := suite.qrSvc.Scan(ctx, qrCode.ID, "device-1", "")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), questionnaire.ID, result.Questionnaire.ID)
	assert.Equal(suite.T(), int64(1), result.QRCode.ScanCount)

	_, err = suite.qrSvc.Scan(ctx, qrCode.ID, "device-1", "")
	require.NoError(suite.T(), err)

	var stored models.QRCode
	suite.testDB.DB.First(&stored, "id = ?", qrCode.ID)
	assert.Equal(suite.T(), int64(2), stored.ScanCount)
}

// TestQRCodePasscode 测试口令保护
func (suite *QuestionnaireServiceTestSuite) TestQRCodePasscode() {
	ctx := context.Background()
	questionnaire := suite.factory.CreateQuestionnaire()

	qrCode := &models.QRCode{
		QuestionnaireID: questionnaire.ID,
		Label:           "包间-VIP",
	}
	err := suite.qrSvc.CreateQRCode(ctx, qrCode, "8888")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), qrCode.IsProtected())

	_, err = suite.qrSvc.Scan(ctx, qrCode.ID, "device-1", "")
	assert.ErrorIs(suite.T(), err, ErrPasscodeRequired)

	_, err = suite.qrSvc.Scan(ctx, qrCode.ID, "device-1", "1234")
	assert.ErrorIs(suite.T(), err, ErrPasscodeInvalid)

	result, err := suite.qrSvc.Scan(ctx, qrCode.ID, "device-1", "8888")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), result.QRCode.ScanCount)
}

// TestQRCodeDisabled 测试停用二维码拒绝扫码
func (suite *QuestionnaireServiceTestSuite) TestQRCodeDisabled() {
	ctx := context.Background()
	questionnaire := suite.factory.CreateQuestionnaire()
	qrCode := suite.factory.CreateQRCode(questionnaire.ID)

	err := suite.qrSvc.DisableQRCode(ctx, qrCode.ID)
	require.NoError(suite.T(), err)

	_, err = suite.qrSvc.Scan(ctx, qrCode.ID, "device-1", "")
	assert.ErrorIs(suite.T(), err, ErrQRCodeDisabled)
}

func TestQuestionnaireServiceTestSuite(t *testing.T) {
	suite.Run(t, new(QuestionnaireServiceTestSuite))
}

// TestNormalizeCategoryKey 测试区域键归一化
func TestNormalizeCategoryKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Kitchen", "kitchen"},
		{"  Front Desk  ", "front_desk"},
		{"Café Terrasse", "cafe_terrasse"},
		{"SERVICE", "service"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeCategoryKey(tt.input), "input=%q", tt.input)
	}
}
