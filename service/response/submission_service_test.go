package response

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"ulasis-service/service/event"
	"ulasis-service/service/models"
	"ulasis-service/service/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// recordingPublisher 记录已发布事件的测试桩
type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, e *event.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType)
	}
	return types
}

// SubmissionServiceTestSuite 反馈提交服务测试套件
type SubmissionServiceTestSuite struct {
	suite.Suite
	testDB    *models.ModelTestDB
	factory   *models.ModelTestDataFactory
	publisher *recordingPublisher
	service   *SubmissionService
}

func (suite *SubmissionServiceTestSuite) SetupSuite() {
	suite.testDB = models.NewModelTestDB()
	suite.factory = models.NewModelTestDataFactory(suite.testDB.DB)
}

func (suite *SubmissionServiceTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

func (suite *SubmissionServiceTestSuite) SetupTest() {
	suite.testDB.CleanDB()
	suite.publisher = &recordingPublisher{}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	suite.service = NewSubmissionService(
		suite.testDB.DB, validation.NewValidator(), suite.publisher, logger)
}

func float64Ptr(v float64) *float64 { return &v }

// TestSubmitAnswerCreatesResponse 测试首题提交创建应答
func (suite *SubmissionServiceTestSuite) TestSubmitAnswerCreatesResponse() {
	questionnaire := suite.factory.CreateQuestionnaire()
	question := suite.factory.CreateQuestion(questionnaire.ID)
	suite.factory.CreateQuestion(questionnaire.ID)
	suite.factory.CreateQuestion(questionnaire.ID)

	response, answer, err := suite.service.SubmitAnswer(context.Background(), &SubmitAnswerRequest{
		QuestionnaireID:   questionnaire.ID,
		QuestionID:        question.ID,
		RatingScore:       float64Ptr(4.5),
		DeviceFingerprint: "device-abc",
	})
	require.NoError(suite.T(), err)

	assert.NotEmpty(suite.T(), response.ID)
	assert.Equal(suite.T(), "device-abc", response.DeviceFingerprint)
	assert.Equal(suite.T(), models.ValidationStatusValid, answer.ValidationStatus)
	// 1/3 = 33.33
	assert.Equal(suite.T(), 33.33, response.ProgressPercentage)
	assert.False(suite.T(), response.IsComplete)
	assert.Contains(suite.T(), suite.publisher.eventTypes(), event.EventTypeResponseCreated)
}

// TestSubmitAnswerDuplicate 测试重复回答同一问题被拒绝
func (suite *SubmissionServiceTestSuite) TestSubmitAnswerDuplicate() {
	questionnaire := suite.factory.CreateQuestionnaire()
	question := suite.factory.CreateQuestion(questionnaire.ID)

	response, _, err := suite.service.SubmitAnswer(context.Background(), &SubmitAnswerRequest{
		QuestionnaireID: questionnaire.ID,
		QuestionID:      question.ID,
		RatingScore:     float64Ptr(4),
	})
	require.NoError(suite.T(), err)

	_, _, err = suite.service.SubmitAnswer(context.Background(), &SubmitAnswerRequest{
		ResponseID:      response.ID,
		QuestionnaireID: questionnaire.ID,
		QuestionID:      question.ID,
		RatingScore:     float64Ptr(2),
	})
	assert.ErrorIs(suite.T(), err, ErrDuplicateAnswer)

	// 原回答未被覆盖
	var answers []models.Answer
	suite.testDB.DB.Where("response_id = ?", response.ID).Find(&answers)
	require.Len(suite.T(), answers, 1)
	assert.Equal(suite.T(), 4.0, *answers[0].RatingScore)
}

// TestSubmitAnswerInactiveQuestionnaire 测试非收集中问卷拒绝提交
func (suite *SubmissionServiceTestSuite) TestSubmitAnswerInactiveQuestionnaire() {
	questionnaire := suite.factory.CreateQuestionnaire(func(q *models.Questionnaire) {
		q.Status = "archived"
	})
	question := suite.factory.CreateQuestion(questionnaire.ID)

	_, _, err := suite.service.SubmitAnswer(context.Background(), &SubmitAnswerRequest{
		QuestionnaireID: questionnaire.ID,
		QuestionID:      question.ID,
		RatingScore:     float64Ptr(4),
	})
	assert.ErrorIs(suite.T(), err, ErrQuestionnaireNotActive)
}

// TestSubmitAnswerQuestionMismatch 测试问题不属于问卷时拒绝
func (suite *SubmissionServiceTestSuite) TestSubmitAnswerQuestionMismatch() {
	questionnaire := suite.factory.CreateQuestionnaire()
	other := suite.factory.CreateQuestionnaire()
	foreignQuestion := suite.factory.CreateQuestion(other.ID)

	_, _, err := suite.service.SubmitAnswer(context.Background(), &SubmitAnswerRequest{
		QuestionnaireID: questionnaire.ID,
		QuestionID:      foreignQuestion.ID,
		RatingScore:     float64Ptr(4),
	})
	assert.ErrorIs(suite.T(), err, ErrQuestionNotFound)
}

// TestSubmitAnswerInvalidStored 测试校验不通过的回答仍然落库
func (suite *SubmissionServiceTestSuite) TestSubmitAnswerInvalidStored() {
	questionnaire := suite.factory.CreateQuestionnaire()
	question := suite.factory.CreateQuestion(questionnaire.ID)

	// 评分超出范围
	_, answer, err := suite.service.SubmitAnswer(context.Background(), &SubmitAnswerRequest{
		QuestionnaireID: questionnaire.ID,
		QuestionID:      question.ID,
		RatingScore:     float64Ptr(8),
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.ValidationStatusInvalid, answer.ValidationStatus)
	assert.NotEmpty(suite.T(), answer.ValidationErrors)
}

// TestProgressToCompletion 测试逐题作答到完成
func (suite *SubmissionServiceTestSuite) TestProgressToCompletion() {
	questionnaire := suite.factory.CreateQuestionnaire()
	q1 := suite.factory.CreateQuestion(questionnaire.ID)
	q2 := suite.factory.CreateQuestion(questionnaire.ID)

	ctx := context.Background()
	response, _, err := suite.service.SubmitAnswer(ctx, &SubmitAnswerRequest{
		QuestionnaireID: questionnaire.ID,
		QuestionID:      q1.ID,
		RatingScore:     float64Ptr(4),
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 50.0, response.ProgressPercentage)

	response, _, err = suite.service.SubmitAnswer(ctx, &SubmitAnswerRequest{
		ResponseID:      response.ID,
		QuestionnaireID: questionnaire.ID,
		QuestionID:      q2.ID,
		RatingScore:     float64Ptr(5),
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 100.0, response.ProgressPercentage)
	assert.True(suite.T(), response.IsComplete)
	assert.Contains(suite.T(), suite.publisher.eventTypes(), event.EventTypeResponseCompleted)
}

// TestSkippedAnswerDoesNotAdvanceProgress 测试跳过的问题不计入进度
func (suite *SubmissionServiceTestSuite) TestSkippedAnswerDoesNotAdvanceProgress() {
	questionnaire := suite.factory.CreateQuestionnaire()
	optional := suite.factory.CreateQuestion(questionnaire.ID, func(q *models.Question) {
		q.IsRequired = false
	})
	suite.factory.CreateQuestion(questionnaire.ID)

	response, answer, err := suite.service.SubmitAnswer(context.Background(), &SubmitAnswerRequest{
		QuestionnaireID: questionnaire.ID,
		QuestionID:      optional.ID,
		IsSkipped:       true,
	})
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), models.ValidationStatusPending, answer.ValidationStatus)
	assert.Equal(suite.T(), 0.0, response.ProgressPercentage)
	assert.False(suite.T(), response.IsComplete)
}

// TestUpdateProgressIdempotent 测试进度重算幂等
func (suite *SubmissionServiceTestSuite) TestUpdateProgressIdempotent() {
	questionnaire := suite.factory.CreateQuestionnaire()
	question := suite.factory.CreateQuestion(questionnaire.ID)
	suite.factory.CreateQuestion(questionnaire.ID)
	suite.factory.CreateQuestion(questionnaire.ID)
	response := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(response.ID, question.ID, models.WithRating(4))

	ctx := context.Background()
	first, err := suite.service.UpdateProgress(ctx, response.ID)
	require.NoError(suite.T(), err)
	second, err := suite.service.UpdateProgress(ctx, response.ID)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 33.33, first.ProgressPercentage)
	assert.Equal(suite.T(), first.ProgressPercentage, second.ProgressPercentage)
	assert.Equal(suite.T(), first.IsComplete, second.IsComplete)
}

// TestCompleteResponse 测试显式完成应答
func (suite *SubmissionServiceTestSuite) TestCompleteResponse() {
	questionnaire := suite.factory.CreateQuestionnaire()
	question := suite.factory.CreateQuestion(questionnaire.ID)
	response := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(response.ID, question.ID, models.WithRating(4))

	completionTime := 95
	completed, err := suite.service.CompleteResponse(context.Background(), response.ID, &completionTime)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), completed.IsComplete)
	assert.Equal(suite.T(), 100.0, completed.ProgressPercentage)
	assert.Equal(suite.T(), 95, *completed.CompletionTime)
	assert.Contains(suite.T(), suite.publisher.eventTypes(), event.EventTypeResponseCompleted)

	// 重复完成不再发布事件
	before := len(suite.publisher.events)
	_, err = suite.service.CompleteResponse(context.Background(), response.ID, &completionTime)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), before, len(suite.publisher.events))
}

// TestCompleteResponsePartialProgress 测试进度不足时显式完成不强制标记完成
// 完成状态始终与进度一致，后续提交不会把已完成应答翻回未完成
func (suite *SubmissionServiceTestSuite) TestCompleteResponsePartialProgress() {
	questionnaire := suite.factory.CreateQuestionnaire()
	q1 := suite.factory.CreateQuestion(questionnaire.ID)
	q2 := suite.factory.CreateQuestion(questionnaire.ID)

	ctx := context.Background()
	response, _, err := suite.service.SubmitAnswer(ctx, &SubmitAnswerRequest{
		QuestionnaireID: questionnaire.ID,
		QuestionID:      q1.ID,
		RatingScore:     float64Ptr(4),
	})
	require.NoError(suite.T(), err)

	completionTime := 30
	completed, err := suite.service.CompleteResponse(ctx, response.ID, &completionTime)
	require.NoError(suite.T(), err)
	assert.False(suite.T(), completed.IsComplete)
	assert.Equal(suite.T(), 50.0, completed.ProgressPercentage)
	assert.NotContains(suite.T(), suite.publisher.eventTypes(), event.EventTypeResponseCompleted)

	// 补答最后一题后进入完成态，完成事件只发布一次
	response, _, err = suite.service.SubmitAnswer(ctx, &SubmitAnswerRequest{
		ResponseID:      response.ID,
		QuestionnaireID: questionnaire.ID,
		QuestionID:      q2.ID,
		RatingScore:     float64Ptr(5),
	})
	require.NoError(suite.T(), err)
	assert.True(suite.T(), response.IsComplete)

	var completedEvents int
	for _, eventType := range suite.publisher.eventTypes() {
		if eventType == event.EventTypeResponseCompleted {
			completedEvents++
		}
	}
	assert.Equal(suite.T(), 1, completedEvents)
}

// TestGetResponse 测试应答详情查询
func (suite *SubmissionServiceTestSuite) TestGetResponse() {
	questionnaire := suite.factory.CreateQuestionnaire()
	question := suite.factory.CreateQuestion(questionnaire.ID)
	response := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(response.ID, question.ID, models.WithRating(4))

	found, err := suite.service.GetResponse(context.Background(), response.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), response.ID, found.ID)
	assert.Len(suite.T(), found.Answers, 1)

	_, err = suite.service.GetResponse(context.Background(), "missing-id")
	assert.ErrorIs(suite.T(), err, ErrResponseNotFound)
}

func TestSubmissionServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SubmissionServiceTestSuite))
}
