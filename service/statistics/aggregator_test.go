package statistics

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"ulasis-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// AggregatorTestSuite 统计聚合器测试套件
type AggregatorTestSuite struct {
	suite.Suite
	testDB     *models.ModelTestDB
	factory    *models.ModelTestDataFactory
	aggregator *Aggregator
}

func (suite *AggregatorTestSuite) SetupSuite() {
	suite.testDB = models.NewModelTestDB()
	suite.factory = models.NewModelTestDataFactory(suite.testDB.DB)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	suite.aggregator = NewAggregator(NewGormAnswerRepository(suite.testDB.DB), logger)
}

func (suite *AggregatorTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

func (suite *AggregatorTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

// TestGetStatistics 测试单问题统计指标计算
func (suite *AggregatorTestSuite) TestGetStatistics() {
	questionnaire := suite.factory.CreateQuestionnaire()
	question := suite.factory.CreateQuestion(questionnaire.ID)

	// 8 条回答：5 条有效评分，1 条跳过，2 条无效
	scores := []float64{4.5, 3.2, 5, 4, 2.8}
	for _, score := range scores {
		response := suite.factory.CreateResponse(questionnaire.ID)
		suite.factory.CreateAnswer(response.ID, question.ID, models.WithRating(score))
	}
	skippedResp := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(skippedResp.ID, question.ID, models.WithSkipped())
	for i := 0; i < 2; i++ {
		response := suite.factory.CreateResponse(questionnaire.ID)
		suite.factory.CreateAnswer(response.ID, question.ID,
			models.WithValidationStatus(models.ValidationStatusInvalid))
	}

	stats, err := suite.aggregator.GetStatistics(context.Background(), question.ID, nil)
	assert.NoError(suite.T(), err)

	assert.Equal(suite.T(), int64(8), stats.TotalAnswers)
	assert.Equal(suite.T(), int64(1), stats.SkippedAnswers)
	assert.Equal(suite.T(), int64(5), stats.ValidAnswers)
	// 无效数 = 总数 - 有效数，跳过的1条也计入
	assert.Equal(suite.T(), int64(3), stats.InvalidAnswers)
	// 1/8 = 12.5% 四舍五入到 13
	assert.Equal(suite.T(), 13, stats.SkipRate)
	// 5/8 = 62.5% 四舍五入到 63
	assert.Equal(suite.T(), 63, stats.ValidRate)
	// (4.5+3.2+5+4+2.8)/5 = 3.9
	assert.Equal(suite.T(), 3.9, stats.AverageRating)
	assert.Equal(suite.T(), int64(5), stats.RatedAnswers)
	assert.False(suite.T(), stats.Degraded)
}

// TestGetStatisticsNoAnswers 测试无回答问题返回全零统计
func (suite *AggregatorTestSuite) TestGetStatisticsNoAnswers() {
	questionnaire := suite.factory.CreateQuestionnaire()
	question := suite.factory.CreateQuestion(questionnaire.ID)

	stats, err := suite.aggregator.GetStatistics(context.Background(), question.ID, nil)
	assert.NoError(suite.T(), err)

	assert.Equal(suite.T(), int64(0), stats.TotalAnswers)
	assert.Equal(suite.T(), 0, stats.SkipRate)
	assert.Equal(suite.T(), 0, stats.ValidRate)
	assert.Equal(suite.T(), float64(0), stats.AverageRating)
	assert.False(suite.T(), stats.Degraded)
}

// TestInvalidAnswersDerivedFromTotal 测试无效数恒等于总数减有效数
// 评分[4,5,跳过,3,无效]：总数5、跳过1、有效3、无效2、跳过率20、有效率60、均值4.00
func (suite *AggregatorTestSuite) TestInvalidAnswersDerivedFromTotal() {
	questionnaire := suite.factory.CreateQuestionnaire()
	question := suite.factory.CreateQuestion(questionnaire.ID)

	for _, score := range []float64{4, 5, 3} {
		response := suite.factory.CreateResponse(questionnaire.ID)
		suite.factory.CreateAnswer(response.ID, question.ID, models.WithRating(score))
	}
	skippedResp := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(skippedResp.ID, question.ID, models.WithSkipped())
	invalidResp := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(invalidResp.ID, question.ID,
		models.WithValidationStatus(models.ValidationStatusInvalid))

	stats, err := suite.aggregator.GetStatistics(context.Background(), question.ID, nil)
	assert.NoError(suite.T(), err)

	assert.Equal(suite.T(), int64(5), stats.TotalAnswers)
	assert.Equal(suite.T(), int64(1), stats.SkippedAnswers)
	assert.Equal(suite.T(), int64(3), stats.ValidAnswers)
	assert.Equal(suite.T(), int64(2), stats.InvalidAnswers)
	assert.Equal(suite.T(), stats.TotalAnswers-stats.ValidAnswers, stats.InvalidAnswers)
	assert.Equal(suite.T(), 20, stats.SkipRate)
	assert.Equal(suite.T(), 60, stats.ValidRate)
	assert.Equal(suite.T(), 4.0, stats.AverageRating)
}

// TestGetStatisticsExcludeSkipped 测试基础计数排除跳过回答的选项
func (suite *AggregatorTestSuite) TestGetStatisticsExcludeSkipped() {
	questionnaire := suite.factory.CreateQuestionnaire()
	question := suite.factory.CreateQuestion(questionnaire.ID)

	response := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(response.ID, question.ID, models.WithRating(4))
	skippedResp := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(skippedResp.ID, question.ID, models.WithSkipped())

	stats, err := suite.aggregator.GetStatistics(context.Background(), question.ID,
		&StatisticsOptions{IncludeSkipped: false})
	assert.NoError(suite.T(), err)

	assert.Equal(suite.T(), int64(1), stats.TotalAnswers)
	assert.Equal(suite.T(), int64(0), stats.SkippedAnswers)
	assert.Equal(suite.T(), int64(1), stats.ValidAnswers)
	assert.Equal(suite.T(), int64(0), stats.InvalidAnswers)
	assert.Equal(suite.T(), 100, stats.ValidRate)
}

// TestGetBatchStatistics 测试批量统计覆盖多个问题
func (suite *AggregatorTestSuite) TestGetBatchStatistics() {
	questionnaire := suite.factory.CreateQuestionnaire()
	q1 := suite.factory.CreateQuestion(questionnaire.ID)
	q2 := suite.factory.CreateQuestion(questionnaire.ID)
	q3 := suite.factory.CreateQuestion(questionnaire.ID)

	r1 := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(r1.ID, q1.ID, models.WithRating(4))
	suite.factory.CreateAnswer(r1.ID, q2.ID, models.WithSkipped())
	r2 := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(r2.ID, q1.ID, models.WithRating(5))

	batch, err := suite.aggregator.GetBatchStatistics(context.Background(),
		[]string{q1.ID, q2.ID, q3.ID}, nil)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), batch, 3)

	assert.Equal(suite.T(), int64(2), batch[q1.ID].TotalAnswers)
	assert.Equal(suite.T(), 4.5, batch[q1.ID].AverageRating)
	assert.Equal(suite.T(), 100, batch[q1.ID].ValidRate)

	assert.Equal(suite.T(), int64(1), batch[q2.ID].TotalAnswers)
	assert.Equal(suite.T(), 100, batch[q2.ID].SkipRate)
	assert.Equal(suite.T(), float64(0), batch[q2.ID].AverageRating)

	// 无回答的问题返回全零统计而不是缺失
	assert.Equal(suite.T(), int64(0), batch[q3.ID].TotalAnswers)
}

// TestGetQuestionnaireStatistics 测试问卷维度统计
func (suite *AggregatorTestSuite) TestGetQuestionnaireStatistics() {
	questionnaire := suite.factory.CreateQuestionnaire()
	q1 := suite.factory.CreateQuestion(questionnaire.ID)
	suite.factory.CreateQuestion(questionnaire.ID)

	response := suite.factory.CreateResponse(questionnaire.ID)
	suite.factory.CreateAnswer(response.ID, q1.ID, models.WithRating(3.7))

	batch, err := suite.aggregator.GetQuestionnaireStatistics(context.Background(), questionnaire.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), batch, 2)
	assert.Equal(suite.T(), 3.7, batch[q1.ID].AverageRating)
}

func TestAggregatorTestSuite(t *testing.T) {
	suite.Run(t, new(AggregatorTestSuite))
}

// failingAvgRepo 评分均值查询失败的测试桩
type failingAvgRepo struct {
	inner AnswerRepository
}

func (f *failingAvgRepo) CountByQuestions(ctx context.Context, questionIDs []string, includeSkipped bool) (map[string]AnswerCounts, error) {
	return f.inner.CountByQuestions(ctx, questionIDs, includeSkipped)
}

func (f *failingAvgRepo) AverageRatingByQuestions(ctx context.Context, questionIDs []string) (map[string]RatingAverage, error) {
	return nil, errors.New("connection reset")
}

func (f *failingAvgRepo) ListQuestionIDs(ctx context.Context, questionnaireID string) ([]string, error) {
	return f.inner.ListQuestionIDs(ctx, questionnaireID)
}

// TestDegradedStatistics 测试均值查询失败时统计结果降级而不是归零
func TestDegradedStatistics(t *testing.T) {
	testDB := models.NewModelTestDB()
	defer testDB.Close()
	factory := models.NewModelTestDataFactory(testDB.DB)

	questionnaire := factory.CreateQuestionnaire()
	question := factory.CreateQuestion(questionnaire.ID)
	response := factory.CreateResponse(questionnaire.ID)
	factory.CreateAnswer(response.ID, question.ID, models.WithRating(4))

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	repo := &failingAvgRepo{inner: NewGormAnswerRepository(testDB.DB)}
	aggregator := NewAggregator(repo, logger)

	stats, err := aggregator.GetStatistics(context.Background(), question.ID, nil)
	assert.NoError(t, err)
	assert.True(t, stats.Degraded)
	assert.NotEmpty(t, stats.DegradedReason)
	// 计数部分仍然可用
	assert.Equal(t, int64(1), stats.TotalAnswers)
	assert.Equal(t, 100, stats.ValidRate)
}

// TestRoundHalfUp 测试整数百分比四舍五入
func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, 13, roundHalfUp(12.5))
	assert.Equal(t, 12, roundHalfUp(12.4))
	assert.Equal(t, 67, roundHalfUp(66.666))
	assert.Equal(t, 0, roundHalfUp(0))
	assert.Equal(t, 100, roundHalfUp(99.5))
}
