/*
 * @module service/rate_limiter/redis_rate_limiter_test
 * @description Redis限流器单元测试和并发测试
 * @architecture 测试层
 * @documentReference dev_docs/rate_limit_design.md
 */

package rate_limiter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis 设置测试用Redis环境，Redis不可用时跳过测试
func setupTestRedis(t *testing.T) *RedisRateLimiter {
	limiter, err := NewRedisRateLimiter()
	if err != nil {
		t.Skipf("Redis不可用，跳过测试: %v", err)
	}
	require.NotNil(t, limiter, "Redis限流器不应为nil")

	// 清理测试数据
	ctx := context.Background()
	limiter.client.FlushDB(ctx)

	return limiter
}

// TestCheckRateLimit_SingleRule_Success 测试单个规则限流成功
func TestCheckRateLimit_SingleRule_Success(t *testing.T) {
	limiter := setupTestRedis(t)
	defer limiter.Close()

	ctx := context.Background()
	rule := RateLimitRule{
		Type:        RateLimitTypeGlobal,
		TargetID:    "",
		TimeWindow:  60,
		MaxRequests: 10,
	}

	// 第一次请求应该成功
	result, err := limiter.checkSingleRule(ctx, rule)
	require.NoError(t, err)
	assert.True(t, result.Allowed, "第一次请求应该被允许")
	assert.Equal(t, 10, result.Limit, "限制数应该为10")
	assert.Equal(t, 9, result.Remaining, "剩余数应该为9")
	assert.Equal(t, RateLimitTypeGlobal, result.RateLimitType)
}

// TestCheckRateLimit_SingleRule_RateLimited 测试单个规则触发限流
func TestCheckRateLimit_SingleRule_RateLimited(t *testing.T) {
	limiter := setupTestRedis(t)
	defer limiter.Close()

	ctx := context.Background()
	rule := RateLimitRule{
		Type:        RateLimitTypeQRCode,
		TargetID:    "test-qr-123",
		TimeWindow:  10,
		MaxRequests: 5,
	}

	// 发送5次请求
	for i := 0; i < 5; i++ {
		result, err := limiter.checkSingleRule(ctx, rule)
		require.NoError(t, err)
		assert.True(t, result.Allowed, fmt.Sprintf("第%d次请求应该被允许", i+1))
		assert.Equal(t, 5-i-1, result.Remaining, fmt.Sprintf("第%d次请求剩余数应该为%d", i+1, 5-i-1))
	}

	// 第6次请求应该被限流
	result, err := limiter.checkSingleRule(ctx, rule)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "第6次请求应该被限流")
	assert.Equal(t, 0, result.Remaining, "剩余数应该为0")
	assert.Contains(t, result.Message, "二维码限流限制")
}

// TestCheckRateLimit_MultipleRules_Priority 测试多层限流优先级
func TestCheckRateLimit_MultipleRules_Priority(t *testing.T) {
	limiter := setupTestRedis(t)
	defer limiter.Close()

	ctx := context.Background()
	rules := []RateLimitRule{
		{Type: RateLimitTypeGlobal, TargetID: "", TimeWindow: 60, MaxRequests: 100},
		{Type: RateLimitTypeQRCode, TargetID: "qr-123", TimeWindow: 60, MaxRequests: 50},
		{Type: RateLimitTypeDevice, TargetID: "device-456", TimeWindow: 60, MaxRequests: 10},
	}

	// 应该按优先级检查：device > qr_code > global
	// 发送10次请求
	for i := 0; i < 10; i++ {
		result, err := limiter.CheckRateLimit(ctx, rules)
		require.NoError(t, err)
		assert.True(t, result.Allowed, fmt.Sprintf("第%d次请求应该被允许", i+1))
	}

	// 第11次请求应该被设备层限流
	result, err := limiter.CheckRateLimit(ctx, rules)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "第11次请求应该被限流")
	assert.Equal(t, RateLimitTypeDevice, result.RateLimitType, "应该是设备层触发限流")
}

// TestCheckRateLimit_NoRules 测试没有限流规则的情况
func TestCheckRateLimit_NoRules(t *testing.T) {
	limiter := setupTestRedis(t)
	defer limiter.Close()

	ctx := context.Background()
	rules := []RateLimitRule{}

	result, err := limiter.CheckRateLimit(ctx, rules)
	require.NoError(t, err)
	assert.True(t, result.Allowed, "没有限流规则应该允许通过")
	assert.Equal(t, "none", result.RateLimitType)
	assert.Equal(t, -1, result.Limit)
}

// TestCheckRateLimit_ResetAfterWindow 测试时间窗口重置
func TestCheckRateLimit_ResetAfterWindow(t *testing.T) {
	limiter := setupTestRedis(t)
	defer limiter.Close()

	ctx := context.Background()
	rule := RateLimitRule{
		Type:        RateLimitTypeDevice,
		TargetID:    "test-device-456",
		TimeWindow:  2, // 2秒时间窗口
		MaxRequests: 3,
	}

	// 发送3次请求，用完配额
	for i := 0; i < 3; i++ {
		result, err := limiter.checkSingleRule(ctx, rule)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	// 第4次请求应该被限流
	result, err := limiter.checkSingleRule(ctx, rule)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// 等待时间窗口重置
	time.Sleep(3 * time.Second)

	// 时间窗口重置后，应该可以再次请求
	result, err = limiter.checkSingleRule(ctx, rule)
	require.NoError(t, err)
	assert.True(t, result.Allowed, "时间窗口重置后应该允许请求")
	assert.Equal(t, 2, result.Remaining, "重置后剩余数应该为2")
}

// TestGetStats 测试获取限流统计信息
func TestGetStats(t *testing.T) {
	limiter := setupTestRedis(t)
	defer limiter.Close()

	ctx := context.Background()
	rule := RateLimitRule{
		Type:        RateLimitTypeDevice,
		TargetID:    "device-789",
		TimeWindow:  60,
		MaxRequests: 20,
	}

	// 发送5次请求
	for i := 0; i < 5; i++ {
		_, err := limiter.checkSingleRule(ctx, rule)
		require.NoError(t, err)
	}

	// 获取统计信息
	stats, err := limiter.GetStats(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, RateLimitTypeDevice, stats["type"])
	assert.Equal(t, "device-789", stats["target_id"])
	assert.Equal(t, 5, stats["current"], "当前计数应该为5")
	assert.Equal(t, 20, stats["limit"], "限制数应该为20")
	assert.Equal(t, 15, stats["remaining"], "剩余数应该为15")
}

// TestResetRateLimit 测试重置限流计数
func TestResetRateLimit(t *testing.T) {
	limiter := setupTestRedis(t)
	defer limiter.Close()

	ctx := context.Background()
	rule := RateLimitRule{
		Type:        RateLimitTypeQRCode,
		TargetID:    "reset-test-qr",
		TimeWindow:  60,
		MaxRequests: 10,
	}

	// 发送5次请求
	for i := 0; i < 5; i++ {
		_, err := limiter.checkSingleRule(ctx, rule)
		require.NoError(t, err)
	}

	// 验证计数
	stats, err := limiter.GetStats(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, 5, stats["current"])

	// 重置计数
	err = limiter.ResetRateLimit(ctx, rule)
	require.NoError(t, err)

	// 验证重置后计数为0
	stats, err = limiter.GetStats(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, 0, stats["current"], "重置后计数应该为0")
}

// TestSortRulesByPriority 测试规则优先级排序
func TestSortRulesByPriority(t *testing.T) {
	limiter := &RedisRateLimiter{}

	rules := []RateLimitRule{
		{Type: RateLimitTypeGlobal, TimeWindow: 60, MaxRequests: 1000},
		{Type: RateLimitTypeQRCode, TargetID: "qr-1", TimeWindow: 60, MaxRequests: 100},
		{Type: RateLimitTypeDevice, TargetID: "device-1", TimeWindow: 60, MaxRequests: 50},
	}

	sorted := limiter.sortRulesByPriority(rules)
	assert.Equal(t, RateLimitTypeDevice, sorted[0].Type, "第一个应该是device")
	assert.Equal(t, RateLimitTypeQRCode, sorted[1].Type, "第二个应该是qr_code")
	assert.Equal(t, RateLimitTypeGlobal, sorted[2].Type, "第三个应该是global")
}

// TestBuildRateLimitKey 测试限流Key构造
func TestBuildRateLimitKey(t *testing.T) {
	limiter := &RedisRateLimiter{}

	// 测试全局限流Key
	globalKey := limiter.buildRateLimitKey(RateLimitTypeGlobal, "", 60)
	assert.Contains(t, globalKey, "rate_limit:global")

	// 测试二维码限流Key
	qrKey := limiter.buildRateLimitKey(RateLimitTypeQRCode, "qr-123", 60)
	assert.Contains(t, qrKey, "rate_limit:qr_code:qr-123")

	// 测试设备限流Key
	deviceKey := limiter.buildRateLimitKey(RateLimitTypeDevice, "device-456", 60)
	assert.Contains(t, deviceKey, "rate_limit:device:device-456")
}

// TestConcurrentRateLimitCheck 并发测试：多个goroutine同时检查限流
func TestConcurrentRateLimitCheck(t *testing.T) {
	limiter := setupTestRedis(t)
	defer limiter.Close()

	ctx := context.Background()
	rule := RateLimitRule{
		Type:        RateLimitTypeQRCode,
		TargetID:    "concurrent-qr",
		TimeWindow:  60,
		MaxRequests: 100,
	}

	var wg sync.WaitGroup
	allowedCount := 0
	deniedCount := 0
	var mu sync.Mutex

	// 启动200个goroutine并发请求
	concurrency := 200
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := limiter.checkSingleRule(ctx, rule)
			require.NoError(t, err)

			mu.Lock()
			if result.Allowed {
				allowedCount++
			} else {
				deniedCount++
			}
			mu.Unlock()
		}()
	}

	wg.Wait()

	// 验证结果
	t.Logf("允许请求: %d, 拒绝请求: %d", allowedCount, deniedCount)
	assert.Equal(t, 100, allowedCount, "应该有100个请求被允许")
	assert.Equal(t, 100, deniedCount, "应该有100个请求被拒绝")
}
