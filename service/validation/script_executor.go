/*
 * @module service/validation/script_executor
 * @description 校验脚本执行器，基于Yaegi解释器执行自定义校验规则脚本
 * @architecture 解释器模式 - 脚本编译缓存后重复执行
 * @documentReference dev_docs/answer_validation.md
 * @stateFlow 脚本哈希 -> 缓存命中/编译 -> 注入参数执行 -> 返回校验结果
 * @rules 脚本必须提供 Run 函数作为入口，签名为 func(map[string]interface{}) (interface{}, error)
 * @dependencies github.com/traefik/yaegi, sync, context
 * @refs service/validation/validator.go
 */

package validation

import (
	"context"
	"crypto/sha1"
	"fmt"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// ScriptExecutor 校验脚本执行接口
type ScriptExecutor interface {
	Execute(ctx context.Context, script string, params map[string]interface{}) (interface{}, error)
	Validate(script string) error
}

// YaegiScriptExecutor Yaegi脚本执行器实现，支持编译缓存和参数注入
type YaegiScriptExecutor struct {
	mu    sync.RWMutex
	cache map[string]*CompiledScript
}

// CompiledScript 编译后的脚本，保存可执行函数
type CompiledScript struct {
	fn       func(map[string]interface{}) (interface{}, error)
	compiled time.Time // 编译时间
	hash     string    // 脚本哈希
}

// NewYaegiScriptExecutor 创建Yaegi脚本执行器
func NewYaegiScriptExecutor() *YaegiScriptExecutor {
	return &YaegiScriptExecutor{
		cache: make(map[string]*CompiledScript),
	}
}

// Execute 执行校验脚本（带参数注入和缓存优化）
func (y *YaegiScriptExecutor) Execute(ctx context.Context, script string, params map[string]interface{}) (interface{}, error) {
	// 使用脚本内容的哈希作为缓存key
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(script)))

	y.mu.RLock()
	compiled, ok := y.cache[hash]
	y.mu.RUnlock()

	if !ok {
		var err error
		compiled, err = y.compile(script, hash)
		if err != nil {
			return nil, fmt.Errorf("脚本编译失败: %v", err)
		}

		y.mu.Lock()
		y.cache[hash] = compiled
		y.mu.Unlock()
	}

	return compiled.fn(params)
}

// compile 编译脚本为可执行函数
func (y *YaegiScriptExecutor) compile(script, hash string) (*CompiledScript, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("加载标准库失败: %w", err)
	}

	// 包装脚本：要求脚本必须实现一个 Run 函数
	wrapped := fmt.Sprintf(`
package main

import (
	"fmt"
	"strings"
	"strconv"
	"regexp"
	"unicode/utf8"
)

// 必须提供一个 Run 函数作为入口
func Run(params map[string]interface{}) (interface{}, error) {
	// 从参数中提取常用变量，方便脚本使用
	var value interface{}
	if v, exists := params["value"]; exists {
		value = v
	}

	var ratingScore interface{}
	if s, exists := params["ratingScore"]; exists {
		ratingScore = s
	}

	var selectedOptions interface{}
	if opts, exists := params["selectedOptions"]; exists {
		selectedOptions = opts
	}

	var questionType interface{}
	if t, exists := params["questionType"]; exists {
		questionType = t
	}

	// 脚本内容
%s
}
`, script)

	_, err := i.Eval(wrapped)
	if err != nil {
		return nil, fmt.Errorf("脚本编译失败: %w", err)
	}

	// 获取 Run 函数
	v, err := i.Eval("Run")
	if err != nil {
		return nil, fmt.Errorf("脚本缺少 Run 函数: %w", err)
	}

	runFunc, ok := v.Interface().(func(map[string]interface{}) (interface{}, error))
	if !ok {
		return nil, fmt.Errorf("Run 函数签名必须是 func(map[string]interface{}) (interface{}, error)")
	}

	return &CompiledScript{
		fn:       runFunc,
		compiled: time.Now(),
		hash:     hash,
	}, nil
}

// Validate 验证脚本语法（快速校验）
func (y *YaegiScriptExecutor) Validate(script string) error {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("加载标准库符号失败: %v", err)
	}

	wrapped := fmt.Sprintf(`
package main

import (
	"fmt"
	"strings"
	"strconv"
	"regexp"
	"unicode/utf8"
)

func Run(params map[string]interface{}) (interface{}, error) {
	var value interface{}
	if v, exists := params["value"]; exists {
		value = v
	}
	_ = value

	// 脚本内容
%s
}
`, script)

	_, err := i.Eval(wrapped)
	if err != nil {
		return fmt.Errorf("脚本语法错误: %v", err)
	}

	return nil
}

// GetCacheStats 获取缓存统计信息
func (y *YaegiScriptExecutor) GetCacheStats() map[string]interface{} {
	y.mu.RLock()
	defer y.mu.RUnlock()

	stats := map[string]interface{}{
		"cached_scripts": len(y.cache),
	}

	if len(y.cache) > 0 {
		oldestTime := time.Now()
		newestTime := time.Time{}

		for _, compiled := range y.cache {
			if compiled.compiled.Before(oldestTime) {
				oldestTime = compiled.compiled
			}
			if compiled.compiled.After(newestTime) {
				newestTime = compiled.compiled
			}
		}

		stats["oldest_compiled"] = oldestTime
		stats["newest_compiled"] = newestTime
	}

	return stats
}

// ClearCache 清理缓存
func (y *YaegiScriptExecutor) ClearCache() {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.cache = make(map[string]*CompiledScript)
}
