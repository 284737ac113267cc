// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	acct := testutil.OfflineAccountant(t)
//	testutil.AssertTranscriptEqual(t, expected, actual)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/IshaanRSharma/chatdigest/llm/retry"
	"github.com/IshaanRSharma/chatdigest/llm/tokenizer"
	"github.com/IshaanRSharma/chatdigest/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔢 离线计数
// =============================================================================

// DefaultTestProfiles 是离线测试使用的模型表
var DefaultTestProfiles = []tokenizer.ModelProfile{
	{ID: "test-200", TokenLimit: 200, DisplayName: "Test 200"},
	{ID: "test-8k", TokenLimit: 8000, Vendor: "test", Recommended: true},
}

// OfflineRegistry 返回不下载 tiktoken 词表的注册表，所有计数走启发式路径。
// 未传入 profiles 时使用 DefaultTestProfiles。
func OfflineRegistry(t testing.TB, profiles ...tokenizer.ModelProfile) *tokenizer.Registry {
	t.Helper()
	if len(profiles) == 0 {
		profiles = DefaultTestProfiles
	}
	table, err := tokenizer.NewModelTable(profiles)
	if err != nil {
		t.Fatalf("failed to build model table: %v", err)
	}
	return tokenizer.NewRegistry(
		tokenizer.WithModelTable(table),
		tokenizer.WithBackendFactory(func(tokenizer.Family) (tokenizer.Encoder, error) {
			return nil, errors.New("offline")
		}),
	)
}

// OfflineAccountant 基于 OfflineRegistry 构建 Accountant
func OfflineAccountant(t testing.TB, profiles ...tokenizer.ModelProfile) *tokenizer.Accountant {
	t.Helper()
	return tokenizer.NewAccountant(OfflineRegistry(t, profiles...), zap.NewNop())
}

// FastRetry 返回毫秒级退避的重试策略
func FastRetry(maxRetries int) retry.Policy {
	return retry.Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertTranscriptEqual 断言两个对话逐条相等（角色、内容、序号）
func AssertTranscriptEqual(t testing.TB, expected, actual types.Transcript) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Errorf("message count mismatch: expected %d, got %d", len(expected), len(actual))
		return
	}

	for i := range expected {
		if expected[i].Role != actual[i].Role {
			t.Errorf("message[%d] role mismatch: expected %q, got %q", i, expected[i].Role, actual[i].Role)
		}
		if expected[i].Content != actual[i].Content {
			t.Errorf("message[%d] content mismatch: expected %q, got %q", i, expected[i].Content, actual[i].Content)
		}
		if expected[i].Ordinal != actual[i].Ordinal {
			t.Errorf("message[%d] ordinal mismatch: expected %d, got %d", i, expected[i].Ordinal, actual[i].Ordinal)
		}
	}
}

// AssertJSONEqual 断言两个值的 JSON 表示相等
func AssertJSONEqual(t testing.TB, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}

	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual: %s", expectedJSON, actualJSON)
	}
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// AssertContains 断言字符串包含子串
func AssertContains(t testing.TB, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
