/*
Package testutil 提供 ChatDigest 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复构造
离线计数器、重试策略与对话样例。测试不访问网络：token 计数
走启发式路径，摘要由 Mock 提供。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 离线计数: OfflineRegistry / OfflineAccountant，
    不下载 tiktoken 词表，按 ceil(runes/4) 计数
  - 断言工具: AssertTranscriptEqual / AssertJSONEqual / AssertContains /
    AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON / FastRetry

# 子包

  - testutil/mocks: MockSummarizer，支持固定响应、按比例截短、
    延迟、并发统计与错误注入
  - testutil/fixtures: 对话样例，包括各导出格式文本、
    LongTranscript 与 LabeledTranscript 生成器

# 使用示例

	acct := testutil.OfflineAccountant(t)
	mock := mocks.NewMockSummarizer().WithRatio(0.3)
	tr := fixtures.LongTranscript(20, 1000)
*/
package testutil
