/*
Package compress 实现对话压缩编排器。

# 流程

Compressor.Compress 先用目标模型的分词器计数；未超预算（默认为上下文窗口的 50%）
时原样返回。否则按摘要器输入上限切块，以有界并发逐块摘要，按块顺序重组后复核；
仍超预算则在更小的块上限下再跑一轮，最多 MaxPasses 轮。

# 失败处理

单块重试耗尽后截断到其预算份额并加标记；失败块占比达到 FailureThreshold 时
返回 *CompressionFailedError，其中带有未改动的原始对话。截止时间到达时返回
当前最佳结果并设置 OverBudget。

# 其他

  - Reduction: 压缩率，[0,100]，一位小数
  - ContinuationPrompt: 按目标模型包装"继续讨论"提示词
  - 摘要遗漏的 fenced code block 会原样补回到该块摘要末尾
*/
package compress
