/*
包 llm 汇集 chatdigest 的压缩流水线组件，本身不导出任何标识符。

# 子包

  - llm/tokenizer：模型表、分词器注册表与 Token 计数
  - llm/chunker：按 token 上限切分对话并按序重组
  - llm/summarizer：摘要后端（Ollama、Anthropic、identity）与装饰器
  - llm/retry：指数退避重试
  - llm/circuitbreaker：摘要后端熔断
  - llm/compress：多轮压缩编排器与运行结果

# 依赖方向

compress 依赖 tokenizer、chunker、summarizer 与 retry；
summarizer 依赖 circuitbreaker；chunker 依赖 tokenizer；tokenizer 只依赖 types。
*/
package llm
