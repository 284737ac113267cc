// Package tokenizer 提供模型到分词器的解析与确定性的 Token 计数。
//
// Registry 按编码族（cl100k_base、o200k_base、p50k_base、r50k_base）懒加载
// tiktoken 句柄，并发首次使用时每族只构造一次；构造失败回退到默认编码族，
// 再失败则返回 nil 句柄，由 Count 使用 ceil(runes/4) 启发式估算。
// ModelTable 是不可变的模型表，Accountant 在其上提供计数与上限查询。
package tokenizer
