// Package transcript 将粘贴的聊天记录解析为 types.Transcript。
//
// 支持的格式（自动识别顺序）：json、said（"You said:" 网页导出）、
// markdown（"# User" 标题）、labeled（"User:" 行首标签）、plain。
package transcript
