// Package chunker 将对话切分为不超过 token 上限的有序块，并在摘要后按序重组。
//
// 切分在消息边界上贪心累积；超长消息按段落、行、rune 依次细分，
// 围栏代码块保持完整，除非超过硬上限。Reassemble 与 Restore 保证
// 恒等摘要下的往返一致性。
package chunker
