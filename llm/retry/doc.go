// Package retry 提供指数退避 + 随机抖动的重试器，用于外部摘要调用。
package retry
