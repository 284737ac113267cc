// Package circuitbreaker 提供按连续失败次数熔断的三态断路器（closed、open、half-open），
// 用于在摘要后端失联时快速失败。
package circuitbreaker
