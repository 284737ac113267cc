package tokenizer

// FitPrefix 返回 text 最长前缀的字节偏移（落在 rune 边界上），
// 使 Count(lead+text[:off]) ≤ max。text 非空时至少保留一个 rune。
func FitPrefix(lead, text string, max int, h *Handle) int {
	if text == "" {
		return 0
	}
	if Tokens(lead+text, h) <= max {
		return len(text)
	}

	// bounds[k] 是前 k 个 rune 之后的字节偏移。
	bounds := make([]int, 0, len(text)+1)
	for i := range text {
		bounds = append(bounds, i)
	}
	bounds = append(bounds, len(text))

	best := 1
	lo, hi := 1, len(bounds)-2
	for lo <= hi {
		mid := (lo + hi) / 2
		if Tokens(lead+text[:bounds[mid]], h) <= max {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return bounds[best]
}

// Truncate returns the longest rune-aligned prefix of text that counts at most max tokens.
func Truncate(text string, max int, h *Handle) string {
	if max <= 0 {
		return ""
	}
	return text[:FitPrefix("", text, max, h)]
}
