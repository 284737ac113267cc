package tokenizer

import (
	"fmt"
)

// Family 是分词编码族名称，与 tiktoken 的编码名一致。
type Family string

const (
	FamilyCL100K Family = "cl100k_base"
	FamilyO200K  Family = "o200k_base"
	FamilyP50K   Family = "p50k_base"
	FamilyR50K   Family = "r50k_base"

	// DefaultFamily 用于未知模型和构造失败时的回退。
	DefaultFamily = FamilyCL100K
)

// Known reports whether f is one of the supported encoding families.
func (f Family) Known() bool {
	switch f {
	case FamilyCL100K, FamilyO200K, FamilyP50K, FamilyR50K:
		return true
	}
	return false
}

// Encoder 是分词后端的最小接口.
type Encoder interface {
	// Encode 将文本转换为 token ID 列表.
	Encode(text string) ([]int, error)
}

// Handle 是某个编码族共享的只读分词器句柄。
// 每个编码族在进程生命周期内最多构造一次；nil Handle 表示启发式计数。
type Handle struct {
	family Family
	enc    Encoder
}

// NewHandle wraps an encoder outside of a Registry, for custom backends and tests.
func NewHandle(family Family, enc Encoder) *Handle {
	if enc == nil {
		return nil
	}
	return &Handle{family: family, enc: enc}
}

// Family returns the encoding family this handle counts with.
func (h *Handle) Family() Family {
	if h == nil {
		return ""
	}
	return h.family
}

// Name 返回分词器的名称.
func (h *Handle) Name() string {
	if h == nil {
		return "heuristic"
	}
	return fmt.Sprintf("tiktoken[%s]", h.family)
}

// count encodes text and recovers from backend panics.
func (h *Handle) count(text string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("encode with %s panicked: %v", h.family, r)
		}
	}()
	tokens, err := h.enc.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(tokens), nil
}
