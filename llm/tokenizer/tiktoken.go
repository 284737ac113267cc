package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// tiktokenEncoder adapts a tiktoken encoding to Encoder.
type tiktokenEncoder struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenEncoder) Encode(text string) ([]int, error) {
	return t.enc.Encode(text, nil, nil), nil
}

// NewTiktokenEncoder 为给定编码族创建 tiktoken 后端（首次使用时可能下载 BPE 数据）。
// 它是 Registry 的默认 BackendFactory。
func NewTiktokenEncoder(family Family) (Encoder, error) {
	if !family.Known() {
		return nil, fmt.Errorf("unknown encoding family %q", family)
	}
	enc, err := tiktoken.GetEncoding(string(family))
	if err != nil {
		return nil, fmt.Errorf("init tiktoken encoding %s: %w", family, err)
	}
	return &tiktokenEncoder{enc: enc}, nil
}
