package summarizer

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/IshaanRSharma/chatdigest/internal/cache"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// Store 是摘要缓存的最小接口，由 internal/cache.Manager 实现。
type Store interface {
	Get(ctx context.Context, key string) (*cache.Entry, error)
	Set(ctx context.Context, key string, entry cache.Entry, ttl time.Duration) error
}

// cacheDomainKey 是 BLAKE3 keyed hash 的域分隔键（ASCII，零填充到 32 字节）。
// 修改它会使所有已缓存的摘要失效。
var cacheDomainKey = [32]byte{
	'c', 'h', 'a', 't', 'd', 'i', 'g', 'e', 's', 't', '.', 's', 'u', 'm', 'm', 'a',
	'r', 'y', '.', 'v', '1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// CacheKey 对 (backend, model, instructions, chunk) 做长度前缀的 keyed hash。
func CacheKey(info Info, instructions, chunkText string) string {
	hasher, err := blake3.NewKeyed(cacheDomainKey[:])
	if err != nil {
		panic("summarizer: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var length [8]byte
	for _, part := range []string{info.Backend, info.Model, instructions, chunkText} {
		binary.LittleEndian.PutUint64(length[:], uint64(len(part)))
		_, _ = hasher.Write(length[:])
		_, _ = hasher.Write([]byte(part))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// CacheRecorder 记录缓存命中情况，由 internal/metrics.Collector 实现。
type CacheRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const cacheType = "summary"

// Cached 在底层摘要器前加一层缓存。缓存读写失败只记日志，不影响摘要。
type Cached struct {
	next     Summarizer
	store    Store
	ttl      time.Duration
	logger   *zap.Logger
	recorder CacheRecorder
}

// NewCached wraps next with store.
func NewCached(next Summarizer, store Store, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "summary_cache")),
	}
}

// WithRecorder sets the hit/miss recorder and returns c.
func (c *Cached) WithRecorder(r CacheRecorder) *Cached {
	c.recorder = r
	return c
}

// Info implements Describer.
func (c *Cached) Info() Info {
	return Describe(c.next)
}

// Summarize implements Summarizer.
func (c *Cached) Summarize(ctx context.Context, chunkText, instructions string) (string, error) {
	info := Describe(c.next)
	key := CacheKey(info, instructions, chunkText)

	entry, err := c.store.Get(ctx, key)
	switch {
	case err == nil && entry.Summary != "":
		if c.recorder != nil {
			c.recorder.RecordCacheHit(cacheType)
		}
		return entry.Summary, nil
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn("summary cache read failed", zap.Error(err))
	}
	if c.recorder != nil {
		c.recorder.RecordCacheMiss(cacheType)
	}

	summary, err := c.next.Summarize(ctx, chunkText, instructions)
	if err != nil {
		return "", err
	}

	if err := c.store.Set(ctx, key, cache.Entry{
		Summary: summary,
		Backend: info.Backend,
		Model:   info.Model,
	}, c.ttl); err != nil {
		c.logger.Warn("summary cache write failed", zap.Error(err))
	}
	return summary, nil
}
