package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/IshaanRSharma/chatdigest/config"
	"github.com/IshaanRSharma/chatdigest/internal/cache"
	"github.com/IshaanRSharma/chatdigest/internal/metrics"
	"github.com/IshaanRSharma/chatdigest/llm/compress"
	"github.com/IshaanRSharma/chatdigest/llm/summarizer"
	"github.com/IshaanRSharma/chatdigest/llm/tokenizer"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// components 是 serve 与本地命令共用的压缩流水线
type components struct {
	registry   *tokenizer.Registry
	accountant *tokenizer.Accountant
	summarizer summarizer.Summarizer
	compressor *compress.Compressor
	cache      *cache.Manager
}

// newAccountant 加载模型表（可选 YAML 覆盖）并创建分词器注册表与计数器
func newAccountant(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*tokenizer.Registry, *tokenizer.Accountant, error) {
	table := tokenizer.BuiltinModelTable()
	if cfg.Models.File != "" {
		t, err := tokenizer.LoadModelTable(cfg.Models.File)
		if err != nil {
			return nil, nil, fmt.Errorf("load model table: %w", err)
		}
		table = t
		logger.Info("model table loaded", zap.String("file", cfg.Models.File), zap.Int("models", t.Len()))
	}

	registry := tokenizer.NewRegistry(
		tokenizer.WithModelTable(table),
		tokenizer.WithFallbackRecorder(collector),
		tokenizer.WithRegistryLogger(logger),
	)
	return registry, tokenizer.NewAccountant(registry, logger), nil
}

// buildComponents 按依赖顺序装配：模型表 → 分词器 → 缓存 → 摘要后端 → 编排器。
// collector 不能为 nil；本地命令使用私有 Registry 上的收集器。
func buildComponents(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*components, error) {
	registry, accountant, err := newAccountant(cfg, collector, logger)
	if err != nil {
		return nil, err
	}
	c := &components{registry: registry, accountant: accountant}

	// 缓存不可用时降级为无缓存，不阻止启动
	var store summarizer.Store
	if cfg.Cache.Enabled {
		mgr, err := cache.NewManager(cfg.Cache.ManagerConfig(), logger)
		if err != nil {
			logger.Warn("summary cache not available, continuing without cache", zap.Error(err))
		} else {
			c.cache = mgr
			store = mgr
		}
	}

	s, err := summarizer.Build(cfg.Summarizer.FactoryConfig(cfg.Cache.TTL), summarizer.Deps{
		Store:    store,
		Recorder: collector,
		Logger:   logger,
	})
	if err != nil {
		c.close()
		return nil, fmt.Errorf("build summarizer: %w", err)
	}
	c.summarizer = s

	c.compressor = compress.New(accountant, s, cfg.Compression.CompressConfig(), compress.Deps{
		Recorder: collector,
		Logger:   logger,
	})
	return c, nil
}

// closeCache 作为 OnShutdown 钩子关闭缓存连接
func (c *components) closeCache(context.Context) error {
	return c.close()
}

func (c *components) close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}
