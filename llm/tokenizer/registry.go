package tokenizer

import (
	"fmt"
	"sync"

	"github.com/IshaanRSharma/chatdigest/types"
	"go.uber.org/zap"
)

// BackendFactory 为编码族构造分词后端。可能失败或 panic，Registry 会兜底。
type BackendFactory func(family Family) (Encoder, error)

// FallbackRecorder observes tokenizer degradations.
type FallbackRecorder interface {
	RecordTokenizerFallback(family string, reason string)
}

// slot 在开始构造前登记，保证每个编码族只构造一次且不暴露半成品。
type slot struct {
	once   sync.Once
	handle *Handle
	err    error
}

// Registry 将模型解析为共享的分词器句柄。
// 句柄按编码族懒加载并缓存；并发首次使用时只构造一次。
type Registry struct {
	table         *ModelTable
	factory       BackendFactory
	defaultFamily Family
	recorder      FallbackRecorder
	logger        *zap.Logger

	mu    sync.Mutex
	slots map[Family]*slot
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithModelTable sets the model table used to map model IDs to families.
func WithModelTable(t *ModelTable) RegistryOption {
	return func(r *Registry) {
		if t != nil {
			r.table = t
		}
	}
}

// WithBackendFactory replaces the tiktoken backend.
func WithBackendFactory(f BackendFactory) RegistryOption {
	return func(r *Registry) {
		if f != nil {
			r.factory = f
		}
	}
}

// WithDefaultFamily sets the family used when the model's own family cannot be built.
func WithDefaultFamily(f Family) RegistryOption {
	return func(r *Registry) {
		if f != "" {
			r.defaultFamily = f
		}
	}
}

// WithFallbackRecorder reports degradations to a metrics sink.
func WithFallbackRecorder(rec FallbackRecorder) RegistryOption {
	return func(r *Registry) {
		r.recorder = rec
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry backed by tiktoken and the built-in model table.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factory:       NewTiktokenEncoder,
		defaultFamily: DefaultFamily,
		logger:        zap.NewNop(),
		slots:         make(map[Family]*slot),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.table == nil {
		r.table = BuiltinModelTable()
	}
	r.logger = r.logger.With(zap.String("component", "tokenizer_registry"))
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry()
})

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry()
}

// DefaultFamily returns the family used when a model's own family cannot be built.
func (r *Registry) DefaultFamily() Family {
	return r.defaultFamily
}

// Table returns the model table the registry resolves against.
func (r *Registry) Table() *ModelTable {
	return r.table
}

// Resolve 返回模型对应的句柄。永不返回错误：
// 构造失败时回退到默认编码族；默认编码族也失败时返回 nil（启发式计数）。
func (r *Registry) Resolve(model string) *Handle {
	family := r.table.FamilyFor(model)

	h, err := r.handleFor(family)
	if err == nil {
		return h
	}
	r.logger.Warn("tokenizer construction failed, falling back",
		zap.String("model", model),
		zap.String("family", string(family)),
		zap.Error(err))
	r.recordFallback(family, "construction_failed")

	if family != r.defaultFamily {
		dh, derr := r.handleFor(r.defaultFamily)
		if derr == nil {
			return dh
		}
		r.logger.Warn("default tokenizer unavailable, using heuristic counting",
			zap.String("family", string(r.defaultFamily)),
			zap.Error(derr))
	}
	r.recordFallback(r.defaultFamily, "heuristic")
	return nil
}

// ResolveFamily returns the handle for a family, or nil if it cannot be built.
func (r *Registry) ResolveFamily(family Family) *Handle {
	h, err := r.handleFor(family)
	if err != nil {
		return nil
	}
	return h
}

func (r *Registry) handleFor(family Family) (*Handle, error) {
	r.mu.Lock()
	s, ok := r.slots[family]
	if !ok {
		s = &slot{}
		r.slots[family] = s
	}
	r.mu.Unlock()

	s.once.Do(func() {
		s.handle, s.err = r.construct(family)
		if s.err == nil {
			r.logger.Debug("tokenizer constructed", zap.String("family", string(family)))
		}
	})
	return s.handle, s.err
}

func (r *Registry) construct(family Family) (h *Handle, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			h = nil
			err = types.NewError(types.ErrTokenizerError,
				fmt.Sprintf("tokenizer backend panicked for %s: %v", family, rec))
		}
	}()

	enc, err := r.factory(family)
	if err != nil {
		return nil, types.NewError(types.ErrTokenizerError,
			fmt.Sprintf("construct tokenizer for %s", family)).WithCause(err)
	}
	if enc == nil {
		return nil, types.NewError(types.ErrTokenizerError,
			fmt.Sprintf("tokenizer backend returned nil encoder for %s", family))
	}
	return &Handle{family: family, enc: enc}, nil
}

func (r *Registry) recordFallback(family Family, reason string) {
	if r.recorder != nil {
		r.recorder.RecordTokenizerFallback(string(family), reason)
	}
}
