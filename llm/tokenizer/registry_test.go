package tokenizer

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wordEncoder emits one token per whitespace-separated field.
type wordEncoder struct{}

func (wordEncoder) Encode(text string) ([]int, error) {
	fields := strings.Fields(text)
	out := make([]int, len(fields))
	for i := range out {
		out[i] = i
	}
	return out, nil
}

type failingEncoder struct{}

func (failingEncoder) Encode(string) ([]int, error) {
	return nil, errors.New("encode failed")
}

type panickingEncoder struct{}

func (panickingEncoder) Encode(string) ([]int, error) {
	panic("boom")
}

type fallbackRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *fallbackRecorder) RecordTokenizerFallback(family, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, family+":"+reason)
}

func countingFactory(calls *atomic.Int64, delay time.Duration) BackendFactory {
	return func(Family) (Encoder, error) {
		calls.Add(1)
		time.Sleep(delay)
		return wordEncoder{}, nil
	}
}

func TestRegistry_ConcurrentFirstUseConstructsOnce(t *testing.T) {
	var calls atomic.Int64
	r := NewRegistry(WithBackendFactory(countingFactory(&calls, 20*time.Millisecond)))

	const workers = 64
	handles := make([]*Handle, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			handles[i] = r.Resolve("gpt-4")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, h := range handles {
		require.NotNil(t, h)
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, FamilyCL100K, handles[0].Family())
}

func TestRegistry_ModelsShareFamilyHandle(t *testing.T) {
	var calls atomic.Int64
	r := NewRegistry(WithBackendFactory(countingFactory(&calls, 0)))

	a := r.Resolve("gpt-4")
	b := r.Resolve("claude-3-opus")
	c := r.Resolve("gpt-4o")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, FamilyO200K, c.Family())
	assert.Equal(t, int64(2), calls.Load())
}

func TestRegistry_FallsBackToDefaultFamily(t *testing.T) {
	rec := &fallbackRecorder{}
	r := NewRegistry(
		WithFallbackRecorder(rec),
		WithRegistryLogger(zap.NewNop()),
		WithBackendFactory(func(f Family) (Encoder, error) {
			if f == FamilyO200K {
				return nil, errors.New("download failed")
			}
			return wordEncoder{}, nil
		}),
	)

	h := r.Resolve("gpt-4o")
	require.NotNil(t, h)
	assert.Equal(t, DefaultFamily, h.Family())
	assert.Contains(t, rec.reasons, "o200k_base:construction_failed")
}

func TestRegistry_PanicInFactoryFallsBack(t *testing.T) {
	r := NewRegistry(WithBackendFactory(func(f Family) (Encoder, error) {
		if f == FamilyP50K {
			panic("corrupt BPE file")
		}
		return wordEncoder{}, nil
	}))

	h := r.Resolve("text-davinci-003")
	require.NotNil(t, h)
	assert.Equal(t, DefaultFamily, h.Family())
}

func TestRegistry_AllFailuresYieldNilHandle(t *testing.T) {
	rec := &fallbackRecorder{}
	var calls atomic.Int64
	r := NewRegistry(
		WithFallbackRecorder(rec),
		WithBackendFactory(func(Family) (Encoder, error) {
			calls.Add(1)
			return nil, errors.New("offline")
		}),
	)

	assert.Nil(t, r.Resolve("gpt-4o"))
	assert.Nil(t, r.Resolve("gpt-4o"))
	// one attempt per family, failures are not retried
	assert.Equal(t, int64(2), calls.Load())
	assert.Contains(t, rec.reasons, "cl100k_base:heuristic")
}

func TestRegistry_NilEncoderIsAFailure(t *testing.T) {
	r := NewRegistry(WithBackendFactory(func(Family) (Encoder, error) {
		return nil, nil
	}))
	assert.Nil(t, r.Resolve("gpt-4"))
	assert.Nil(t, r.ResolveFamily(FamilyCL100K))
}

func TestRegistry_UnknownModelUsesDefaultFamily(t *testing.T) {
	r := NewRegistry(WithBackendFactory(func(Family) (Encoder, error) { return wordEncoder{}, nil }))

	h := r.Resolve("totally-new-model")
	require.NotNil(t, h)
	assert.Equal(t, DefaultFamily, h.Family())
}

func TestNewTiktokenEncoder_UnknownFamily(t *testing.T) {
	_, err := NewTiktokenEncoder("made_up_base")
	require.Error(t, err)
}

func TestDefault_IsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
