package trust

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/scrapenet/internal/model"
)

func TestBlend_MovesTowardScore(t *testing.T) {
	v := Vector{0.5, 0.5, 0.5}
	require.NoError(t, v.Blend([]int{0, 2}, []float64{1, 0}, 0.7))

	assert.InDelta(t, 0.65, v[0], 1e-9)
	assert.InDelta(t, 0.5, v[1], 1e-9, "unscored uid unchanged")
	assert.InDelta(t, 0.35, v[2], 1e-9)
}

func TestBlend_StaysInRange(t *testing.T) {
	v := NewVector(4, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, v.Blend([]int{0, 1, 2, 3, 99}, []float64{1, 0, 2, -1, 1}, 0.7))
	}
	for i, x := range v {
		assert.GreaterOrEqual(t, x, 0.0, "uid %d", i)
		assert.LessOrEqual(t, x, 1.0, "uid %d", i)
	}
	assert.InDelta(t, 1.0, v[0], 1e-9)
}

func TestBlend_Errors(t *testing.T) {
	v := NewVector(2, 0)
	assert.Error(t, v.Blend([]int{0}, nil, 0.5))
	assert.Error(t, v.Blend([]int{0}, []float64{1}, 1.5))
}

func TestResize(t *testing.T) {
	v := Vector{0.2, 0.4}
	grown := v.Resize(4, 0.1)
	assert.Equal(t, Vector{0.2, 0.4, 0.1, 0.1}, grown)
	assert.Equal(t, Vector{0.2}, grown.Resize(1, 0))
}

func TestWeights(t *testing.T) {
	w := Vector{1, 3, 0}.Weights()
	assert.InDeltaSlice(t, []float64{0.25, 0.75, 0}, w, 1e-9)

	zero := NewVector(3, 0).Weights()
	assert.Equal(t, []float64{0, 0, 0}, zero)
}

func TestMaskUnreachable(t *testing.T) {
	v := Vector{0.3, 0.4, 0.5}
	cleared := v.MaskUnreachable(func(uid int) bool { return uid == 1 })
	assert.Equal(t, 2, cleared)
	assert.Equal(t, Vector{0, 0.4, 0}, v)

	v.Zero([]int{1, 7})
	assert.Equal(t, Vector{0, 0, 0}, v)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scores.json")
	s := NewFileStore(path, 0)
	ctx := context.Background()

	_, err := s.Load(ctx, 3)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Save(ctx, Vector{0.1, 0.9}))
	got, err := s.Load(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, Vector{0.1, 0.9, 0}, got)

	entries, _ := os.ReadDir(filepath.Dir(path))
	assert.Len(t, entries, 1, "Expected no temp files left behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path, 0).Load(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestLoadOrNew(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "scores.json"), 0.2)
	v, err := LoadOrNew(context.Background(), s, 2, 0.2)
	require.NoError(t, err)
	assert.Equal(t, Vector{0.2, 0.2}, v)
}

// fakeKV stores values in a map the way redis would
type fakeKV struct {
	data   map[string][]byte
	setErr error
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	b, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(b), nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	kv := &fakeKV{data: map[string][]byte{}}
	s := NewRedisStore(kv, "scrapenet:trust", 0)
	ctx := context.Background()

	_, err := s.Load(ctx, 2)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Save(ctx, Vector{0.5, 0.25}))
	got, err := s.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Vector{0.5, 0.25}, got)
	assert.NoError(t, s.Ping(ctx))
}

func TestRedisStore_SaveFailureKeepsPrevious(t *testing.T) {
	kv := &fakeKV{data: map[string][]byte{}}
	s := NewRedisStore(kv, "k", 0)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Vector{0.5}))

	kv.setErr = errors.New("connection reset")
	assert.Error(t, s.Save(ctx, Vector{0.9}))

	got, err := s.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Vector{0.5}, got)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(model.TrustConfig{Backend: "file", Path: "x.json"})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = NewStore(model.TrustConfig{Backend: "redis", Redis: model.RedisConfig{Addr: "127.0.0.1:0", Key: "k"}})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)

	_, err = NewStore(model.TrustConfig{Backend: "etcd"})
	assert.Error(t, err)
}
