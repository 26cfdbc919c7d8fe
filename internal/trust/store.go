package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/scrapenet/internal/model"
)

// ErrNotFound is returned when no trust vector has been saved yet
var ErrNotFound = errors.New("trust vector not found")

// Store persists the trust vector
type Store interface {
	// Load returns the saved vector resized to n
	Load(ctx context.Context, n int) (Vector, error)
	// Save replaces the stored vector as a whole
	Save(ctx context.Context, v Vector) error
}

// snapshot is the persisted form
type snapshot struct {
	Scores    Vector    `json:"scores"`
	UpdatedAt time.Time `json:"updated_at"`
}

func decode(data []byte, n int, initial float64) (Vector, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode trust vector: %w", err)
	}
	v := snap.Scores.Resize(n, initial)
	for i := range v {
		v[i] = clamp(v[i])
	}
	return v, nil
}

func encode(v Vector, now time.Time) ([]byte, error) {
	return json.Marshal(snapshot{Scores: v, UpdatedAt: now.UTC()})
}

// FileStore keeps the vector in a JSON file, replaced atomically
type FileStore struct {
	path    string
	initial float64
	now     func() time.Time
}

// NewFileStore creates a file store at path
func NewFileStore(path string, initial float64) *FileStore {
	return &FileStore{path: path, initial: initial, now: time.Now}
}

// Load implements Store
func (s *FileStore) Load(ctx context.Context, n int) (Vector, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return decode(data, n, s.initial)
}

// Save implements Store. The previous file stays intact if writing fails.
func (s *FileStore) Save(ctx context.Context, v Vector) error {
	data, err := encode(v, s.now())
	if err != nil {
		return fmt.Errorf("encode trust vector: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".trust-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write trust vector: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("sync trust vector: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close trust vector: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit trust vector: %w", err)
	}
	return nil
}

// kv is the slice of the redis client the store uses
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStore keeps the vector under one key, written with a single SET
type RedisStore struct {
	rdb     kv
	key     string
	initial float64
	now     func() time.Time
}

// NewRedisClient creates a client from configuration
func NewRedisClient(cfg model.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisStore creates a store under key
func NewRedisStore(rdb kv, key string, initial float64) *RedisStore {
	return &RedisStore{rdb: rdb, key: key, initial: initial, now: time.Now}
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Load implements Store
func (s *RedisStore) Load(ctx context.Context, n int) (Vector, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return decode(data, n, s.initial)
}

// Save implements Store
func (s *RedisStore) Save(ctx context.Context, v Vector) error {
	data, err := encode(v, s.now())
	if err != nil {
		return fmt.Errorf("encode trust vector: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// NewStore builds the configured backend
func NewStore(cfg model.TrustConfig) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Path, cfg.Initial), nil
	case "redis":
		return NewRedisStore(NewRedisClient(cfg.Redis), cfg.Redis.Key, cfg.Initial), nil
	}
	return nil, fmt.Errorf("unknown trust backend %q (supported: file, redis)", cfg.Backend)
}

// LoadOrNew loads the vector or starts a fresh one when none was saved
func LoadOrNew(ctx context.Context, s Store, n int, initial float64) (Vector, error) {
	v, err := s.Load(ctx, n)
	if errors.Is(err, ErrNotFound) {
		return NewVector(n, initial), nil
	}
	return v, err
}
