package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// UsageEntry 使用统计副本中的一条记录
type UsageEntry struct {
	UsageCount int    `json:"usageCount"`
	LastUsed   string `json:"lastUsed"`
	UpdatedAt  string `json:"updatedAt"`
}

// UsageMirror 按模板 id 保存使用次数的副本,仅作缓存,权威数据在模板存储中
type UsageMirror interface {
	Record(ctx context.Context, id string, entry UsageEntry) error
	Get(ctx context.Context, id string) (UsageEntry, bool, error)
	All(ctx context.Context) (map[string]UsageEntry, error)
}

// JSONUsageStore 使用 usage-data.json 保存副本
type JSONUsageStore struct {
	path string
}

// NewJSONUsageStore 创建 JSON 使用统计副本
func NewJSONUsageStore(path string) *JSONUsageStore {
	return &JSONUsageStore{path: path}
}

// Record 写入一条记录
func (s *JSONUsageStore) Record(ctx context.Context, id string, entry UsageEntry) error {
	mu := pathLock(s.path)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrWrite, err)
	}
	unlock, err := lockFile(ctx, s.path)
	if err != nil {
		return err
	}
	defer unlock()

	data := s.read()
	data[id] = entry

	encoded, err := encodePretty(data)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrWrite, err)
	}
	return writeFileAtomic(s.path, encoded)
}

// Get 读取单条记录
func (s *JSONUsageStore) Get(ctx context.Context, id string) (UsageEntry, bool, error) {
	all, err := s.All(ctx)
	if err != nil {
		return UsageEntry{}, false, err
	}
	entry, ok := all[id]
	return entry, ok, nil
}

// All 读取全部记录
func (s *JSONUsageStore) All(ctx context.Context) (map[string]UsageEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mu := pathLock(s.path)
	mu.RLock()
	defer mu.RUnlock()
	return s.read(), nil
}

// read 文件缺失或无法解析时从空副本开始
func (s *JSONUsageStore) read() map[string]UsageEntry {
	data := map[string]UsageEntry{}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return data
	}
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return map[string]UsageEntry{}
	}
	return data
}

const (
	redisUsageKeyPrefix = "wati:usage:"
	redisUsageIndexKey  = "wati:usage:ids"
)

// RedisUsageStore 使用 Redis hash 保存副本
type RedisUsageStore struct {
	client redis.Cmdable
}

// NewRedisUsageStore 创建 Redis 使用统计副本
func NewRedisUsageStore(client redis.Cmdable) *RedisUsageStore {
	return &RedisUsageStore{client: client}
}

// Record 写入一条记录
func (s *RedisUsageStore) Record(ctx context.Context, id string, entry UsageEntry) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, redisUsageKeyPrefix+id,
			"usageCount", entry.UsageCount,
			"lastUsed", entry.LastUsed,
			"updatedAt", entry.UpdatedAt,
		)
		pipe.SAdd(ctx, redisUsageIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record usage for %s: %w", id, err)
	}
	return nil
}

// Get 读取单条记录
func (s *RedisUsageStore) Get(ctx context.Context, id string) (UsageEntry, bool, error) {
	values, err := s.client.HGetAll(ctx, redisUsageKeyPrefix+id).Result()
	if err != nil {
		return UsageEntry{}, false, fmt.Errorf("failed to read usage for %s: %w", id, err)
	}
	if len(values) == 0 {
		return UsageEntry{}, false, nil
	}
	count, _ := strconv.Atoi(values["usageCount"])
	return UsageEntry{
		UsageCount: count,
		LastUsed:   values["lastUsed"],
		UpdatedAt:  values["updatedAt"],
	}, true, nil
}

// All 读取全部记录
func (s *RedisUsageStore) All(ctx context.Context) (map[string]UsageEntry, error) {
	ids, err := s.client.SMembers(ctx, redisUsageIndexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list usage ids: %w", err)
	}
	out := make(map[string]UsageEntry, len(ids))
	for _, id := range ids {
		entry, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = entry
		}
	}
	return out, nil
}

