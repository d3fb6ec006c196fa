// internal/service/promotion/infrastructure/redis_store.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"nexus-promotion/internal/pkg/redis"
	"nexus-promotion/internal/service/promotion/domain"
)

const assignScriptName = "assign_if_absent"

// RedisAssignmentStore 是 AssignmentStore 的 Redis 实现。
// 插入即胜出由 Lua 脚本保证：脚本在 Redis 中是原子执行的。
type RedisAssignmentStore struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisAssignmentStore 创建存储并加载脚本。ttl 为 0 时记录永不过期。
func NewRedisAssignmentStore(redisClient *redis.Client, ttl time.Duration) (*RedisAssignmentStore, error) {
	if err := redisClient.LoadScriptFromContent(assignScriptName, assignScript); err != nil {
		return nil, errors.Wrap(err, "failed to load assignment script")
	}
	return &RedisAssignmentStore{redisClient: redisClient, ttl: ttl}, nil
}

// assignmentKey 用 hash tag 把同一个实验的记录放在同一个槽位
func assignmentKey(experimentID, identifier string) string {
	return fmt.Sprintf("promotion:assignment:{%s}:%s", experimentID, identifier)
}

// GetAssignment 读取分配记录
func (s *RedisAssignmentStore) GetAssignment(ctx context.Context, experimentID, identifier string) (*domain.Assignment, error) {
	raw, err := s.redisClient.GetClient().Get(ctx, assignmentKey(experimentID, identifier)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get assignment %s/%s", experimentID, identifier)
	}
	return decodeAssignment(raw)
}

// CreateAssignmentIfAbsent 执行脚本：已存在则返回旧值，否则写入新值
func (s *RedisAssignmentStore) CreateAssignmentIfAbsent(ctx context.Context, a *domain.Assignment) (*domain.Assignment, bool, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to encode assignment")
	}
	keys := []string{assignmentKey(a.ExperimentID, a.Identifier)}
	result, err := s.redisClient.RunScript(ctx, assignScriptName, keys, string(payload), int64(s.ttl/time.Second))
	if err != nil {
		return nil, false, errors.Wrap(err, "assignment store failed to run script")
	}

	reply, ok := result.([]interface{})
	if !ok || len(reply) != 2 {
		return nil, false, errors.Errorf("unexpected result from assignment script: %T", result)
	}
	code, _ := reply[0].(int64)
	raw, _ := reply[1].(string)
	stored, err := decodeAssignment(raw)
	if err != nil {
		return nil, false, err
	}
	return stored, code == 1, nil
}

func decodeAssignment(raw string) (*domain.Assignment, error) {
	var a domain.Assignment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, errors.Wrap(err, "failed to decode assignment")
	}
	return &a, nil
}

var assignScript = `
-- KEYS[1]: 分配记录的 Key, 例如: promotion:assignment:{exp-1}:user-42
-- ARGV[1]: 新的分配记录 (JSON)
-- ARGV[2]: 过期秒数, 0 表示不过期

-- 1. 已经有记录，返回旧值
local existing = redis.call('get', KEYS[1])
if existing then
    return {0, existing}
end

-- 2. 写入新记录
local ttl = tonumber(ARGV[2])
if ttl and ttl > 0 then
    redis.call('set', KEYS[1], ARGV[1], 'EX', ttl)
else
    redis.call('set', KEYS[1], ARGV[1])
end
return {1, ARGV[1]}
`
