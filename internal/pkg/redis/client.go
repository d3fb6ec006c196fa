// internal/pkg/redis/client.go
package redis

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
)

// Client 封装了 go-redis 的 UniversalClient，并管理预加载的 Lua 脚本。
// 单个地址时是普通客户端，多个地址时是集群客户端。
type Client struct {
	rdb     redis.UniversalClient
	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient 根据逗号分隔的地址创建客户端，并做一次 PING 检查连接
func NewClient(addrs string) (*Client, error) {
	list := splitAddrs(addrs)
	if len(list) == 0 {
		return nil, errors.New("redis address list is empty")
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: list})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addrs)
	}
	zlog.Info().Strs("addrs", list).Msg("connected to redis")
	return NewClientFrom(rdb), nil
}

// NewClientFrom 包装一个已经创建好的 go-redis 客户端
func NewClientFrom(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb, scripts: make(map[string]*redis.Script)}
}

// LoadScriptFromContent 注册并预加载一段 Lua 脚本，之后可以用 name 调用
func (c *Client) LoadScriptFromContent(name, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.Errorf("script %q is empty", name)
	}
	script := redis.NewScript(content)
	if err := script.Load(context.Background(), c.rdb).Err(); err != nil {
		return errors.Wrapf(err, "failed to load script %q", name)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本。EvalSha 失败（例如脚本缓存被清空）时 go-redis 会自动回退到 Eval。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("script %q is not loaded", name)
	}
	result, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to run script %q", name)
	}
	return result, nil
}

// GetClient 暴露底层客户端，用于脚本之外的简单命令
func (c *Client) GetClient() redis.UniversalClient {
	return c.rdb
}

// Close 关闭连接池
func (c *Client) Close() error {
	return c.rdb.Close()
}

func splitAddrs(addrs string) []string {
	var out []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
