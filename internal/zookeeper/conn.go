// internal/zookeeper/conn.go
package zookeeper

import (
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
)

// Conn 是对 zk.Conn 的薄封装，方便在业务代码里传递
type Conn struct {
	*zk.Conn
}

// Connect 连接 ZooKeeper 集群。servers 为逗号分隔的 host:port 列表。
func Connect(servers string, sessionTimeout time.Duration) (*Conn, error) {
	var list []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return nil, errors.New("zookeeper server list is empty")
	}
	conn, _, err := zk.Connect(list, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to zookeeper %s", servers)
	}
	zlog.Info().Strs("servers", list).Msg("connected to zookeeper")
	return &Conn{Conn: conn}, nil
}

// nodeStore 是锁用到的 ZooKeeper 操作，*Conn 满足它
type nodeStore interface {
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Delete(path string, version int32) error
}

// ensurePath 逐级创建持久节点，已存在的节点忽略
func ensurePath(c nodeStore, path string) error {
	current := ""
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		current += "/" + part
		_, err := c.Create(current, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return errors.Wrapf(err, "failed to create node %s", current)
		}
	}
	return nil
}
