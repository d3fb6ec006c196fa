// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
)

const (
	lockRoot       = "/promotion_locks" // 所有分布式锁的根节点
	seqLen         = 10                 // 顺序节点的序号固定是 10 位
	createAttempts = 3                  // 锁路径被并发清理时，重建后重试创建的次数
)

// ErrLockNodeLost 表示自己创建的顺序节点已经不在了（通常是会话过期），此时不能认为持有锁
var ErrLockNodeLost = errors.New("lock node lost")

// DistributedLock 是基于临时顺序节点的公平锁，一个实例同一时间只持有一次锁
type DistributedLock struct {
	conn     nodeStore
	path     string // 锁的路径，例如 /promotion_locks/assignment_exp-1_u-1
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个锁实例，并确保锁路径存在
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	return newDistributedLock(conn, resourceID)
}

func newDistributedLock(conn nodeStore, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + sanitize(resourceID)
	if err := ensurePath(conn, lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// Lock 获取锁，直到成功、出错或者 ctx 结束
func (l *DistributedLock) Lock(ctx context.Context) error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.createNode()
	if err != nil {
		return errors.Wrap(err, "failed to create sequential node")
	}
	l.lockNode = nodePath
	myNode := strings.TrimPrefix(nodePath, l.path+"/")

	for {
		// 2. 获取所有竞争者，判断自己是否排在最前
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "failed to get children nodes")
		}
		prev, first, err := predecessor(children, myNode)
		if err != nil {
			l.abandon()
			return errors.Wrapf(err, "lock %s", l.path)
		}
		if first {
			return nil
		}

		// 3. 监听前一个节点，它被删除后重新竞争
		exists, _, events, err := l.conn.ExistsW(l.path + "/" + prev)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "failed to watch previous node")
		}
		if !exists {
			continue
		}
		select {
		case <-events:
		case <-ctx.Done():
			l.abandon()
			return errors.Wrap(ctx.Err(), "waiting for lock")
		}
	}
}

// createNode 创建顺序节点。锁路径可能刚被上一个持有者清理掉，这时重建路径再试
func (l *DistributedLock) createNode() (string, error) {
	var err error
	for i := 0; i < createAttempts; i++ {
		var node string
		node, err = l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", nil, zk.WorldACL(zk.PermAll))
		if err != zk.ErrNoNode {
			return node, err
		}
		if err := ensurePath(l.conn, l.path); err != nil {
			return "", err
		}
	}
	return "", err
}

// Unlock 释放锁，并在没有其他竞争者时删除锁路径
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return errors.Wrap(err, "failed to delete lock node")
	}
	l.lockNode = ""
	l.removePath()
	return nil
}

func (l *DistributedLock) abandon() {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
	}
	l.removePath()
}

// removePath 删除空的锁路径。还有人在排队时 ZooKeeper 返回 ErrNotEmpty，保留即可
func (l *DistributedLock) removePath() {
	err := l.conn.Delete(l.path, -1)
	if err != nil && err != zk.ErrNotEmpty && err != zk.ErrNoNode {
		zlog.Warn().Err(err).Str("path", l.path).Msg("failed to remove lock path")
	}
}

// LockManager 按资源名创建锁，并以 Acquire/release 的形式暴露给调用方
type LockManager struct {
	conn nodeStore
}

// NewLockManager 创建锁管理器
func NewLockManager(conn *Conn) *LockManager {
	return &LockManager{conn: conn}
}

// Acquire 获取 key 对应的锁，返回释放函数
func (m *LockManager) Acquire(ctx context.Context, key string) (func() error, error) {
	lock, err := newDistributedLock(m.conn, key)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return lock.Unlock, nil
}

// predecessor 按序号排序后返回排在 mine 前面的节点。
// 受保护的节点名带有 GUID 前缀，所以不能直接按名字排序。
// mine 不在列表里时返回 ErrLockNodeLost。
func predecessor(children []string, mine string) (prev string, first bool, err error) {
	sorted := append([]string(nil), children...)
	sort.Slice(sorted, func(i, j int) bool { return sequence(sorted[i]) < sequence(sorted[j]) })
	for i, child := range sorted {
		if child == mine {
			if i == 0 {
				return "", true, nil
			}
			return sorted[i-1], false, nil
		}
	}
	return "", false, ErrLockNodeLost
}

func sequence(node string) string {
	if len(node) <= seqLen {
		return node
	}
	return node[len(node)-seqLen:]
}

func sanitize(resourceID string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(resourceID)
}
