package zookeeper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memNodes 是内存里的节点树，只实现锁用到的操作
type memNodes struct {
	mu    sync.Mutex
	nodes map[string]bool
	seq   int
	lose  bool // Children 不返回任何子节点，相当于自己的临时节点随会话一起消失
}

func newMemNodes() *memNodes {
	return &memNodes{nodes: map[string]bool{}}
}

func (m *memNodes) has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[path]
}

func (m *memNodes) parentExists(path string) bool {
	parent := path[:strings.LastIndex(path, "/")]
	return parent == "" || m.nodes[parent]
}

func (m *memNodes) Create(path string, _ []byte, _ int32, _ []zk.ACL) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nodes[path] {
		return "", zk.ErrNodeExists
	}
	if !m.parentExists(path) {
		return "", zk.ErrNoNode
	}
	m.nodes[path] = true
	return path, nil
}

func (m *memNodes) CreateProtectedEphemeralSequential(prefix string, _ []byte, _ []zk.ACL) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.parentExists(prefix) {
		return "", zk.ErrNoNode
	}
	m.seq++
	i := strings.LastIndex(prefix, "/")
	node := fmt.Sprintf("%s/_c_%04d-%s%010d", prefix[:i], m.seq, prefix[i+1:], m.seq)
	m.nodes[node] = true
	return node, nil
}

func (m *memNodes) Children(path string) ([]string, *zk.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.nodes[path] {
		return nil, nil, zk.ErrNoNode
	}
	var out []string
	if m.lose {
		return out, &zk.Stat{}, nil
	}
	for p := range m.nodes {
		if rest, ok := strings.CutPrefix(p, path+"/"); ok && !strings.Contains(rest, "/") {
			out = append(out, rest)
		}
	}
	return out, &zk.Stat{}, nil
}

func (m *memNodes) ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[path], &zk.Stat{}, make(chan zk.Event, 1), nil
}

func (m *memNodes) Delete(path string, _ int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.nodes[path] {
		return zk.ErrNoNode
	}
	for p := range m.nodes {
		if strings.HasPrefix(p, path+"/") {
			return zk.ErrNotEmpty
		}
	}
	delete(m.nodes, path)
	return nil
}

func TestPredecessor_OrdersBySequenceNotGUID(t *testing.T) {
	children := []string{
		"_c_ffff-lock-0000000003",
		"_c_0000-lock-0000000007",
		"_c_aaaa-lock-0000000001",
	}

	prev, first, err := predecessor(children, "_c_0000-lock-0000000007")
	require.NoError(t, err)
	assert.False(t, first)
	assert.Equal(t, "_c_ffff-lock-0000000003", prev)

	_, first, err = predecessor(children, "_c_aaaa-lock-0000000001")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestPredecessor_OwnNodeMissing(t *testing.T) {
	_, first, err := predecessor([]string{"_c_abc-lock-0000000001"}, "_c_def-lock-0000000002")
	assert.ErrorIs(t, err, ErrLockNodeLost)
	assert.False(t, first)
}

func TestLockManager_RemovesLockPathAfterRelease(t *testing.T) {
	nodes := newMemNodes()
	m := &LockManager{conn: nodes}
	path := lockRoot + "/assignment_exp-1_u-1"

	release, err := m.Acquire(context.Background(), "assignment/exp-1/u-1")
	require.NoError(t, err)
	assert.True(t, nodes.has(path))

	require.NoError(t, release())
	assert.False(t, nodes.has(path))
	assert.True(t, nodes.has(lockRoot))
}

func TestDistributedLock_KeepsPathWhileOthersWait(t *testing.T) {
	nodes := newMemNodes()
	l, err := newDistributedLock(nodes, "k")
	require.NoError(t, err)
	require.NoError(t, l.Lock(context.Background()))

	// 排在后面的竞争者
	_, err = nodes.CreateProtectedEphemeralSequential(l.path+"/lock-", nil, nil)
	require.NoError(t, err)

	require.NoError(t, l.Unlock())
	assert.True(t, nodes.has(l.path))
}

func TestDistributedLock_FailsWhenOwnNodeLost(t *testing.T) {
	nodes := newMemNodes()
	nodes.lose = true
	m := &LockManager{conn: nodes}

	release, err := m.Acquire(context.Background(), "assignment/exp-1/u-1")
	assert.ErrorIs(t, err, ErrLockNodeLost)
	assert.Nil(t, release)
	// 半途创建的节点和锁路径都被清理
	assert.False(t, nodes.has(lockRoot+"/assignment_exp-1_u-1"))
}

func TestDistributedLock_RecreatesPathRemovedConcurrently(t *testing.T) {
	nodes := newMemNodes()
	l, err := newDistributedLock(nodes, "k")
	require.NoError(t, err)

	// 上一个持有者释放时删掉了锁路径
	require.NoError(t, nodes.Delete(l.path, -1))

	require.NoError(t, l.Lock(context.Background()))
	assert.True(t, nodes.has(l.lockNode))
	require.NoError(t, l.Unlock())
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "assignment_exp-1_user_42", sanitize("assignment/exp-1/user 42"))
}
