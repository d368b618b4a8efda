package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
)

// Node 雪花 ID 生成器，一个进程一个 node
type Node struct {
	mu       sync.Mutex
	epochMS  int64
	nodeID   int64
	seq      int64
	lastTSMS int64
	now      func() time.Time
}

var (
	defaultNode *Node
	once        sync.Once
)

func NewNode(nodeID int64) *Node {
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	return &Node{
		epochMS: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		nodeID:  nodeID,
		now:     time.Now,
	}
}

func initDefault() {
	once.Do(func() {
		defaultNode = NewNode(1)
	})
}

// Generate 使用默认 node 生成连接 ID
func Generate() int64 {
	initDefault()
	return defaultNode.Next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

// SetNodeID 在 serve 启动时调用
func SetNodeID(nodeID int64) {
	initDefault()
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	defaultNode.mu.Lock()
	defaultNode.nodeID = nodeID
	defaultNode.mu.Unlock()
}

func (n *Node) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	for {
		now := n.now().UnixMilli()
		if now < n.lastTSMS {
			// 时钟回拨，等待
			time.Sleep(time.Duration(n.lastTSMS-now) * time.Millisecond)
			continue
		}
		if now == n.lastTSMS {
			n.seq = (n.seq + 1) & seqMask
			if n.seq == 0 {
				for now <= n.lastTSMS {
					now = n.now().UnixMilli()
				}
			}
		} else {
			n.seq = 0
		}
		n.lastTSMS = now

		ts := (now - n.epochMS) & (1<<41 - 1)
		return ts<<(nodeBits+seqBits) | n.nodeID<<seqBits | n.seq
	}
}

// NodeOf 取出 ID 中的 node 段，日志排查用
func NodeOf(id int64) int64 {
	return (id >> seqBits) & maxNode
}
