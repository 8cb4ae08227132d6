// =============================================================================
// 文件: internal/channel/unreliable.go
// 描述: 不可靠信道 - 按配置丢弃或损坏传输单元，保持相对顺序
// =============================================================================
package channel

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/logging"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/segment"
)

// 默认参数
const (
	DefaultDropRate    = 0.1
	DefaultCorruptRate = 0.1
)

// Config 信道配置
type Config struct {
	DropPackets    bool    // 是否丢包
	ChecksumErrors bool    // 是否产生校验和错误
	DropRate       float64 // 丢包概率 [0, 1]
	CorruptRate    float64 // 损坏概率 [0, 1]
	LogLevel       int
}

// DefaultConfig 默认配置 (完全可靠)
func DefaultConfig() Config {
	return Config{
		DropRate:    DefaultDropRate,
		CorruptRate: DefaultCorruptRate,
		LogLevel:    logging.LevelInfo,
	}
}

// Stats 信道统计
type Stats struct {
	DataSegments   uint64 // 进入信道的数据段
	AckSegments    uint64 // 进入信道的确认段
	Dropped        uint64 // 被丢弃
	ChecksumErrors uint64 // 被损坏
	Delivered      uint64 // 投递到接收队列
}

// UnreliableChannel 不可靠信道
// 段以编码后的字节形式在途，损坏发生在字节层面
type UnreliableChannel struct {
	name string
	cfg  Config
	rng  *rand.Rand

	sendQueue    [][]byte
	receiveQueue []*segment.Segment

	stats  Stats
	logger *zap.SugaredLogger
	mu     sync.RWMutex
}

// NewUnreliableChannel 创建信道，rng 为 nil 时使用当前时间作为种子
func NewUnreliableChannel(name string, cfg Config, rng *rand.Rand) *UnreliableChannel {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &UnreliableChannel{
		name:   name,
		cfg:    cfg,
		rng:    rng,
		logger: logging.New("Channel:"+name, cfg.LogLevel),
	}
}

// Send 将段放入发送队列 (立即返回)
func (c *UnreliableChannel) Send(s *segment.Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.IsAck() {
		c.stats.AckSegments++
	} else {
		c.stats.DataSegments++
	}
	c.sendQueue = append(c.sendQueue, s.Marshal())
}

// Receive 取出本轮投递的段，可能为空
func (c *UnreliableChannel) Receive() []*segment.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.receiveQueue
	c.receiveQueue = nil
	if batch == nil {
		return []*segment.Segment{}
	}
	return batch
}

// Manage 每轮调用一次：把发送队列搬到接收队列，途中丢弃或损坏
func (c *UnreliableChannel) Manage() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, frame := range c.sendQueue {
		if c.cfg.DropPackets && c.rng.Float64() < c.cfg.DropRate {
			c.stats.Dropped++
			c.logger.Debugf("丢弃: %d bytes", len(frame))
			continue
		}

		if c.cfg.ChecksumErrors && len(frame) > segment.HeaderSize && c.rng.Float64() < c.cfg.CorruptRate {
			c.corrupt(frame)
			c.stats.ChecksumErrors++
		}

		s, err := segment.Unmarshal(frame)
		if err != nil {
			c.stats.Dropped++
			c.logger.Errorf("解码失败: %v", err)
			continue
		}

		c.receiveQueue = append(c.receiveQueue, s)
		c.stats.Delivered++
	}
	c.sendQueue = c.sendQueue[:0]
}

// corrupt 改写一个数据字符 (只有数据段有载荷)
func (c *UnreliableChannel) corrupt(frame []byte) {
	payload := frame[segment.HeaderSize:]
	i := c.rng.Intn(len(payload))
	old := payload[i]
	for payload[i] == old {
		payload[i] = byte('!' + c.rng.Intn('~'-'!'+1))
	}
	c.logger.Debugf("损坏: offset %d %q -> %q", i, old, payload[i])
}

// Pending 在途段数量
func (c *UnreliableChannel) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sendQueue) + len(c.receiveQueue)
}

// Stats 获取统计快照
func (c *UnreliableChannel) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Name 信道名
func (c *UnreliableChannel) Name() string {
	return c.name
}
