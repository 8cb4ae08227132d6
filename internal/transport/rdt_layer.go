// =============================================================================
// 文件: internal/transport/rdt_layer.go
// 描述: RDT 可靠传输 - 发送 / 接收 / 重传状态机
//       每个 tick 先处理发送，再处理接收并回应
// =============================================================================
package transport

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/logging"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/segment"
)

const (
	// 重复段检测
	dupFilterExpectedItems = 65536
	dupFilterFalsePositive = 0.001
)

// RDTLayer 可靠传输层
// 单线程 tick 驱动；锁只用于让指标采集安全地读取统计
type RDTLayer struct {
	cfg *RDTConfig

	sendChannel    SendChannel
	receiveChannel ReceiveChannel
	dataToSend     string

	// 发送状态
	seqnum      int // 下一个尚未发送过的偏移
	prevAck     int // 最近一次收到的 ACK
	dupAckCount int // 同一 ACK 连续出现的次数

	// 接收状态
	received map[int]string // 偏移 -> 数据块

	currentIteration     uint64
	countSegmentTimeouts uint64

	dupFilter *bloom.BloomFilter
	stats     RDTStats
	logger    *zap.SugaredLogger

	mu sync.RWMutex
}

// NewRDTLayer 创建 RDT 层，cfg 为 nil 时使用默认配置
func NewRDTLayer(cfg *RDTConfig) (*RDTLayer, error) {
	if cfg == nil {
		cfg = DefaultRDTConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("RDT 配置无效: %w", err)
	}

	c := *cfg
	return &RDTLayer{
		cfg:       &c,
		received:  make(map[int]string),
		dupFilter: bloom.NewWithEstimates(dupFilterExpectedItems, dupFilterFalsePositive),
		logger:    logging.New("RDT:"+c.Name, c.LogLevel),
	}, nil
}

// =============================================================================
// 驱动接口
// =============================================================================

// SetSendChannel 设置不可靠的下层发送信道
func (l *RDTLayer) SetSendChannel(ch SendChannel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendChannel = ch
}

// SetReceiveChannel 设置不可靠的下层接收信道
func (l *RDTLayer) SetReceiveChannel(ch ReceiveChannel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receiveChannel = ch
}

// SetDataToSend 设置待发送数据，必须在第一次 tick 之前调用
func (l *RDTLayer) SetDataToSend(data string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dataToSend = data
}

// GetDataReceived 当前已按序组装的数据
func (l *RDTLayer) GetDataReceived() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.assemble()
}

// ProcessData 一个时间片
func (l *RDTLayer) ProcessData() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentIteration++
	l.stats.Iterations = l.currentIteration
	l.processSend()
	l.processReceiveAndSendRespond()
}

// CountSegmentTimeouts 累计触发重复 ACK 阈值的次数
func (l *RDTLayer) CountSegmentTimeouts() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.countSegmentTimeouts
}

// CurrentIteration 已处理的 tick 数
func (l *RDTLayer) CurrentIteration() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.currentIteration
}

// Stats 统计快照
func (l *RDTLayer) Stats() RDTStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := l.stats
	s.OutboundCursor = l.seqnum
	s.LastAck = l.prevAck
	s.SegmentTimeouts = l.countSegmentTimeouts
	return s
}

// Name 实例名 (日志与指标标签)
func (l *RDTLayer) Name() string {
	return l.cfg.Name
}

// =============================================================================
// 发送
// =============================================================================

func (l *RDTLayer) processSend() {
	// 纯接收方
	if l.dataToSend == "" {
		return
	}

	// 重复 ACK 达到阈值，或所有数据都至少发过一次：
	// 从对方最后确认的位置重发一个数据块
	if l.dupAckCount >= l.cfg.DupAckThreshold || l.seqnum > len(l.dataToSend) {
		s := segment.NewData(l.prevAck, l.chunk(l.prevAck))
		l.logger.Debugf("重传: %s", s)
		l.sendChannel.Send(s)

		l.stats.DataSegmentsSent++
		l.stats.Retransmits++
		l.dupAckCount = 0
		return
	}

	for i := 0; i < l.cfg.SegmentsPerWindow(); i++ {
		s := segment.NewData(l.seqnum, l.chunk(l.seqnum))
		l.logger.Debugf("发送: %s", s)
		l.sendChannel.Send(s)

		l.stats.DataSegmentsSent++
		l.seqnum += l.cfg.DataLength
	}
}

// chunk 取 start 开始的一个数据块，越界时返回更短或空的块
func (l *RDTLayer) chunk(start int) string {
	n := len(l.dataToSend)
	if start >= n {
		return ""
	}
	end := start + l.cfg.DataLength
	if end > n {
		end = n
	}
	return l.dataToSend[start:end]
}

// =============================================================================
// 接收与回应
// =============================================================================

func (l *RDTLayer) processReceiveAndSendRespond() {
	incoming := l.receiveChannel.Receive()
	if len(incoming) == 0 {
		return
	}

	// 同一批次的段类型一致，只看第一个
	first := segment.Classify(incoming[0])
	if first.Kind == segment.KindData {
		l.handleDataBatch(incoming)
		return
	}
	l.handleAck(first)
}

func (l *RDTLayer) handleDataBatch(incoming []*segment.Segment) {
	for _, s := range incoming {
		v := segment.Classify(s)
		l.stats.DataSegmentsReceived++
		if !v.Valid {
			// 静默丢弃，靠发送方的重复 ACK 升级恢复
			l.stats.CorruptSegments++
			l.logger.Debugf("校验和错误: %s", s)
			continue
		}
		if l.dupFilter.TestAndAdd(dupKey(v.Data)) {
			l.stats.DuplicateSegments++
		}
		l.received[v.Data.SeqNum] = v.Data.Payload
	}

	// 累积确认：已连续组装的长度
	assembled := l.assemble()
	l.stats.BytesReceived = len(assembled)

	ack := segment.NewAck(len(assembled))
	l.logger.Debugf("发送 ACK: %s", ack)
	l.sendChannel.Send(ack)
	l.stats.AcksSent++
}

func (l *RDTLayer) handleAck(v segment.View) {
	if !v.Valid {
		l.logger.Debugf("ACK 校验和错误，忽略")
		return
	}
	l.stats.AcksReceived++

	if v.Ack.Value == l.prevAck {
		l.dupAckCount++
		l.stats.DupAcks++
	} else {
		l.prevAck = v.Ack.Value
		l.dupAckCount = 0
	}

	if l.dupAckCount >= l.cfg.DupAckThreshold {
		l.countSegmentTimeouts++
		l.logger.Infof("段超时: ack=%d 已重复 %d 次", l.prevAck, l.dupAckCount)
	}
}

// assemble 从偏移 0 开始按块扫描，遇到第一个缺失的偏移即停止
func (l *RDTLayer) assemble() string {
	var b strings.Builder
	for i := 0; ; i += l.cfg.DataLength {
		chunk, ok := l.received[i]
		if !ok {
			break
		}
		b.WriteString(chunk)
	}
	return b.String()
}

func dupKey(d segment.Data) []byte {
	key := make([]byte, 8+len(d.Payload))
	binary.BigEndian.PutUint64(key[0:8], uint64(d.SeqNum))
	copy(key[8:], d.Payload)
	return key
}
