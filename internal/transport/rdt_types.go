// =============================================================================
// 文件: internal/transport/rdt_types.go
// 描述: RDT 可靠传输 - 类型定义
// =============================================================================
package transport

import (
	"fmt"

	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/logging"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/segment"
)

// RDT 协议常量
const (
	DataLength         = 4  // 每个数据段的字符数
	FlowControlWinSize = 15 // 流控窗口 (字符)
	DupAckThreshold    = 5  // 重复 ACK 升级阈值
)

// SendChannel 下层发送信道 (发出即返回，可能丢弃或损坏)
type SendChannel interface {
	Send(s *segment.Segment)
}

// ReceiveChannel 下层接收信道 (返回本轮到达的段，可能为空)
type ReceiveChannel interface {
	Receive() []*segment.Segment
}

// RDTConfig RDT 层配置，仅在创建时读取
type RDTConfig struct {
	Name               string
	DataLength         int
	FlowControlWinSize int
	DupAckThreshold    int
	LogLevel           int
}

// DefaultRDTConfig 默认配置
func DefaultRDTConfig() *RDTConfig {
	return &RDTConfig{
		Name:               "rdt",
		DataLength:         DataLength,
		FlowControlWinSize: FlowControlWinSize,
		DupAckThreshold:    DupAckThreshold,
		LogLevel:           logging.LevelInfo,
	}
}

// Validate 校验配置
func (c *RDTConfig) Validate() error {
	if c.DataLength <= 0 {
		return fmt.Errorf("data_length 必须大于 0: %d", c.DataLength)
	}
	if c.FlowControlWinSize < c.DataLength {
		return fmt.Errorf("window_size (%d) 不能小于 data_length (%d)", c.FlowControlWinSize, c.DataLength)
	}
	if c.DupAckThreshold <= 0 {
		return fmt.Errorf("dup_ack_threshold 必须大于 0: %d", c.DupAckThreshold)
	}
	return nil
}

// SegmentsPerWindow 一个窗口内可流水线发送的段数
func (c *RDTConfig) SegmentsPerWindow() int {
	return c.FlowControlWinSize / c.DataLength
}

// RDTStats RDT 层统计
type RDTStats struct {
	Iterations uint64

	// 发送
	DataSegmentsSent uint64
	Retransmits      uint64
	AcksSent         uint64
	OutboundCursor   int

	// 确认
	AcksReceived    uint64
	DupAcks         uint64
	LastAck         int
	SegmentTimeouts uint64

	// 接收
	DataSegmentsReceived uint64
	CorruptSegments      uint64
	DuplicateSegments    uint64 // 布隆过滤器判定，可能有少量误报
	BytesReceived        int
}
