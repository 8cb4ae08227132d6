// =============================================================================
// 文件: internal/metrics/health.go
// 描述: 传输健康检查 - 由 RDT 层统计与运行结果推导健康状态
// =============================================================================
package metrics

import (
	"fmt"
	"sync"
	"time"
)

// TransferHealth 跟踪一次传输的健康状态
//
//   - 进行中且两次检查之间客户端段超时次数增加: degraded
//   - 运行出错，或运行结束但数据不完整: unhealthy (未就绪)
//   - 其余: healthy
type TransferHealth struct {
	client  TransportStats
	server  TransportStats
	total   int
	version string
	start   time.Time

	mu           sync.Mutex
	lastTimeouts uint64
	finished     bool
	completed    bool
	err          error
}

// NewTransferHealth 创建健康检查，total 为待发送数据长度
func NewTransferHealth(client, server TransportStats, total int, version string) *TransferHealth {
	return &TransferHealth{
		client:  client,
		server:  server,
		total:   total,
		version: version,
		start:   time.Now(),
	}
}

// Finish 记录运行结果
func (h *TransferHealth) Finish(completed bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = true
	h.completed = completed
	h.err = err
}

// Check 计算当前健康状态，可直接传给 MetricsServer.SetHealthCheck
func (h *TransferHealth) Check() HealthStatus {
	c := h.client.Stats()
	s := h.server.Stats()

	h.mu.Lock()
	defer h.mu.Unlock()

	client := ComponentHealth{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("cursor=%d ack=%d timeouts=%d", c.OutboundCursor, c.LastAck, c.SegmentTimeouts),
	}
	if c.SegmentTimeouts > h.lastTimeouts {
		client.Status = StatusDegraded
	}
	h.lastTimeouts = c.SegmentTimeouts

	server := ComponentHealth{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("received=%d/%d corrupt=%d", s.BytesReceived, h.total, s.CorruptSegments),
	}

	var run ComponentHealth
	overall := client.Status
	switch {
	case h.err != nil:
		run = ComponentHealth{Status: StatusUnhealthy, Message: h.err.Error()}
		overall = StatusUnhealthy
	case h.finished && !h.completed:
		run = ComponentHealth{Status: StatusUnhealthy, Message: "传输未完成"}
		server.Status = StatusUnhealthy
		overall = StatusUnhealthy
	case h.finished:
		run = ComponentHealth{Status: StatusHealthy, Message: "传输完成"}
		overall = StatusHealthy
	default:
		run = ComponentHealth{Status: StatusHealthy, Message: "传输中"}
	}

	return HealthStatus{
		Status:    overall,
		Timestamp: time.Now(),
		Version:   h.version,
		Uptime:    time.Since(h.start),
		Components: map[string]ComponentHealth{
			"client": client,
			"server": server,
			"run":    run,
		},
	}
}
