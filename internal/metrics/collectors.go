// =============================================================================
// 文件: internal/metrics/collectors.go
// 描述: Prometheus 指标收集器定义 - RDT 层与不可靠信道
// =============================================================================
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/channel"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/transport"
)

const namespace = "rdt"

// =============================================================================
// Transport 收集器
// =============================================================================

// TransportStats RDT 层统计数据接口
type TransportStats interface {
	Name() string
	Stats() transport.RDTStats
}

// TransportCollector RDT 层指标收集器
type TransportCollector struct {
	providers []TransportStats

	iterationsDesc     *prometheus.Desc
	dataSentDesc       *prometheus.Desc
	retransmitsDesc    *prometheus.Desc
	acksSentDesc       *prometheus.Desc
	acksReceivedDesc   *prometheus.Desc
	dupAcksDesc        *prometheus.Desc
	timeoutsDesc       *prometheus.Desc
	dataReceivedDesc   *prometheus.Desc
	corruptDesc        *prometheus.Desc
	duplicateDesc      *prometheus.Desc
	bytesReceivedDesc  *prometheus.Desc
	outboundCursorDesc *prometheus.Desc
	lastAckDesc        *prometheus.Desc
}

// NewTransportCollector 创建 RDT 层收集器，每个 provider 以 layer 标签区分
func NewTransportCollector(providers ...TransportStats) *TransportCollector {
	subsystem := "transport"
	labels := []string{"layer"}

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}

	return &TransportCollector{
		providers: providers,

		iterationsDesc:     desc("iterations_total", "Number of processed ticks"),
		dataSentDesc:       desc("data_segments_sent_total", "Data segments handed to the send channel"),
		retransmitsDesc:    desc("retransmits_total", "Data segments re-sent from the last acknowledged offset"),
		acksSentDesc:       desc("acks_sent_total", "Cumulative acknowledgments sent"),
		acksReceivedDesc:   desc("acks_received_total", "Acknowledgments received with a valid checksum"),
		dupAcksDesc:        desc("dup_acks_total", "Acknowledgments repeating the previous value"),
		timeoutsDesc:       desc("segment_timeouts_total", "Times the duplicate-ACK threshold was reached"),
		dataReceivedDesc:   desc("data_segments_received_total", "Data segments received"),
		corruptDesc:        desc("corrupt_segments_total", "Data segments discarded on checksum mismatch"),
		duplicateDesc:      desc("duplicate_segments_total", "Data segments already seen; Bloom filter estimate that may over-report, never under-report"),
		bytesReceivedDesc:  desc("contiguous_bytes", "Length of the contiguous prefix assembled so far"),
		outboundCursorDesc: desc("outbound_cursor", "Next offset not yet transmitted"),
		lastAckDesc:        desc("last_ack", "Last acknowledgment value observed"),
	}
}

// Describe 实现 prometheus.Collector 接口
func (c *TransportCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.iterationsDesc
	ch <- c.dataSentDesc
	ch <- c.retransmitsDesc
	ch <- c.acksSentDesc
	ch <- c.acksReceivedDesc
	ch <- c.dupAcksDesc
	ch <- c.timeoutsDesc
	ch <- c.dataReceivedDesc
	ch <- c.corruptDesc
	ch <- c.duplicateDesc
	ch <- c.bytesReceivedDesc
	ch <- c.outboundCursorDesc
	ch <- c.lastAckDesc
}

// Collect 实现 prometheus.Collector 接口
func (c *TransportCollector) Collect(ch chan<- prometheus.Metric) {
	for _, p := range c.providers {
		name := p.Name()
		s := p.Stats()

		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), name)
		}
		gauge := func(d *prometheus.Desc, v int) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), name)
		}

		counter(c.iterationsDesc, s.Iterations)
		counter(c.dataSentDesc, s.DataSegmentsSent)
		counter(c.retransmitsDesc, s.Retransmits)
		counter(c.acksSentDesc, s.AcksSent)
		counter(c.acksReceivedDesc, s.AcksReceived)
		counter(c.dupAcksDesc, s.DupAcks)
		counter(c.timeoutsDesc, s.SegmentTimeouts)
		counter(c.dataReceivedDesc, s.DataSegmentsReceived)
		counter(c.corruptDesc, s.CorruptSegments)
		counter(c.duplicateDesc, s.DuplicateSegments)
		gauge(c.bytesReceivedDesc, s.BytesReceived)
		gauge(c.outboundCursorDesc, s.OutboundCursor)
		gauge(c.lastAckDesc, s.LastAck)
	}
}

// =============================================================================
// Channel 收集器
// =============================================================================

// ChannelStats 信道统计数据接口
type ChannelStats interface {
	Name() string
	Stats() channel.Stats
}

// ChannelCollector 信道指标收集器
type ChannelCollector struct {
	providers []ChannelStats

	segmentsDesc  *prometheus.Desc
	droppedDesc   *prometheus.Desc
	corruptDesc   *prometheus.Desc
	deliveredDesc *prometheus.Desc
}

// NewChannelCollector 创建信道收集器
func NewChannelCollector(providers ...ChannelStats) *ChannelCollector {
	subsystem := "channel"

	return &ChannelCollector{
		providers: providers,

		segmentsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "segments_total"),
			"Segments accepted by the channel",
			[]string{"channel", "kind"}, nil,
		),
		droppedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "dropped_total"),
			"Segments silently dropped",
			[]string{"channel"}, nil,
		),
		corruptDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "checksum_errors_total"),
			"Segments delivered with a corrupted payload",
			[]string{"channel"}, nil,
		),
		deliveredDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "delivered_total"),
			"Segments delivered to the receive side",
			[]string{"channel"}, nil,
		),
	}
}

// Describe 实现 prometheus.Collector 接口
func (c *ChannelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.segmentsDesc
	ch <- c.droppedDesc
	ch <- c.corruptDesc
	ch <- c.deliveredDesc
}

// Collect 实现 prometheus.Collector 接口
func (c *ChannelCollector) Collect(ch chan<- prometheus.Metric) {
	for _, p := range c.providers {
		name := p.Name()
		s := p.Stats()

		ch <- prometheus.MustNewConstMetric(c.segmentsDesc, prometheus.CounterValue,
			float64(s.DataSegments), name, "data")
		ch <- prometheus.MustNewConstMetric(c.segmentsDesc, prometheus.CounterValue,
			float64(s.AckSegments), name, "ack")
		ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue,
			float64(s.Dropped), name)
		ch <- prometheus.MustNewConstMetric(c.corruptDesc, prometheus.CounterValue,
			float64(s.ChecksumErrors), name)
		ch <- prometheus.MustNewConstMetric(c.deliveredDesc, prometheus.CounterValue,
			float64(s.Delivered), name)
	}
}
