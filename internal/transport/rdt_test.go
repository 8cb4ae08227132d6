// =============================================================================
// 文件: internal/transport/rdt_test.go
// 描述: RDT 可靠传输状态机测试
// =============================================================================
package transport

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/logging"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/segment"
)

// recordChannel 记录发送的段
type recordChannel struct {
	sent []*segment.Segment
}

func (c *recordChannel) Send(s *segment.Segment) {
	c.sent = append(c.sent, s)
}

func (c *recordChannel) take() []*segment.Segment {
	out := c.sent
	c.sent = nil
	return out
}

// scriptChannel 每次 Receive 返回一个预置批次
type scriptChannel struct {
	batches [][]*segment.Segment
}

func (c *scriptChannel) push(batch ...*segment.Segment) {
	c.batches = append(c.batches, batch)
}

func (c *scriptChannel) Receive() []*segment.Segment {
	if len(c.batches) == 0 {
		return nil
	}
	b := c.batches[0]
	c.batches = c.batches[1:]
	return b
}

func newTestLayer(tb testing.TB, data string) (*RDTLayer, *recordChannel, *scriptChannel) {
	cfg := DefaultRDTConfig()
	cfg.LogLevel = logging.LevelError
	l, err := NewRDTLayer(cfg)
	if err != nil {
		tb.Fatalf("创建 RDT 层失败: %v", err)
	}
	out := &recordChannel{}
	in := &scriptChannel{}
	l.SetSendChannel(out)
	l.SetReceiveChannel(in)
	if data != "" {
		l.SetDataToSend(data)
	}
	return l, out, in
}

func TestFirstTickPipelinesWindow(t *testing.T) {
	l, out, _ := newTestLayer(t, "ABCDEFGHIJKL")
	l.ProcessData()

	sent := out.take()
	if len(sent) != 3 {
		t.Fatalf("一个窗口应发送 3 个段: got %d", len(sent))
	}

	want := []struct {
		seq     int
		payload string
	}{{0, "ABCD"}, {4, "EFGH"}, {8, "IJKL"}}
	for i, w := range want {
		if sent[i].IsAck() || sent[i].SeqNum != w.seq || sent[i].Payload != w.payload {
			t.Errorf("段 %d 不正确: got %s", i, sent[i])
		}
		if !sent[i].CheckChecksum() {
			t.Errorf("段 %d 校验和应通过", i)
		}
	}

	if l.CurrentIteration() != 1 {
		t.Errorf("CurrentIteration 不正确: got %d", l.CurrentIteration())
	}
}

func TestReceiverAcksCompleteWindow(t *testing.T) {
	l, out, in := newTestLayer(t, "")
	in.push(
		segment.NewData(0, "ABCD"),
		segment.NewData(4, "EFGH"),
		segment.NewData(8, "IJKL"),
	)
	l.ProcessData()

	sent := out.take()
	if len(sent) != 1 {
		t.Fatalf("应只回应一个 ACK: got %d", len(sent))
	}
	if !sent[0].IsAck() || sent[0].AckNum != 12 {
		t.Errorf("ACK 不正确: got %s", sent[0])
	}
	if got := l.GetDataReceived(); got != "ABCDEFGHIJKL" {
		t.Errorf("组装数据不正确: got %q", got)
	}
}

func TestReceiverOnlyNeverSendsData(t *testing.T) {
	l, out, _ := newTestLayer(t, "")
	for i := 0; i < 10; i++ {
		l.ProcessData()
	}
	// 纯接收方且没有输入：既不发数据也不回应
	if sent := out.take(); len(sent) != 0 {
		t.Errorf("静默 tick 不应产生任何段: got %d", len(sent))
	}
	if l.CurrentIteration() != 10 {
		t.Errorf("CurrentIteration 不正确: got %d", l.CurrentIteration())
	}
}

func TestGapStallsAck(t *testing.T) {
	l, out, in := newTestLayer(t, "")

	// offset 4 丢失
	in.push(segment.NewData(0, "ABCD"), segment.NewData(8, "IJKL"))
	in.push(segment.NewData(12, "MNOP"))
	in.push(segment.NewData(16, "QRST"))
	for i := 0; i < 3; i++ {
		l.ProcessData()
	}

	for _, ack := range out.take() {
		if ack.AckNum != 4 {
			t.Errorf("存在空洞时 ACK 应停在 4: got %d", ack.AckNum)
		}
	}

	// 补上空洞后 ACK 跳到末尾
	in.push(segment.NewData(4, "EFGH"))
	l.ProcessData()
	sent := out.take()
	if len(sent) != 1 || sent[0].AckNum != 20 {
		t.Errorf("补齐后 ACK 应为 20: got %v", sent)
	}
}

func TestCumulativeAckMonotonic(t *testing.T) {
	l, out, in := newTestLayer(t, "")
	rng := rand.New(rand.NewSource(7))
	offsets := rng.Perm(25)

	for _, o := range offsets {
		in.push(segment.NewData(o*4, "abcd"))
	}

	prev := -1
	for range offsets {
		l.ProcessData()
		sent := out.take()
		if len(sent) != 1 {
			t.Fatalf("每个数据批次应回应一个 ACK: got %d", len(sent))
		}
		if sent[0].AckNum < prev {
			t.Fatalf("ACK 不应减少: %d after %d", sent[0].AckNum, prev)
		}
		prev = sent[0].AckNum
	}
	if prev != 100 {
		t.Errorf("最终 ACK 应为 100: got %d", prev)
	}
}

func TestOutOfOrderConvergence(t *testing.T) {
	payload := "The quick brown fox jumps over the lazy dog!"
	var chunks []*segment.Segment
	for i := 0; i < len(payload); i += DataLength {
		end := i + DataLength
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, segment.NewData(i, payload[i:end]))
	}

	for seed := int64(0); seed < 20; seed++ {
		l, _, in := newTestLayer(t, "")
		rng := rand.New(rand.NewSource(seed))
		perm := rng.Perm(len(chunks))

		// 随机切成若干批次
		for len(perm) > 0 {
			n := 1 + rng.Intn(len(perm))
			var batch []*segment.Segment
			for _, idx := range perm[:n] {
				batch = append(batch, chunks[idx])
			}
			in.push(batch...)
			perm = perm[n:]
		}
		for len(in.batches) > 0 {
			l.ProcessData()
		}

		if got := l.GetDataReceived(); got != payload {
			t.Errorf("seed %d: 组装结果不正确: got %q", seed, got)
		}
	}
}

func TestIdempotentReassembly(t *testing.T) {
	l, _, in := newTestLayer(t, "")
	in.push(segment.NewData(0, "ABCD"), segment.NewData(8, "IJKL"))
	l.ProcessData()

	first := l.GetDataReceived()
	second := l.GetDataReceived()
	if first != second || first != "ABCD" {
		t.Errorf("重复读取结果应一致: %q vs %q", first, second)
	}
}

func TestCorruptSegmentDiscarded(t *testing.T) {
	l, out, in := newTestLayer(t, "")

	bad := segment.NewData(0, "ABCD")
	bad.Payload = "ABXD"
	in.push(bad, segment.NewData(4, "EFGH"))
	l.ProcessData()

	sent := out.take()
	if len(sent) != 1 || sent[0].AckNum != 0 {
		t.Errorf("损坏段不应推进 ACK: got %v", sent)
	}
	if got := l.GetDataReceived(); strings.Contains(got, "ABXD") || got != "" {
		t.Errorf("损坏段不应出现在组装数据中: got %q", got)
	}
	if l.Stats().CorruptSegments != 1 {
		t.Errorf("CorruptSegments 不正确: got %d", l.Stats().CorruptSegments)
	}

	// 重传的正确段可以修复
	in.push(segment.NewData(0, "ABCD"))
	l.ProcessData()
	if got := l.GetDataReceived(); got != "ABCDEFGH" {
		t.Errorf("重传后组装不正确: got %q", got)
	}
}

func TestDupAckEscalation(t *testing.T) {
	data := strings.Repeat("0123456789", 10)
	l, out, in := newTestLayer(t, data)

	// tick 1: 仅发送
	l.ProcessData()
	out.take()

	// tick 2-6: 每轮收到 ack=0
	for i := 0; i < DupAckThreshold; i++ {
		in.push(segment.NewAck(0))
		l.ProcessData()
		if sent := out.take(); len(sent) != 3 {
			t.Fatalf("阈值前应正常流水线发送: got %d", len(sent))
		}
	}

	if l.CountSegmentTimeouts() != 1 {
		t.Errorf("达到阈值应记一次超时: got %d", l.CountSegmentTimeouts())
	}

	before := l.Stats().OutboundCursor
	l.ProcessData()
	sent := out.take()

	if len(sent) != 1 {
		t.Fatalf("升级后应只重传一个段: got %d", len(sent))
	}
	if sent[0].SeqNum != 0 || sent[0].Payload != "0123" {
		t.Errorf("应重传最后确认位置的数据块: got %s", sent[0])
	}
	if after := l.Stats().OutboundCursor; after != before {
		t.Errorf("重传不应推进发送游标: %d -> %d", before, after)
	}
	if l.dupAckCount != 0 {
		t.Errorf("重传后重复计数应清零: got %d", l.dupAckCount)
	}
	if l.Stats().Retransmits != 1 {
		t.Errorf("Retransmits 不正确: got %d", l.Stats().Retransmits)
	}
}

func TestNewAckResetsDupCount(t *testing.T) {
	data := strings.Repeat("x", 400)
	l, out, in := newTestLayer(t, data)

	acks := []int{0, 0, 0, 4, 4, 4, 4, 12}
	for _, a := range acks {
		in.push(segment.NewAck(a))
		l.ProcessData()
		if sent := out.take(); len(sent) != 3 {
			t.Fatalf("ack=%d: 未达阈值不应重传: got %d 个段", a, len(sent))
		}
	}

	if l.CountSegmentTimeouts() != 0 {
		t.Errorf("新 ACK 应打断重复计数: timeouts=%d", l.CountSegmentTimeouts())
	}
	if got := l.Stats().LastAck; got != 12 {
		t.Errorf("LastAck 不正确: got %d", got)
	}
}

func TestCorruptAckIgnored(t *testing.T) {
	l, _, in := newTestLayer(t, strings.Repeat("x", 400))

	bad := segment.NewAck(8)
	bad.AckNum = 16
	in.push(bad)
	l.ProcessData()

	s := l.Stats()
	if s.LastAck != 0 || s.AcksReceived != 0 {
		t.Errorf("损坏的 ACK 应被忽略: %+v", s)
	}
}

func TestWindowBound(t *testing.T) {
	cases := []struct {
		dataLength int
		window     int
	}{
		{4, 15},
		{4, 16},
		{5, 12},
		{3, 3},
	}

	for _, tc := range cases {
		cfg := DefaultRDTConfig()
		cfg.DataLength = tc.dataLength
		cfg.FlowControlWinSize = tc.window
		cfg.LogLevel = logging.LevelError
		l, err := NewRDTLayer(cfg)
		if err != nil {
			t.Fatalf("创建 RDT 层失败: %v", err)
		}
		out := &recordChannel{}
		l.SetSendChannel(out)
		l.SetReceiveChannel(&scriptChannel{})
		l.SetDataToSend(strings.Repeat("y", 1000))

		for i := 0; i < 10; i++ {
			l.ProcessData()
			total := 0
			for _, s := range out.take() {
				total += len(s.Payload)
			}
			limit := (tc.window / tc.dataLength) * tc.dataLength
			if total > limit {
				t.Errorf("chunk=%d window=%d: 单轮发送 %d 字符，超过 %d", tc.dataLength, tc.window, total, limit)
			}
		}
	}
}

func TestSendPastEndOfBuffer(t *testing.T) {
	l, out, _ := newTestLayer(t, "ABCDEFGHIJ")

	l.ProcessData()
	sent := out.take()
	if len(sent) != 3 || sent[2].Payload != "IJ" {
		t.Fatalf("最后一个数据块应更短: got %v", sent)
	}

	// 游标 12 已越过长度 10，进入重传路径
	l.ProcessData()
	sent = out.take()
	if len(sent) != 1 || sent[0].SeqNum != 0 || sent[0].Payload != "ABCD" {
		t.Errorf("全部发出后应从最后确认位置重传: got %v", sent)
	}
}

func TestCursorAtEndSendsEmptyChunks(t *testing.T) {
	l, out, _ := newTestLayer(t, "ABCDEFGHIJKL")
	l.ProcessData()
	out.take()

	// 游标恰好等于长度，仍走正常路径，发送空块
	l.ProcessData()
	sent := out.take()
	if len(sent) != 3 {
		t.Fatalf("应发送 3 个空块: got %d", len(sent))
	}
	for _, s := range sent {
		if s.Payload != "" {
			t.Errorf("越界数据块应为空: got %s", s)
		}
	}
	if l.Stats().OutboundCursor != 24 {
		t.Errorf("OutboundCursor 不正确: got %d", l.Stats().OutboundCursor)
	}
}

func TestDuplicateSegmentsCounted(t *testing.T) {
	l, _, in := newTestLayer(t, "")
	in.push(segment.NewData(0, "ABCD"), segment.NewData(4, "EFGH"))
	in.push(segment.NewData(0, "ABCD"))
	l.ProcessData()
	l.ProcessData()

	if got := l.Stats().DuplicateSegments; got != 1 {
		t.Errorf("DuplicateSegments 不正确: got %d, want 1", got)
	}
	if got := l.GetDataReceived(); got != "ABCDEFGH" {
		t.Errorf("重复段不应影响组装: got %q", got)
	}
}

func TestRDTConfigValidate(t *testing.T) {
	if err := DefaultRDTConfig().Validate(); err != nil {
		t.Errorf("默认配置应有效: %v", err)
	}
	if n := DefaultRDTConfig().SegmentsPerWindow(); n != 3 {
		t.Errorf("默认每窗口段数应为 3: got %d", n)
	}

	bad := []*RDTConfig{
		{DataLength: 0, FlowControlWinSize: 15, DupAckThreshold: 5},
		{DataLength: 4, FlowControlWinSize: 3, DupAckThreshold: 5},
		{DataLength: 4, FlowControlWinSize: 15, DupAckThreshold: 0},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("配置应无效: %+v", c)
		}
	}
}

func TestNewRDTLayerRejectsInvalidConfig(t *testing.T) {
	t.Run("零值配置", func(t *testing.T) {
		l, err := NewRDTLayer(&RDTConfig{Name: "x"})
		if err == nil || l != nil {
			t.Fatalf("零值配置应被拒绝: layer=%v err=%v", l, err)
		}
	})

	t.Run("数据块长度为 0", func(t *testing.T) {
		cfg := DefaultRDTConfig()
		cfg.DataLength = 0
		if _, err := NewRDTLayer(cfg); err == nil {
			t.Error("data_length=0 应被拒绝")
		}
	})

	t.Run("nil 使用默认配置", func(t *testing.T) {
		l, err := NewRDTLayer(nil)
		if err != nil {
			t.Fatalf("nil 配置应使用默认值: %v", err)
		}
		l.SetSendChannel(&recordChannel{})
		in := &scriptChannel{}
		l.SetReceiveChannel(in)
		in.push(segment.NewData(0, "ABCD"))

		done := make(chan struct{})
		go func() {
			l.ProcessData()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("ProcessData 未在 2s 内返回")
		}
		if got := l.GetDataReceived(); got != "ABCD" {
			t.Errorf("组装结果不正确: got %q", got)
		}
	})
}

func TestConfigCopiedAtConstruction(t *testing.T) {
	cfg := DefaultRDTConfig()
	cfg.LogLevel = logging.LevelError
	l, err := NewRDTLayer(cfg)
	if err != nil {
		t.Fatalf("创建 RDT 层失败: %v", err)
	}
	cfg.DataLength = 0

	out := &recordChannel{}
	l.SetSendChannel(out)
	l.SetReceiveChannel(&scriptChannel{})
	l.SetDataToSend("ABCDEFGH")
	l.ProcessData()
	if sent := out.take(); len(sent) != 3 || sent[0].Payload != "ABCD" {
		t.Errorf("创建后修改配置不应生效: got %v", sent)
	}
}

func BenchmarkRDTReassembly(b *testing.B) {
	l, _, in := newTestLayer(b, "")
	var batch []*segment.Segment
	for i := 0; i < 1024; i++ {
		batch = append(batch, segment.NewData(i*DataLength, "abcd"))
	}
	in.push(batch...)
	l.ProcessData()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.GetDataReceived()
	}
}
