// =============================================================================
// 文件: internal/segment/view.go
// 描述: 边界解码 - 将哨兵字段转换为显式的数据/确认变体
// =============================================================================
package segment

// Kind 段类型
type Kind uint8

const (
	KindData Kind = iota
	KindAck
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// Data 数据变体
type Data struct {
	SeqNum  int
	Payload string
}

// Ack 确认变体
type Ack struct {
	Value int
}

// View 解码后的段
type View struct {
	Kind  Kind
	Data  Data
	Ack   Ack
	Valid bool // 校验和是否通过
}

// Classify 在接收边界上解码一次，之后的逻辑不再检查哨兵值
func Classify(s *Segment) View {
	v := View{Valid: s.CheckChecksum()}
	if s.IsAck() {
		v.Kind = KindAck
		v.Ack = Ack{Value: s.AckNum}
		return v
	}
	v.Kind = KindData
	v.Data = Data{SeqNum: s.SeqNum, Payload: s.Payload}
	return v
}
