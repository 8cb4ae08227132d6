// =============================================================================
// 文件: internal/segment/segment.go
// 描述: 传输单元 - 数据段 / 确认段 及其校验和
// =============================================================================
package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/google/netstack/tcpip/header"
)

// NoAck 数据段的 AckNum 哨兵值
const NoAck = -1

// NoSeq 确认段不使用 SeqNum
const NoSeq = -1

// Segment 传输单元
// AckNum == -1 表示数据段，其余值 (包括 0) 表示纯确认段
type Segment struct {
	SeqNum   int    // 数据在发送流中的字节偏移
	AckNum   int    // 累积确认值 (接收方已连续组装的字节数)
	Payload  string // 数据块
	Checksum uint16 // 覆盖 SeqNum / AckNum / Payload
}

// NewData 创建数据段
func NewData(seq int, payload string) *Segment {
	s := &Segment{}
	s.SetData(seq, payload)
	return s
}

// NewAck 创建确认段
func NewAck(ack int) *Segment {
	s := &Segment{}
	s.SetAck(ack)
	return s
}

// SetData 设置为数据段并重算校验和
func (s *Segment) SetData(seq int, payload string) {
	s.SeqNum = seq
	s.AckNum = NoAck
	s.Payload = payload
	s.Checksum = s.calcChecksum()
}

// SetAck 设置为确认段并重算校验和
func (s *Segment) SetAck(ack int) {
	s.SeqNum = NoSeq
	s.AckNum = ack
	s.Payload = ""
	s.Checksum = s.calcChecksum()
}

// IsAck 是否为确认段
func (s *Segment) IsAck() bool {
	return s.AckNum != NoAck
}

// CheckChecksum 重新计算并比较校验和
func (s *Segment) CheckChecksum() bool {
	return s.calcChecksum() == s.Checksum
}

// String 调试输出
func (s *Segment) String() string {
	return fmt.Sprintf("seq: %d, ack: %d, data: %s", s.SeqNum, s.AckNum, s.Payload)
}

// calcChecksum Internet 反码校验和
func (s *Segment) calcChecksum() uint16 {
	buf := make([]byte, 8+len(s.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(int32(s.SeqNum)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(s.AckNum)))
	copy(buf[8:], s.Payload)
	return header.Checksum(buf, 0) ^ 0xffff
}
