// =============================================================================
// 文件: internal/segment/codec.go
// 描述: 段的线上编码 - Seq(4) + Ack(4) + Checksum(2) + Payload
// =============================================================================
package segment

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// HeaderSize 编码后的头部长度
const HeaderSize = 10

// ErrShortBuffer 数据不足一个头部
var ErrShortBuffer = errors.New("segment: buffer shorter than header")

// Marshal 编码段 (校验和原样写入，不重算)
func (s *Segment) Marshal() []byte {
	buf := make([]byte, HeaderSize+len(s.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(int32(s.SeqNum)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(s.AckNum)))
	binary.BigEndian.PutUint16(buf[8:10], s.Checksum)
	copy(buf[HeaderSize:], s.Payload)
	return buf
}

// Unmarshal 解码段，不校验校验和 (由接收方决定如何处理损坏)
func Unmarshal(data []byte) (*Segment, error) {
	if len(data) < HeaderSize {
		return nil, errors.Wrapf(ErrShortBuffer, "got %d bytes", len(data))
	}

	s := &Segment{
		SeqNum:   int(int32(binary.BigEndian.Uint32(data[0:4]))),
		AckNum:   int(int32(binary.BigEndian.Uint32(data[4:8]))),
		Checksum: binary.BigEndian.Uint16(data[8:10]),
		Payload:  string(data[HeaderSize:]),
	}

	if s.IsAck() && s.Payload != "" {
		return nil, errors.Errorf("segment: ack %d carries %d payload bytes", s.AckNum, len(s.Payload))
	}

	return s, nil
}
