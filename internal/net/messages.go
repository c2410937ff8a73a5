package net

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/google/uuid"

	"unlimited/internal/engine"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrInvalidSide        = errors.New("invalid side value")
)

type MessageType int

const (
	Heartbeat MessageType = iota
	MakeOrder
	Take
	ImmediateOrCancel
	FillOrKill
	CancelOrder
	Depth
)

type ReportMessageType int

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
	DepthReport
)

type Message interface {
	GetType() MessageType
}

// Message format constants. Every message starts with a 2-byte type.
const (
	baseHeaderLen      = 2
	makeOrderHeaderLen = baseHeaderLen + 8 + 8 + 1 + 8 + 1
	takeHeaderLen      = baseHeaderLen + 8 + 1 + 1
	iocHeaderLen       = baseHeaderLen + 8 + 8 + 1 + 1
	cancelHeaderLen    = baseHeaderLen + 8 + 1
	depthHeaderLen     = baseHeaderLen + 1 + 2
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < baseHeaderLen {
		return BaseMessage{}, ErrMessageTooShort
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case MakeOrder:
		return parseMakeOrder(msg)
	case Take:
		return parseTake(msg)
	case ImmediateOrCancel, FillOrKill:
		return parseImmediate(typeOf, msg)
	case CancelOrder:
		return parseCancel(msg)
	case Depth:
		return parseDepth(msg)
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// parseSellingByte admits only the two boolean encodings on the wire.
func parseSellingByte(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, engine.ErrSellingTokenNotBool
	}
}

type MakeOrderMessage struct {
	BaseMessage
	AAmt         uint64 // 8 bytes
	BAmt         uint64 // 8 bytes
	SellingA     bool   // 1 byte
	PositionHint uint64 // 8 bytes
	OwnerLen     uint8  // 1 byte
	Owner        string // n bytes
}

func parseMakeOrder(msg []byte) (MakeOrderMessage, error) {
	m := MakeOrderMessage{BaseMessage: BaseMessage{TypeOf: MakeOrder}}
	if len(msg) < makeOrderHeaderLen-baseHeaderLen {
		return m, ErrMessageTooShort
	}
	m.AAmt = binary.BigEndian.Uint64(msg[0:8])
	m.BAmt = binary.BigEndian.Uint64(msg[8:16])
	selling, err := parseSellingByte(msg[16])
	if err != nil {
		return m, err
	}
	m.SellingA = selling
	m.PositionHint = binary.BigEndian.Uint64(msg[17:25])
	m.OwnerLen = msg[25]
	if len(msg) < 26+int(m.OwnerLen) {
		return m, ErrMessageTooShort
	}
	m.Owner = string(msg[26 : 26+m.OwnerLen])
	return m, nil
}

type TakeMessage struct {
	BaseMessage
	Amt       uint64 // 8 bytes
	SpendingA bool   // 1 byte
	OwnerLen  uint8  // 1 byte
	Owner     string // n bytes
}

func parseTake(msg []byte) (TakeMessage, error) {
	m := TakeMessage{BaseMessage: BaseMessage{TypeOf: Take}}
	if len(msg) < takeHeaderLen-baseHeaderLen {
		return m, ErrMessageTooShort
	}
	m.Amt = binary.BigEndian.Uint64(msg[0:8])
	spending, err := parseSellingByte(msg[8])
	if err != nil {
		return m, err
	}
	m.SpendingA = spending
	m.OwnerLen = msg[9]
	if len(msg) < 10+int(m.OwnerLen) {
		return m, ErrMessageTooShort
	}
	m.Owner = string(msg[10 : 10+m.OwnerLen])
	return m, nil
}

// ImmediateMessage covers both immediate-or-cancel and fill-or-kill, which
// share a wire layout.
type ImmediateMessage struct {
	BaseMessage
	AAmt     uint64 // 8 bytes
	BAmt     uint64 // 8 bytes
	SellingA bool   // 1 byte
	OwnerLen uint8  // 1 byte
	Owner    string // n bytes
}

func parseImmediate(typeOf MessageType, msg []byte) (ImmediateMessage, error) {
	m := ImmediateMessage{BaseMessage: BaseMessage{TypeOf: typeOf}}
	if len(msg) < iocHeaderLen-baseHeaderLen {
		return m, ErrMessageTooShort
	}
	m.AAmt = binary.BigEndian.Uint64(msg[0:8])
	m.BAmt = binary.BigEndian.Uint64(msg[8:16])
	selling, err := parseSellingByte(msg[16])
	if err != nil {
		return m, err
	}
	m.SellingA = selling
	m.OwnerLen = msg[17]
	if len(msg) < 18+int(m.OwnerLen) {
		return m, ErrMessageTooShort
	}
	m.Owner = string(msg[18 : 18+m.OwnerLen])
	return m, nil
}

type CancelOrderMessage struct {
	BaseMessage
	OrderID  uint64 // 8 bytes
	OwnerLen uint8  // 1 byte
	Owner    string // n bytes
}

func parseCancel(msg []byte) (CancelOrderMessage, error) {
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	if len(msg) < cancelHeaderLen-baseHeaderLen {
		return m, ErrMessageTooShort
	}
	m.OrderID = binary.BigEndian.Uint64(msg[0:8])
	m.OwnerLen = msg[8]
	if len(msg) < 9+int(m.OwnerLen) {
		return m, ErrMessageTooShort
	}
	m.Owner = string(msg[9 : 9+m.OwnerLen])
	return m, nil
}

type DepthMessage struct {
	BaseMessage
	Side      engine.Side // 1 byte
	MaxLevels uint16      // 2 bytes
}

func parseDepth(msg []byte) (DepthMessage, error) {
	m := DepthMessage{BaseMessage: BaseMessage{TypeOf: Depth}}
	if len(msg) < depthHeaderLen-baseHeaderLen {
		return m, ErrMessageTooShort
	}
	switch msg[0] {
	case 0:
		m.Side = engine.Bid
	case 1:
		m.Side = engine.Ask
	default:
		return m, ErrInvalidSide
	}
	m.MaxLevels = binary.BigEndian.Uint16(msg[1:3])
	return m, nil
}

// Report is the wire answer to any request: an execution report on success,
// an error report otherwise. RequestID correlates it with the request.
type Report struct {
	MessageType ReportMessageType // 1 byte
	Op          MessageType       // 1 byte
	OrderID     uint64            // 8 bytes
	AUsed       uint64            // 8 bytes
	BUsed       uint64            // 8 bytes
	Remaining   uint64            // 8 bytes
	ErrStrLen   uint16            // 2 bytes
	RequestID   uuid.UUID         // 16 bytes
	Err         string            // n bytes
}

const reportFixedHeaderLen = 1 + 1 + 8 + 8 + 8 + 8 + 2 + 16

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() []byte {
	buf := make([]byte, reportFixedHeaderLen+len(r.Err))
	buf[0] = byte(r.MessageType)
	buf[1] = byte(r.Op)
	binary.BigEndian.PutUint64(buf[2:10], r.OrderID)
	binary.BigEndian.PutUint64(buf[10:18], r.AUsed)
	binary.BigEndian.PutUint64(buf[18:26], r.BUsed)
	binary.BigEndian.PutUint64(buf[26:34], r.Remaining)
	binary.BigEndian.PutUint16(buf[34:36], r.ErrStrLen)
	copy(buf[36:52], r.RequestID[:])
	copy(buf[reportFixedHeaderLen:], r.Err)
	return buf
}

// depthLevelWireLen is the size of one aggregated price level on the wire: bigger-token
// byte, a 16-byte big-endian ratio, then the two summed amounts.
const depthLevelWireLen = 1 + 16 + 8 + 8

func serializeDepth(requestID uuid.UUID, levels []engine.DepthLevel) []byte {
	buf := make([]byte, 1+16+2+len(levels)*depthLevelWireLen)
	buf[0] = byte(DepthReport)
	copy(buf[1:17], requestID[:])
	binary.BigEndian.PutUint16(buf[17:19], uint16(len(levels)))
	off := 19
	for _, l := range levels {
		buf[off] = byte(l.BiggerToken)
		l.PriceRatio.FillBytes(buf[off+1 : off+17])
		binary.BigEndian.PutUint64(buf[off+17:off+25], truncU64(l.SellingAmt))
		binary.BigEndian.PutUint64(buf[off+25:off+33], truncU64(l.BuyingAmt))
		off += depthLevelWireLen
	}
	return buf
}

func truncU64(v *big.Int) uint64 {
	if v.IsUint64() {
		return v.Uint64()
	}
	return ^uint64(0)
}
