package net

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unlimited/internal/engine"
)

func appendOwner(buf []byte, owner string) []byte {
	buf = append(buf, uint8(len(owner)))
	return append(buf, owner...)
}

func TestParseMakeOrder(t *testing.T) {
	buf := binary.BigEndian.AppendUint16(nil, uint16(MakeOrder))
	buf = binary.BigEndian.AppendUint64(buf, 500)
	buf = binary.BigEndian.AppendUint64(buf, 100)
	buf = append(buf, 1) // selling A
	buf = binary.BigEndian.AppendUint64(buf, 7)
	buf = appendOwner(buf, "alice")

	msg, err := parseMessage(buf)
	require.NoError(t, err)
	m, ok := msg.(MakeOrderMessage)
	require.True(t, ok)
	assert.EqualValues(t, 500, m.AAmt)
	assert.EqualValues(t, 100, m.BAmt)
	assert.True(t, m.SellingA)
	assert.EqualValues(t, 7, m.PositionHint)
	assert.Equal(t, "alice", m.Owner)
}

func TestParseRejectsBadSellingByte(t *testing.T) {
	buf := binary.BigEndian.AppendUint16(nil, uint16(MakeOrder))
	buf = binary.BigEndian.AppendUint64(buf, 500)
	buf = binary.BigEndian.AppendUint64(buf, 100)
	buf = append(buf, 2) // neither 0 nor 1
	buf = binary.BigEndian.AppendUint64(buf, 0)
	buf = appendOwner(buf, "alice")

	_, err := parseMessage(buf)
	assert.ErrorIs(t, err, engine.ErrSellingTokenNotBool)
}

func TestParseCancelAndShortMessages(t *testing.T) {
	buf := binary.BigEndian.AppendUint16(nil, uint16(CancelOrder))
	buf = binary.BigEndian.AppendUint64(buf, 42)
	buf = appendOwner(buf, "bob")

	msg, err := parseMessage(buf)
	require.NoError(t, err)
	m, ok := msg.(CancelOrderMessage)
	require.True(t, ok)
	assert.EqualValues(t, 42, m.OrderID)
	assert.Equal(t, "bob", m.Owner)

	// Truncated frames fail cleanly.
	_, err = parseMessage(buf[:5])
	assert.ErrorIs(t, err, ErrMessageTooShort)
	_, err = parseMessage([]byte{0xff})
	assert.ErrorIs(t, err, ErrMessageTooShort)
	_, err = parseMessage([]byte{0xff, 0xff})
	assert.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestReportRoundTrip(t *testing.T) {
	id := uuid.New()
	r := Report{
		MessageType: ErrorReport,
		Op:          FillOrKill,
		OrderID:     9,
		AUsed:       12,
		BUsed:       34,
		Remaining:   56,
		ErrStrLen:   uint16(len("boom")),
		RequestID:   id,
		Err:         "boom",
	}
	buf := r.Serialize()
	require.Len(t, buf, reportFixedHeaderLen+4)

	assert.EqualValues(t, ErrorReport, buf[0])
	assert.EqualValues(t, FillOrKill, buf[1])
	assert.EqualValues(t, 9, binary.BigEndian.Uint64(buf[2:10]))
	assert.EqualValues(t, 12, binary.BigEndian.Uint64(buf[10:18]))
	assert.EqualValues(t, 34, binary.BigEndian.Uint64(buf[18:26]))
	assert.EqualValues(t, 56, binary.BigEndian.Uint64(buf[26:34]))
	assert.EqualValues(t, 4, binary.BigEndian.Uint16(buf[34:36]))
	assert.Equal(t, id[:], buf[36:52])
	assert.Equal(t, "boom", string(buf[reportFixedHeaderLen:]))
}
