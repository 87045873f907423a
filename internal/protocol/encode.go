package protocol

import (
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
)

// ErrShortFrame is returned by UnmarshalFrame when the buffer cannot hold a
// header.
var ErrShortFrame = errors.New("frame shorter than header")

const headerSize = 2

// EscapeBody replaces every ':' with Placeholder so a body survives the
// colon-delimited payload. A body that already contains Placeholder does not
// round-trip; that is a known limitation of the wire format.
func EscapeBody(body string) string {
	return strings.ReplaceAll(body, fieldSep, Placeholder)
}

// UnescapeBody restores the ':' characters hidden by EscapeBody.
func UnescapeBody(body string) string {
	return strings.ReplaceAll(body, Placeholder, fieldSep)
}

// EncodeMessage builds a message frame. responseID is optional.
func EncodeMessage(sender, receiver, body string, responseID *int64) Frame {
	var b strings.Builder
	b.WriteString(sender)
	b.WriteString(fieldSep)
	b.WriteString(receiver)
	b.WriteString(fieldSep)
	b.WriteString(EscapeBody(body))
	if responseID != nil {
		b.WriteString(fieldSep)
		b.WriteString(strconv.FormatInt(*responseID, 10))
	}
	return Frame{Header: uint16(CmdMessage), Payload: b.String()}
}

// EncodePresence builds a Hello, Welcome or GoodBye frame for userID.
func EncodePresence(kind PresenceKind, userID string) Frame {
	cmd := CmdHelloWorld
	switch kind {
	case PresenceWelcome:
		cmd = CmdWelcome
	case PresenceGoodBye:
		cmd = CmdGoodBye
	}
	return Frame{Header: uint16(cmd), Payload: userID + fieldSep + cmd.String()}
}

// EncodeConnCount builds a connection count frame.
func EncodeConnCount(n int) Frame {
	return Frame{Header: uint16(CmdConnCount), Payload: CmdConnCount.String() + fieldSep + strconv.Itoa(n)}
}

// EncodeReaction builds a reaction frame carrying the new absolute total.
func EncodeReaction(op ReactionOp, messageID int64, count int) Frame {
	cmd := CmdAddReaction
	if op == ReactionRemove {
		cmd = CmdRemoveReaction
	}
	payload := cmd.String() + fieldSep + strconv.FormatInt(messageID, 10) + subFieldSep + strconv.Itoa(count)
	return Frame{Header: uint16(cmd), Payload: payload}
}

// EncodeLastID builds the counter bump frame. Its payload never contains ':'.
func EncodeLastID() Frame {
	return Frame{Header: uint16(CmdLastID), Payload: CmdLastID.String()}
}

// MarshalFrame lays a frame out as a big-endian header followed by the
// payload bytes.
func MarshalFrame(f Frame) []byte {
	buf := make([]byte, headerSize+len(f.Payload))
	binary.BigEndian.PutUint16(buf, f.Header)
	copy(buf[headerSize:], f.Payload)
	return buf
}

// UnmarshalFrame is the inverse of MarshalFrame.
func UnmarshalFrame(buf []byte) (Frame, error) {
	if len(buf) < headerSize {
		return Frame{}, ErrShortFrame
	}
	return Frame{
		Header:  binary.BigEndian.Uint16(buf),
		Payload: string(buf[headerSize:]),
	}, nil
}
