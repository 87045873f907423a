// Package protocol implements the colon-delimited wire format spoken between
// the chat client and the relay: header codes, a total decoder producing
// typed events, the matching encoders and the binary frame envelope.
package protocol

import "fmt"

// Command is the header code carried by every frame.
type Command uint16

const (
	CmdMessage        Command = 0x0000
	CmdHelloWorld     Command = 0x0001
	CmdWelcome        Command = 0x0002
	CmdGoodBye        Command = 0x0003
	CmdConnCount      Command = 0x0004
	CmdAddReaction    Command = 0x0005
	CmdRemoveReaction Command = 0x0006
	CmdLastID         Command = 0x0007
)

// Placeholder stands in for ':' inside message bodies on the wire.
const Placeholder = "$replaced$"

func (c Command) String() string {
	switch c {
	case CmdMessage:
		return "MESSAGE"
	case CmdHelloWorld:
		return "HELLO_WORLD"
	case CmdWelcome:
		return "WELCOME"
	case CmdGoodBye:
		return "GOOD_BYE"
	case CmdConnCount:
		return "CONN_NB"
	case CmdAddReaction:
		return "ADD_REACT"
	case CmdRemoveReaction:
		return "RM_REACT"
	case CmdLastID:
		return "LAST_ID"
	default:
		return fmt.Sprintf("UNKNOWN(0x%04x)", uint16(c))
	}
}

// Frame is one (header, payload) unit delivered by the transport.
type Frame struct {
	Header  uint16
	Payload string
}

// Command returns the frame header as a Command.
func (f Frame) Command() Command {
	return Command(f.Header)
}
