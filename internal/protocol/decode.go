package protocol

import (
	"strconv"
	"strings"
)

const (
	fieldSep    = ":"
	subFieldSep = ";"
)

// Decode turns a (header, payload) pair into a typed Event. It never panics
// and never returns nil: frames it cannot make sense of come back as Unknown.
func Decode(header uint16, payload string) Event {
	cmd := Command(header)

	if !strings.Contains(payload, fieldSep) {
		if cmd == CmdLastID {
			return LastID{}
		}
		return unknown(header, payload, "missing field separator")
	}

	switch cmd {
	case CmdConnCount:
		return decodeConnCount(header, payload)
	case CmdHelloWorld, CmdWelcome, CmdGoodBye:
		return decodePresence(header, payload)
	case CmdAddReaction, CmdRemoveReaction:
		return decodeReaction(header, payload)
	case CmdLastID:
		return unknown(header, payload, "unexpected payload for last-id")
	default:
		return decodeMessage(header, payload)
	}
}

// DecodeFrame is Decode applied to a Frame.
func DecodeFrame(f Frame) Event {
	return Decode(f.Header, f.Payload)
}

func decodeConnCount(header uint16, payload string) Event {
	raw := payload[strings.LastIndex(payload, fieldSep)+1:]
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return unknown(header, payload, "invalid connection count")
	}
	return ConnCount{Count: n}
}

func decodePresence(header uint16, payload string) Event {
	id, _, _ := strings.Cut(payload, fieldSep)
	id = strings.TrimSpace(id)
	if id == "" {
		return unknown(header, payload, "empty user id")
	}

	var kind PresenceKind
	switch Command(header) {
	case CmdHelloWorld:
		kind = PresenceHello
	case CmdWelcome:
		kind = PresenceWelcome
	default:
		kind = PresenceGoodBye
	}
	return Presence{Kind: kind, UserID: id}
}

func decodeReaction(header uint16, payload string) Event {
	tail := payload[strings.LastIndex(payload, fieldSep)+1:]
	tail = strings.ReplaceAll(tail, " ", "")

	idRaw, countRaw, ok := strings.Cut(tail, subFieldSep)
	if !ok {
		return unknown(header, payload, "missing reaction separator")
	}
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		return unknown(header, payload, "invalid reaction message id")
	}
	count, err := strconv.Atoi(countRaw)
	if err != nil || count < 0 {
		return unknown(header, payload, "invalid reaction count")
	}

	op := ReactionAdd
	if Command(header) == CmdRemoveReaction {
		op = ReactionRemove
	}
	return Reaction{MessageID: id, Count: count, Op: op}
}

// decodeMessage reads sender:receiver:body[:response_id]. A body holding an
// unescaped ':' spills into the following fields; only the first three are
// kept in that case and the response id is dropped unless it parses.
func decodeMessage(header uint16, payload string) Event {
	fields := strings.Split(payload, fieldSep)
	if len(fields) < 3 {
		return unknown(header, payload, "message needs at least three fields")
	}

	sender := strings.TrimSpace(fields[0])
	if sender == "" {
		return unknown(header, payload, "empty sender")
	}

	msg := Message{
		Sender:   sender,
		Receiver: strings.ReplaceAll(fields[1], " ", ""),
		Body:     UnescapeBody(fields[2]),
	}
	if len(fields) == 4 {
		if id, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64); err == nil {
			msg.ResponseID = &id
		}
	}
	return msg
}

func unknown(header uint16, payload, reason string) Unknown {
	return Unknown{Header: header, Payload: payload, Reason: reason}
}
