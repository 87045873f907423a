package protocol

// Event is the sealed interface for everything Decode can produce. Exactly
// one concrete type is returned per frame.
type Event interface {
	isEvent()
}

func (Message) isEvent()   {}
func (Reaction) isEvent()  {}
func (Presence) isEvent()  {}
func (ConnCount) isEvent() {}
func (LastID) isEvent()    {}
func (Unknown) isEvent()   {}

// Message is a chat message. MessageID is only set when the id was issued
// by the server (history pages); live frames leave it nil.
type Message struct {
	MessageID  *int64
	Sender     string
	Receiver   string
	Body       string
	ResponseID *int64
}

// ReactionOp tells the UI which cue to show. The count carried alongside is
// always the absolute total.
type ReactionOp int

const (
	ReactionAdd ReactionOp = iota
	ReactionRemove
)

func (op ReactionOp) String() string {
	if op == ReactionRemove {
		return "remove"
	}
	return "add"
}

// Reaction updates the reaction total of a message.
type Reaction struct {
	MessageID int64
	Count     int
	Op        ReactionOp
}

// PresenceKind distinguishes the three presence announcements.
type PresenceKind int

const (
	PresenceHello PresenceKind = iota
	PresenceWelcome
	PresenceGoodBye
)

func (k PresenceKind) String() string {
	switch k {
	case PresenceHello:
		return "hello"
	case PresenceWelcome:
		return "welcome"
	case PresenceGoodBye:
		return "goodbye"
	default:
		return "unknown"
	}
}

// Presence announces that a peer connected, answered, or left.
type Presence struct {
	Kind   PresenceKind
	UserID string
}

// ConnCount carries the number of active connections on the relay.
type ConnCount struct {
	Count int
}

// LastID asks the client to bump its local message counter.
type LastID struct{}

// Unknown is a frame that could not be decoded. It is never an error.
type Unknown struct {
	Header  uint16
	Payload string
	Reason  string
}

// EventName returns a short label for logs.
func EventName(ev Event) string {
	switch ev.(type) {
	case Message:
		return "message"
	case Reaction:
		return "reaction"
	case Presence:
		return "presence"
	case ConnCount:
		return "conn_count"
	case LastID:
		return "last_id"
	default:
		return "unknown"
	}
}
