package core

// EventKind is the closed set of inbound notifications the router produces.
type EventKind int

const (
	// EventAuthSuccess confirms the realtime channel is authenticated.
	EventAuthSuccess EventKind = iota
	// EventAuthError reports that the server refused the token.
	EventAuthError
	// EventNewMessage carries a pushed message.
	EventNewMessage
	// EventDeliveryReceipt marks a message delivered to the recipient.
	EventDeliveryReceipt
	// EventReadReceipt marks a message read by the recipient.
	EventReadReceipt
	// EventTyping carries a remote participant's typing state.
	EventTyping
	// EventUnrecognized is any frame the router could not classify.
	EventUnrecognized
)

func (k EventKind) String() string {
	switch k {
	case EventAuthSuccess:
		return "auth_success"
	case EventAuthError:
		return "auth_error"
	case EventNewMessage:
		return "new_message"
	case EventDeliveryReceipt:
		return "delivery_receipt"
	case EventReadReceipt:
		return "read_receipt"
	case EventTyping:
		return "typing"
	default:
		return "unrecognized"
	}
}

// Event is a decoded inbound frame.
type Event struct {
	Kind           EventKind
	ConversationID string
	Record         *Record       // EventNewMessage
	MessageID      string        // receipts
	FromID         string        // receipts
	Typing         *TypingSignal // EventTyping
	Reason         string        // EventAuthError, EventUnrecognized
	RawType        string
}

// TypingSignal is a remote participant's typing state.
type TypingSignal struct {
	ConversationID string
	ChatType       string
	FromID         string
	FromLabel      string
	IsTyping       bool
}

// key identifies the participant for presence tracking.
func (s TypingSignal) key() string {
	if s.FromID != "" {
		return s.FromID
	}
	return s.FromLabel
}

func (s TypingSignal) label() string {
	if s.FromLabel != "" {
		return s.FromLabel
	}
	return s.FromID
}
