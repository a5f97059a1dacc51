package core

// CommandKind describes what a conversation actor is asked to do.
type CommandKind int

const (
	// CommandCompose updates the composer text.
	CommandCompose CommandKind = iota
	// CommandAttach stages an attachment in the composer.
	CommandAttach
	// CommandSelectReply sets or clears the reply target.
	CommandSelectReply
	// CommandSend turns the composer into an optimistic message.
	CommandSend
	// CommandResend retries a failed message.
	CommandResend
	// CommandAck carries a successful send result.
	CommandAck
	// CommandSendFailed carries a failed send result.
	CommandSendFailed
	// CommandEvent carries a routed inbound event.
	CommandEvent
	// CommandHistory carries a fetched history page.
	CommandHistory
	// CommandPresenceExpired drops a remote typing indicator.
	CommandPresenceExpired
	// CommandRestore seeds the timeline from the local cache.
	CommandRestore
)

// Command is an input to a conversation actor. All timeline mutations are
// expressed as commands so they are applied by a single goroutine.
type Command struct {
	Kind       CommandKind
	Text       string
	LocalID    string
	MessageID  string
	Attachment *AttachmentRef
	Ack        Ack
	Err        error
	Event      Event
	Records    []Record
	Cached     []Message
	Key        string
	Gen        uint64
}

// AttachmentRef is a local file the user picked.
type AttachmentRef struct {
	Path      string
	Name      string
	SizeBytes int64
}
