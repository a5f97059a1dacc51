package core

import "context"

// ReceiptKind selects which receipt frame is sent.
type ReceiptKind int

const (
	ReceiptDelivered ReceiptKind = iota
	ReceiptRead
)

func (k ReceiptKind) String() string {
	if k == ReceiptRead {
		return "read"
	}
	return "delivered"
}

// SendRequest is one outgoing message as handed to the transport.
type SendRequest struct {
	ConversationID   string
	ChatType         string
	Content          string
	Kind             Kind
	ReplyToID        string
	CorrelationToken string
	Attachment       *Attachment
}

// UploadRequest names a local file to upload before sending.
type UploadRequest struct {
	ConversationID string
	Path           string
	Name           string
}

// API is the request/response half of the transport.
type API interface {
	SendMessage(ctx context.Context, req SendRequest) (Ack, error)
	FetchHistory(ctx context.Context, conversationID string) ([]Record, error)
	Upload(ctx context.Context, req UploadRequest) (Attachment, error)
}

// Signaler is the fire-and-forget half of the transport. Implementations
// must not block: frames are queued until the channel is authenticated.
type Signaler interface {
	TypingSender
	SendReceipt(ctx context.Context, kind ReceiptKind, messageID string) error
}

// Gate exposes the session state the engine consults before acting.
type Gate interface {
	Valid() bool
	UserID() string
	Username() string
}

// Cache persists timelines between runs.
type Cache interface {
	LoadMessages(ctx context.Context, conversationID string) ([]Message, error)
	SaveMessages(ctx context.Context, conversationID string, msgs []Message) error
}
