package core

import (
	"strings"
	"time"
)

// Status is the delivery lifecycle of a message. Pending, Sent, Delivered
// and Read are ordered; Failed is terminal until the user resends.
type Status int

const (
	StatusPending Status = iota
	StatusSent
	StatusDelivered
	StatusRead
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// advances reports whether moving from s to next keeps the status monotonic.
func (s Status) advances(next Status) bool {
	if s == StatusFailed || next == StatusFailed {
		return false
	}
	return next > s
}

// ParseStatus maps the server's status strings. "sending" is what the
// original clients used for pending entries.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "sending":
		return StatusPending, true
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "read":
		return StatusRead, true
	case "failed":
		return StatusFailed, true
	default:
		return StatusPending, false
	}
}

// Direction is derived from the sender id, never from a wire flag alone.
type Direction int

const (
	DirectionIncoming Direction = iota
	DirectionOutgoing
)

func (d Direction) String() string {
	if d == DirectionOutgoing {
		return "outgoing"
	}
	return "incoming"
}

// Kind is the message content type. The set is open: the server may send
// image or voice, which are carried through as-is.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Attachment describes a file carried by a message.
type Attachment struct {
	Path      string
	Name      string
	SizeBytes int64
}

// ReplyTo is the denormalized quote rendered above a reply.
type ReplyTo struct {
	TargetID    string
	SenderLabel string
	PreviewText string
}

// Message is one entry of a conversation timeline.
type Message struct {
	LocalID         string
	ServerID        string
	ConversationID  string
	SenderID        string
	SenderLabel     string
	Direction       Direction
	Kind            Kind
	Content         string
	Attachment      *Attachment
	Status          Status
	FailReason      string
	ReplyTo         *ReplyTo
	CreatedAtClient time.Time
	CreatedAtServer string
}

// ID returns the canonical id: the server id once known, the local id before.
func (m Message) ID() string {
	if m.ServerID != "" {
		return m.ServerID
	}
	return m.LocalID
}

func (m Message) clone() Message {
	if m.Attachment != nil {
		a := *m.Attachment
		m.Attachment = &a
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		m.ReplyTo = &r
	}
	return m
}

// Draft is what the composer hands to the timeline on send.
// LocalID is set only when resending an existing entry.
type Draft struct {
	LocalID        string
	ConversationID string
	SenderID       string
	SenderLabel    string
	Kind           Kind
	Content        string
	Attachment     *Attachment
	ReplyTo        *ReplyTo
}

// Ack is the server's confirmation of a send.
type Ack struct {
	ServerID   string
	Status     Status
	CreatedAt  string
	Content    string
	Kind       Kind
	Attachment *Attachment
	ReplyTo    *ReplyTo
}

// Record is a server message after wire decoding: strictly typed, but
// still carrying the raw hints (sent flag, status text) that direction and
// status are derived from.
type Record struct {
	ServerID       string
	TempID         string
	ConversationID string
	SenderID       string
	SenderLabel    string
	ReceiverID     string
	SentFlag       bool
	SentFlagKnown  bool
	Status         string
	IsRead         bool
	IsDelivered    bool
	Content        string
	Kind           Kind
	FilePath       string
	FileName       string
	FileSize       int64
	ReplyToID      string
	ReplyToSender  string
	ReplyToContent string
	CreatedAt      string
}

func (r Record) status() Status {
	switch {
	case r.IsRead:
		return StatusRead
	case r.IsDelivered:
		return StatusDelivered
	}
	if s, ok := ParseStatus(r.Status); ok && s != StatusPending {
		return s
	}
	// anything the server hands back has been accepted
	return StatusSent
}

func (r Record) attachment() *Attachment {
	if r.FilePath == "" && r.FileName == "" {
		return nil
	}
	return &Attachment{Path: r.FilePath, Name: r.FileName, SizeBytes: r.FileSize}
}

func (r Record) serverReply() *ReplyTo {
	if r.ReplyToID == "" {
		return nil
	}
	return &ReplyTo{TargetID: r.ReplyToID, SenderLabel: r.ReplyToSender, PreviewText: r.ReplyToContent}
}

// AckFromRecord converts a REST response or push record into an ack.
func AckFromRecord(r Record) Ack {
	return Ack{
		ServerID:   r.ServerID,
		Status:     r.status(),
		CreatedAt:  r.CreatedAt,
		Content:    r.Content,
		Kind:       r.Kind,
		Attachment: r.attachment(),
		ReplyTo:    r.serverReply(),
	}
}

// DirectionFor derives direction from the sender id, falling back to the
// wire "sent" flag only when no sender id is available.
func DirectionFor(r Record, selfID string) Direction {
	if r.SenderID != "" && selfID != "" {
		if r.SenderID == selfID {
			return DirectionOutgoing
		}
		return DirectionIncoming
	}
	if r.SentFlagKnown && r.SentFlag {
		return DirectionOutgoing
	}
	return DirectionIncoming
}
