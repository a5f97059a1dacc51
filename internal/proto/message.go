package proto

import "encoding/json"

// Frame type discriminators shared by both directions of the event channel.
const (
	TypeAuth             = "auth"
	TypeAuthSuccess      = "auth_success"
	TypeAuthError        = "auth_error"
	TypeNewMessage       = "new_message"
	TypeTyping           = "typing"
	TypeMessageDelivered = "message_delivered"
	TypeMessageRead      = "message_read"
)

// Envelope is the minimal view of any frame: just the discriminator.
type Envelope struct {
	Type string `json:"type"`
}

// PeekType returns the frame discriminator, or "" when the frame is not a JSON object.
func PeekType(frame []byte) string {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return ""
	}
	return env.Type
}

// AuthFrame is sent by the client right after the socket opens.
type AuthFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// TypingFrame announces local typing state. The server expects "1"/"0".
type TypingFrame struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	ChatType string `json:"chat_type"`
	ChatID   string `json:"chat_id"`
	IsTyping string `json:"is_typing"`
}

// ReceiptFrame acknowledges delivery or reading of a message.
type ReceiptFrame struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	MessageID string `json:"message_id"`
}

// MessageRecord is a message as the server describes it, both in REST
// responses and inside new_message pushes.
type MessageRecord struct {
	ID                FlexString `json:"id"`
	MessageID         FlexString `json:"message_id"`
	TempID            FlexString `json:"temp_id"`
	SenderID          FlexString `json:"sender_id"`
	SenderUsername    FlexString `json:"sender_username"`
	ReceiverID        FlexString `json:"receiver_id"`
	ChatID            FlexString `json:"chat_id"`
	ChatType          FlexString `json:"chat_type"`
	Sent              FlexBool   `json:"sent"`
	Status            FlexString `json:"status"`
	IsRead            FlexBool   `json:"is_read"`
	IsDelivered       FlexBool   `json:"is_delivered"`
	Content           FlexString `json:"content"`
	MessageType       FlexString `json:"message_type"`
	FilePath          FlexString `json:"file_path"`
	FileName          FlexString `json:"file_name"`
	FileSize          FlexInt    `json:"file_size"`
	ReplyToMessageID  FlexString `json:"reply_to_message_id"`
	ReplyToSenderName FlexString `json:"reply_to_sender_name"`
	ReplyToContent    FlexString `json:"reply_to_content"`
	CreatedAt         FlexString `json:"created_at"`
	Time              FlexString `json:"time"`
}

// Key returns the server id, which older servers send as message_id.
func (r MessageRecord) Key() string {
	if r.ID != "" {
		return string(r.ID)
	}
	return string(r.MessageID)
}

// NewMessageFrame is a new_message push. Some server versions nest the
// record under "message", others send it flat.
type NewMessageFrame struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// TypingEventFrame is a remote typing signal.
type TypingEventFrame struct {
	Type         string     `json:"type"`
	ChatID       FlexString `json:"chat_id"`
	ChatIDAlt    FlexString `json:"chatId"`
	ChatType     FlexString `json:"chat_type"`
	ChatTypeAlt  FlexString `json:"chatType"`
	FromUserID   FlexString `json:"from_user_id"`
	UserID       FlexString `json:"user_id"`
	From         FlexString `json:"from"`
	FromUsername FlexString `json:"from_username"`
	Username     FlexString `json:"username"`
	IsTyping     FlexBool   `json:"is_typing"`
}

// ReceiptEventFrame reports that a peer received or read a message.
type ReceiptEventFrame struct {
	Type       string     `json:"type"`
	MessageID  FlexString `json:"message_id"`
	ChatID     FlexString `json:"chat_id"`
	FromUserID FlexString `json:"from_user_id"`
}

// AuthErrorFrame carries the server's reason for rejecting the token.
type AuthErrorFrame struct {
	Type  string     `json:"type"`
	Error FlexString `json:"error"`
}

// NewMessageFrameOf wraps rec in the nested new_message shape.
func NewMessageFrameOf(rec MessageRecord) NewMessageFrame {
	data, _ := json.Marshal(rec)
	return NewMessageFrame{Type: TypeNewMessage, Message: data}
}
