package proto

// SendMessageRequest is the body of POST /api/send-message.
type SendMessageRequest struct {
	Token            string `json:"token"`
	ReceiverID       string `json:"receiver_id"`
	Content          string `json:"content"`
	MessageType      string `json:"message_type"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
	TempID           string `json:"temp_id,omitempty"`
	FilePath         string `json:"file_path,omitempty"`
	FileName         string `json:"file_name,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`
}

// SendMessageResponse echoes the stored message. Message holds the
// human-readable status text, not the record.
type SendMessageResponse struct {
	Success FlexBool   `json:"success"`
	Message FlexString `json:"message"`
	MessageRecord
}

// HistoryRequest is the body of POST /api/messages.
type HistoryRequest struct {
	Token    string `json:"token"`
	FriendID string `json:"friend_id"`
}

// HistoryResponse lists a conversation in server order.
type HistoryResponse struct {
	Success  FlexBool        `json:"success"`
	Message  FlexString      `json:"message"`
	Messages []MessageRecord `json:"messages"`
}

// UploadRequest is the body of POST /api/upload-file. FileData is base64.
type UploadRequest struct {
	Token    string `json:"token"`
	FileName string `json:"file_name"`
	FileData string `json:"file_data"`
}

// UploadResponse describes where the server stored an upload.
type UploadResponse struct {
	Success  FlexBool   `json:"success"`
	Message  FlexString `json:"message"`
	FilePath FlexString `json:"file_path"`
	FileName FlexString `json:"file_name"`
	FileSize FlexInt    `json:"file_size"`
}
