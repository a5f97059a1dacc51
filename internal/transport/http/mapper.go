package http

import (
	"github.com/xipher-messenger/chatcore/internal/core"
	"github.com/xipher-messenger/chatcore/internal/proto"
)

func sendRequestToProto(req core.SendRequest) proto.SendMessageRequest {
	kind := string(req.Kind)
	if kind == "" {
		kind = string(core.KindText)
	}
	out := proto.SendMessageRequest{
		ReceiverID:       req.ConversationID,
		Content:          req.Content,
		MessageType:      kind,
		ReplyToMessageID: req.ReplyToID,
		TempID:           req.CorrelationToken,
	}
	if req.Attachment != nil {
		out.FilePath = req.Attachment.Path
		out.FileName = req.Attachment.Name
		out.FileSize = req.Attachment.SizeBytes
	}
	return out
}

// ackFromRecord fills fields the server may omit from what was sent, so a
// minimal {"success":true,"message_id":...} reply still yields a full ack.
func ackFromRecord(rec core.Record, req core.SendRequest) core.Ack {
	ack := core.AckFromRecord(rec)
	if ack.Content == "" {
		ack.Content = req.Content
	}
	if ack.Kind == "" {
		ack.Kind = req.Kind
	}
	if ack.Attachment == nil && req.Attachment != nil {
		a := *req.Attachment
		ack.Attachment = &a
	}
	return ack
}
