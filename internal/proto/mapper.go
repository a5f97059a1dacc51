package proto

import (
	"github.com/xipher-messenger/chatcore/internal/core"
)

// Record converts a wire record into the engine's strictly typed form.
// selfID resolves which side of a direct chat the record belongs to.
func (r MessageRecord) Record(selfID string) core.Record {
	rec := core.Record{
		ServerID:       r.Key(),
		TempID:         r.TempID.String(),
		SenderID:       r.SenderID.String(),
		SenderLabel:    r.SenderUsername.String(),
		ReceiverID:     r.ReceiverID.String(),
		SentFlag:       r.Sent.Value,
		SentFlagKnown:  r.Sent.Valid,
		Status:         r.Status.String(),
		IsRead:         r.IsRead.Or(false),
		IsDelivered:    r.IsDelivered.Or(false),
		Content:        r.Content.String(),
		Kind:           core.Kind(r.MessageType.String()),
		FilePath:       r.FilePath.String(),
		FileName:       r.FileName.String(),
		FileSize:       r.FileSize.Or(0),
		ReplyToID:      r.ReplyToMessageID.String(),
		ReplyToSender:  r.ReplyToSenderName.String(),
		ReplyToContent: r.ReplyToContent.String(),
		CreatedAt:      r.CreatedAt.Or(r.Time.String()),
	}
	rec.ConversationID = r.ChatID.String()
	if rec.ConversationID == "" {
		if core.DirectionFor(rec, selfID) == core.DirectionOutgoing {
			rec.ConversationID = rec.ReceiverID
		} else {
			rec.ConversationID = rec.SenderID
		}
	}
	return rec
}

// Records converts a history page.
func Records(in []MessageRecord, selfID string) []core.Record {
	out := make([]core.Record, 0, len(in))
	for _, r := range in {
		out = append(out, r.Record(selfID))
	}
	return out
}
