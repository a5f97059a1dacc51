package testserver

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xipher-messenger/chatcore/internal/proto"
)

func (s *Server) sendMessage(c *gin.Context) {
	var req proto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ReceiverID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid request"})
		return
	}
	userID := c.GetString(ContextKeyUserID)
	username := c.GetString(ContextKeyUsername)

	s.mu.Lock()
	rec := proto.MessageRecord{
		TempID:           proto.FlexString(req.TempID),
		SenderID:         proto.FlexString(userID),
		SenderUsername:   proto.FlexString(username),
		ReceiverID:       proto.FlexString(req.ReceiverID),
		Content:          proto.FlexString(req.Content),
		MessageType:      proto.FlexString(req.MessageType),
		FilePath:         proto.FlexString(req.FilePath),
		FileName:         proto.FlexString(req.FileName),
		ReplyToMessageID: proto.FlexString(req.ReplyToMessageID),
	}
	if req.FileSize > 0 {
		rec.FileSize = proto.FlexInt{Value: req.FileSize, Valid: true}
	}
	if req.ReplyToMessageID != "" {
		if i, ok := s.findLocked(req.ReplyToMessageID); ok {
			rec.ReplyToSenderName = s.messages[i].SenderUsername
			rec.ReplyToContent = s.messages[i].Content
		}
	}
	rec = s.storeLocked(rec)

	incoming := rec
	incoming.TempID = ""
	s.pushLocked(req.ReceiverID, proto.NewMessageFrameOf(incoming))
	if s.opts.EchoToSender {
		s.pushLocked(userID, proto.NewMessageFrameOf(rec))
	}
	s.mu.Unlock()

	resp := proto.SendMessageResponse{
		Success:       proto.FlexBool{Value: true, Valid: true},
		Message:       "Message sent",
		MessageRecord: rec,
	}
	resp.Sent = proto.FlexBool{Value: true, Valid: true}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) history(c *gin.Context) {
	var req proto.HistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FriendID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid request"})
		return
	}
	userID := c.GetString(ContextKeyUserID)

	s.mu.Lock()
	page := make([]proto.MessageRecord, 0)
	for _, m := range s.messages {
		out := m.SenderID.String() == userID && m.ReceiverID.String() == req.FriendID
		in := m.SenderID.String() == req.FriendID && m.ReceiverID.String() == userID
		if !out && !in {
			continue
		}
		m.TempID = ""
		if !out {
			m.Sent = proto.FlexBool{Value: false, Valid: true}
		}
		page = append(page, m)
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, proto.HistoryResponse{
		Success:  proto.FlexBool{Value: true, Valid: true},
		Messages: page,
	})
}

func (s *Server) uploadFile(c *gin.Context) {
	var req proto.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FileName == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid request"})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.FileData)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Message: "file_data is not base64"})
		return
	}

	s.mu.Lock()
	s.nextID++
	path := uploadPath(s.nextID, req.FileName)
	s.uploads[path] = len(data)
	s.mu.Unlock()

	c.JSON(http.StatusOK, proto.UploadResponse{
		Success:  proto.FlexBool{Value: true, Valid: true},
		FilePath: proto.FlexString(path),
		FileName: proto.FlexString(req.FileName),
		FileSize: proto.FlexInt{Value: int64(len(data)), Valid: true},
	})
}
