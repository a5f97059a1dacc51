package http

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xipher-messenger/chatcore/internal/core"
	"github.com/xipher-messenger/chatcore/internal/proto"
)

// SendMessage posts one message and returns the server's ack.
func (c *Client) SendMessage(ctx context.Context, req core.SendRequest) (core.Ack, error) {
	token, err := c.token()
	if err != nil {
		return core.Ack{}, err
	}
	body := sendRequestToProto(req)
	body.Token = token

	var resp proto.SendMessageResponse
	if err := c.post(ctx, PathSendMessage, body, &resp); err != nil {
		return core.Ack{}, err
	}
	if !resp.Success.Or(true) {
		return core.Ack{}, fmt.Errorf("%w: %s", core.ErrRejected, resp.Message.Or("send failed"))
	}
	rec := resp.MessageRecord.Record(c.selfID())
	if rec.ServerID == "" {
		return core.Ack{}, fmt.Errorf("%w: send response without id", core.ErrProtocolDecode)
	}
	return ackFromRecord(rec, req), nil
}

// FetchHistory returns the conversation in server order.
func (c *Client) FetchHistory(ctx context.Context, conversationID string) ([]core.Record, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	var resp proto.HistoryResponse
	if err := c.post(ctx, PathMessages, proto.HistoryRequest{Token: token, FriendID: conversationID}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success.Or(true) {
		return nil, fmt.Errorf("%w: %s", core.ErrRejected, resp.Message.Or("history unavailable"))
	}
	records := proto.Records(resp.Messages, c.selfID())
	for i := range records {
		if records[i].ConversationID == "" {
			records[i].ConversationID = conversationID
		}
	}
	return records, nil
}

// Upload reads a local file and stores it on the server.
func (c *Client) Upload(ctx context.Context, req core.UploadRequest) (core.Attachment, error) {
	token, err := c.token()
	if err != nil {
		return core.Attachment{}, err
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		return core.Attachment{}, fmt.Errorf("stat upload: %w", err)
	}
	if c.maxUpload > 0 && info.Size() > c.maxUpload {
		return core.Attachment{}, fmt.Errorf("%w: %d bytes", core.ErrTooLarge, info.Size())
	}
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return core.Attachment{}, fmt.Errorf("read upload: %w", err)
	}
	name := req.Name
	if name == "" {
		name = filepath.Base(req.Path)
	}

	var resp proto.UploadResponse
	body := proto.UploadRequest{Token: token, FileName: name, FileData: base64.StdEncoding.EncodeToString(data)}
	if err := c.post(ctx, PathUploadFile, body, &resp); err != nil {
		return core.Attachment{}, err
	}
	if !resp.Success.Or(true) || resp.FilePath == "" {
		return core.Attachment{}, fmt.Errorf("%w: %s", core.ErrRejected, resp.Message.Or("upload failed"))
	}
	return core.Attachment{
		Path:      resp.FilePath.String(),
		Name:      resp.FileName.Or(name),
		SizeBytes: resp.FileSize.Or(info.Size()),
	}, nil
}

var _ core.API = (*Client)(nil)
