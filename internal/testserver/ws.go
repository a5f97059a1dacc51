package testserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/xipher-messenger/chatcore/internal/auth"
	"github.com/xipher-messenger/chatcore/internal/proto"
)

const authWait = 5 * time.Second

var errKicked = errors.New("kicked")

// socket is one authenticated connection.
type socket struct {
	userID   string
	username string
	out      chan any
	limiter  *frameLimiter

	once   sync.Once
	kicked chan struct{}
}

func (s *socket) enqueue(v any) bool {
	select {
	case s.out <- v:
		return true
	default:
		return false
	}
}

func (s *socket) kick() {
	s.once.Do(func() { close(s.kicked) })
}

// wsHandler upgrades connections, runs the auth handshake and bridges
// frames between users.
type wsHandler struct {
	srv *Server
}

func (h *wsHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()
	log := h.srv.log

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	claims, err := h.authenticate(ctx, conn)
	if err != nil {
		log.Debug().Err(err).Msg("ws auth failed")
		_ = wsjson.Write(ctx, conn, proto.AuthErrorFrame{Type: proto.TypeAuthError, Error: proto.FlexString(err.Error())})
		conn.Close(websocket.StatusPolicyViolation, "auth failed")
		return
	}

	sock := &socket{
		userID:   claims.User(),
		username: claims.DisplayName(),
		out:      make(chan any, 64),
		limiter:  newFrameLimiter(h.srv.opts.FrameLimit),
		kicked:   make(chan struct{}),
	}
	// Registered first so nothing pushed after auth_success is missed.
	h.srv.register(sock)
	defer h.srv.unregister(sock)
	if err := wsjson.Write(ctx, conn, proto.Envelope{Type: proto.TypeAuthSuccess}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sock)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sock)
	}()

	err = <-errCh
	cancel()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if errors.Is(err, errKicked) {
		conn.Close(websocket.StatusGoingAway, "kicked")
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			log.Debug().Err(err).Str("user_id", sock.userID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *wsHandler) authenticate(ctx context.Context, conn *websocket.Conn) (*auth.Claims, error) {
	ctx, cancel := context.WithTimeout(ctx, authWait)
	defer cancel()

	var frame proto.AuthFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		return nil, err
	}
	if frame.Type != proto.TypeAuth {
		return nil, errors.New("expected auth frame")
	}
	return auth.ValidateToken(h.srv.opts.JWT, frame.Token)
}

func (h *wsHandler) readLoop(ctx context.Context, conn *websocket.Conn, sock *socket) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var body map[string]any
		if err := json.Unmarshal(data, &body); err != nil {
			h.srv.log.Debug().Err(err).Str("user_id", sock.userID).Msg("unreadable frame")
			continue
		}
		typ, _ := body["type"].(string)
		h.srv.record(Frame{UserID: sock.userID, Type: typ, Body: body})

		if !sock.limiter.allow() {
			h.srv.log.Debug().Str("user_id", sock.userID).Msg("frame rate limited")
			continue
		}

		switch typ {
		case proto.TypeTyping:
			h.relayTyping(sock, data)
		case proto.TypeMessageDelivered, proto.TypeMessageRead:
			h.relayReceipt(sock, typ, data)
		}
	}
}

func (h *wsHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sock *socket) error {
	for {
		select {
		case v := <-sock.out:
			if err := wsjson.Write(ctx, conn, v); err != nil {
				h.srv.log.Debug().Err(err).Str("user_id", sock.userID).Msg("write ws frame")
				return err
			}
		case <-sock.kicked:
			return errKicked
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// relayTyping forwards a typing signal to the peer, rewritten from the
// peer's point of view: the conversation id becomes the sender's id.
func (h *wsHandler) relayTyping(sock *socket, data []byte) {
	var in proto.TypingFrame
	if err := json.Unmarshal(data, &in); err != nil || in.ChatID == "" {
		return
	}
	typing, _ := proto.ParseBool(in.IsTyping)
	h.srv.Push(in.ChatID, proto.TypingEventFrame{
		Type:         proto.TypeTyping,
		ChatID:       proto.FlexString(sock.userID),
		ChatType:     proto.FlexString(in.ChatType),
		FromUserID:   proto.FlexString(sock.userID),
		FromUsername: proto.FlexString(sock.username),
		IsTyping:     proto.FlexBool{Value: typing, Valid: true},
	})
}

// relayReceipt advances the stored status and tells the original sender.
func (h *wsHandler) relayReceipt(sock *socket, typ string, data []byte) {
	var in proto.ReceiptFrame
	if err := json.Unmarshal(data, &in); err != nil || in.MessageID == "" {
		return
	}

	s := h.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.findLocked(in.MessageID)
	if !ok {
		return
	}
	msg := &s.messages[i]
	if typ == proto.TypeMessageRead {
		msg.Status = "read"
		msg.IsRead = proto.FlexBool{Value: true, Valid: true}
	} else if msg.Status != "read" {
		msg.Status = "delivered"
	}
	msg.IsDelivered = proto.FlexBool{Value: true, Valid: true}

	s.pushLocked(msg.SenderID.String(), proto.ReceiptEventFrame{
		Type:       typ,
		MessageID:  proto.FlexString(in.MessageID),
		ChatID:     proto.FlexString(sock.userID),
		FromUserID: proto.FlexString(sock.userID),
	})
}
