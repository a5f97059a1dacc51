package transport

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/xipher-messenger/chatcore/internal/core"
	"github.com/xipher-messenger/chatcore/internal/proto"
	transporthttp "github.com/xipher-messenger/chatcore/internal/transport/http"
	"github.com/xipher-messenger/chatcore/internal/transport/ws"
)

// Session is what the adapter needs from the session gate.
type Session interface {
	Token() (string, error)
	UserID() string
	Changes() <-chan string
}

// Adapter joins the REST client and the realtime channel into the engine's
// API and Signaler, and keeps the channel bound to the current token.
type Adapter struct {
	*transporthttp.Client

	ws      *ws.Client
	session Session
	log     *zerolog.Logger
}

// NewAdapter wires the two transports to one session.
func NewAdapter(rest *transporthttp.Client, rt *ws.Client, session Session, logger *zerolog.Logger) *Adapter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Adapter{Client: rest, ws: rt, session: session, log: logger}
}

// Frames exposes raw inbound realtime frames for the router.
func (a *Adapter) Frames() <-chan []byte {
	return a.ws.Frames()
}

// Run follows session changes: a new token (re)connects the realtime
// channel, an empty one disconnects it.
func (a *Adapter) Run(ctx context.Context) error {
	changes := a.session.Changes()
	defer a.ws.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case token := <-changes:
			if token == "" {
				a.log.Info().Msg("session cleared; closing realtime channel")
				a.ws.Disconnect()
				continue
			}
			a.log.Debug().Msg("session token set; connecting realtime channel")
			a.ws.Connect(token)
		}
	}
}

// SendTyping queues a typing frame.
func (a *Adapter) SendTyping(ctx context.Context, conversationID, chatType string, isTyping bool) error {
	token, err := a.session.Token()
	if err != nil {
		return err
	}
	flag := "0"
	if isTyping {
		flag = "1"
	}
	return a.ws.Send(proto.TypingFrame{
		Type:     proto.TypeTyping,
		Token:    token,
		ChatType: chatType,
		ChatID:   conversationID,
		IsTyping: flag,
	})
}

// SendReceipt queues a delivered or read receipt.
func (a *Adapter) SendReceipt(ctx context.Context, kind core.ReceiptKind, messageID string) error {
	token, err := a.session.Token()
	if err != nil {
		return err
	}
	typ := proto.TypeMessageDelivered
	if kind == core.ReceiptRead {
		typ = proto.TypeMessageRead
	}
	return a.ws.Send(proto.ReceiptFrame{Type: typ, Token: token, MessageID: messageID})
}

var (
	_ core.API      = (*Adapter)(nil)
	_ core.Signaler = (*Adapter)(nil)
)
