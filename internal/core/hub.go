package core

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// Hub routes inbound events to the open conversation and owns the
// session-wide receipt bookkeeping. At most one conversation is open.
type Hub struct {
	deps     Deps
	opts     Options
	logger   *zerolog.Logger
	receipts *receiptLog

	mu     sync.Mutex
	active *Conversation
}

// NewHub creates a hub. Missing clock and logger fall back to the wall
// clock and a no-op logger.
func NewHub(deps Deps, opts Options) *Hub {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	if opts.TypingDisplayTimeout == 0 {
		opts.TypingDisplayTimeout = DefaultTypingDisplayTimeout
	}
	return &Hub{
		deps:     deps,
		opts:     opts,
		logger:   deps.Logger,
		receipts: newReceiptLog(deps.Signaler, deps.Logger),
	}
}

// Open makes conversationID the active conversation, closing any other.
// Reopening the active conversation returns it unchanged.
func (h *Hub) Open(conversationID, chatType string) *Conversation {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active != nil {
		if h.active.id == conversationID && h.active.chatType == normalizeChatType(chatType) {
			return h.active
		}
		h.active.Close()
		h.active = nil
	}
	c := newConversation(conversationID, chatType, h.opts, h.deps, h.receipts)
	c.start()
	h.active = c
	h.logger.Debug().Str("conversation", conversationID).Msg("conversation opened")
	return c
}

// Active returns the open conversation, or nil.
func (h *Hub) Active() *Conversation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// CloseActive closes the open conversation, if any.
func (h *Hub) CloseActive() {
	h.mu.Lock()
	c := h.active
	h.active = nil
	h.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

// Logout tears down all per-session state.
func (h *Hub) Logout() {
	h.CloseActive()
	h.receipts.reset()
}

// Run dispatches events until ctx is done or events is closed.
func (h *Hub) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			h.Dispatch(ev)
		}
	}
}

// Dispatch applies one routed event.
func (h *Hub) Dispatch(ev Event) {
	switch ev.Kind {
	case EventAuthSuccess:
		h.logger.Info().Msg("realtime channel authenticated")
		if c := h.Active(); c != nil {
			c.Resync()
		}
	case EventAuthError:
		h.logger.Warn().Str("reason", ev.Reason).Msg("realtime authentication rejected")
	case EventNewMessage:
		if ev.Record == nil {
			return
		}
		if c := h.Active(); c != nil && c.matches(ev.ConversationID, "") {
			c.post(Command{Kind: CommandEvent, Event: ev})
			return
		}
		if DirectionFor(*ev.Record, h.deps.Gate.UserID()) == DirectionIncoming {
			h.receipts.send(ReceiptDelivered, ev.Record.ServerID)
		}
	case EventDeliveryReceipt, EventReadReceipt:
		if c := h.Active(); c != nil && c.matches(ev.ConversationID, "") {
			c.post(Command{Kind: CommandEvent, Event: ev})
		}
	case EventTyping:
		if ev.Typing == nil {
			return
		}
		if c := h.Active(); c != nil && c.matches(ev.Typing.ConversationID, ev.Typing.ChatType) {
			c.post(Command{Kind: CommandEvent, Event: ev})
		}
	default:
		h.logger.Debug().Str("type", ev.RawType).Str("reason", ev.Reason).Msg("unrecognized frame ignored")
	}
}

// matches reports whether an event addressed to conversationID belongs
// here. An empty id is treated as addressed to the open conversation.
func (c *Conversation) matches(conversationID, chatType string) bool {
	if conversationID != "" && conversationID != c.id {
		return false
	}
	return chatType == "" || normalizeChatType(chatType) == c.chatType
}
