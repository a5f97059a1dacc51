package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xipher-messenger/chatcore/internal/core"
	"github.com/xipher-messenger/chatcore/internal/metrics"
	"github.com/xipher-messenger/chatcore/internal/proto"
)

// SelfFunc returns the signed-in user's id at decode time.
type SelfFunc func() string

// Router turns raw realtime frames into typed events. Decoding is total:
// any frame it cannot classify becomes EventUnrecognized.
type Router struct {
	self    SelfFunc
	log     *zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a router.
func New(self SelfFunc, logger *zerolog.Logger, m *metrics.Metrics) *Router {
	if self == nil {
		self = func() string { return "" }
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{self: self, log: logger, metrics: m}
}

// Run decodes frames until ctx is done or frames is closed.
func (r *Router) Run(ctx context.Context, frames <-chan []byte, out chan<- core.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			ev := r.Decode(frame)
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Decode classifies one frame.
func (r *Router) Decode(frame []byte) core.Event {
	ev, err := r.decode(frame)
	if err != nil {
		r.metrics.DecodeError()
		r.log.Debug().Err(err).Str("type", ev.RawType).Msg("frame not decoded")
		ev = core.Event{Kind: core.EventUnrecognized, RawType: ev.RawType, Reason: err.Error()}
	}
	r.metrics.Frame(ev.Kind.String())
	return ev
}

func (r *Router) decode(frame []byte) (core.Event, error) {
	var env proto.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return core.Event{}, fmt.Errorf("%w: %v", core.ErrProtocolDecode, err)
	}
	ev := core.Event{RawType: env.Type}

	switch env.Type {
	case proto.TypeAuthSuccess:
		ev.Kind = core.EventAuthSuccess
		return ev, nil

	case proto.TypeAuthError:
		var f proto.AuthErrorFrame
		_ = json.Unmarshal(frame, &f)
		ev.Kind = core.EventAuthError
		ev.Reason = f.Error.Or("authentication failed")
		return ev, nil

	case proto.TypeNewMessage:
		rec, err := decodeRecord(frame)
		if err != nil {
			return ev, err
		}
		out := rec.Record(r.self())
		if out.ServerID == "" && out.TempID == "" {
			return ev, fmt.Errorf("%w: new_message without id", core.ErrProtocolDecode)
		}
		ev.Kind = core.EventNewMessage
		ev.ConversationID = out.ConversationID
		ev.Record = &out
		return ev, nil

	case proto.TypeTyping:
		var f proto.TypingEventFrame
		if err := json.Unmarshal(frame, &f); err != nil {
			return ev, fmt.Errorf("%w: %v", core.ErrProtocolDecode, err)
		}
		from := f.FromUserID.Or(f.UserID.Or(f.From.String()))
		label := f.FromUsername.Or(f.Username.String())
		if from == "" && label == "" {
			return ev, fmt.Errorf("%w: typing without sender", core.ErrProtocolDecode)
		}
		sig := core.TypingSignal{
			ConversationID: f.ChatID.Or(f.ChatIDAlt.Or(from)),
			ChatType:       f.ChatType.Or(f.ChatTypeAlt.String()),
			FromID:         from,
			FromLabel:      label,
			IsTyping:       f.IsTyping.Or(true),
		}
		ev.Kind = core.EventTyping
		ev.ConversationID = sig.ConversationID
		ev.Typing = &sig
		return ev, nil

	case proto.TypeMessageDelivered, proto.TypeMessageRead:
		var f proto.ReceiptEventFrame
		if err := json.Unmarshal(frame, &f); err != nil {
			return ev, fmt.Errorf("%w: %v", core.ErrProtocolDecode, err)
		}
		if f.MessageID == "" {
			return ev, fmt.Errorf("%w: receipt without message_id", core.ErrProtocolDecode)
		}
		ev.Kind = core.EventDeliveryReceipt
		if env.Type == proto.TypeMessageRead {
			ev.Kind = core.EventReadReceipt
		}
		ev.MessageID = f.MessageID.String()
		ev.FromID = f.FromUserID.String()
		ev.ConversationID = f.ChatID.String()
		return ev, nil

	default:
		ev.Kind = core.EventUnrecognized
		ev.Reason = "unknown type"
		return ev, nil
	}
}

// decodeRecord accepts both the nested {"message":{...}} and the flat shape.
func decodeRecord(frame []byte) (proto.MessageRecord, error) {
	var rec proto.MessageRecord
	var f proto.NewMessageFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return rec, fmt.Errorf("%w: %v", core.ErrProtocolDecode, err)
	}
	body := bytes.TrimSpace(f.Message)
	if len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &rec); err != nil {
			return rec, fmt.Errorf("%w: %v", core.ErrProtocolDecode, err)
		}
		return rec, nil
	}
	if err := json.Unmarshal(frame, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", core.ErrProtocolDecode, err)
	}
	return rec, nil
}
