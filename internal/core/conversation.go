package core

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/xipher-messenger/chatcore/internal/metrics"
)

const commandBuffer = 64

// Options tune a conversation.
type Options struct {
	TypingCooldown       time.Duration
	TypingQuiet          time.Duration
	TypingDisplayTimeout time.Duration
	MaxUploadBytes       int64
	RequestTimeout       time.Duration
}

// Deps are the collaborators shared by every conversation.
type Deps struct {
	Gate     Gate
	API      API
	Signaler Signaler
	Cache    Cache
	Clock    clock.Clock
	Logger   *zerolog.Logger
	Metrics  *metrics.Metrics
}

// Composer is the unsent input of a conversation.
type Composer struct {
	Text       string
	ReplyTo    *ReplyTo
	Attachment *AttachmentRef
}

// Snapshot is an immutable view of a conversation for rendering.
// Callers must not modify it.
type Snapshot struct {
	ConversationID string
	Messages       []Message
	Typing         []string
	Composer       Composer
	Version        uint64
}

// Conversation owns one Timeline. A single goroutine applies every command,
// so network completions, pushed events and user intents are serialized
// without locks. Readers get snapshots.
type Conversation struct {
	id        string
	chatType  string
	selfID    string
	selfLabel string
	opts      Options
	deps      Deps
	logger    zerolog.Logger
	receipts  *receiptLog

	commands chan Command
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once

	snap      atomic.Pointer[Snapshot]
	updates   chan Snapshot
	persistCh chan []Message

	// owned by the run goroutine
	timeline  *Timeline
	presence  *presence
	composer  Composer
	typing    *TypingCoordinator
	seq       uint64
	persisted uint64
	loaded    bool
}

func newConversation(id, chatType string, opts Options, deps Deps, receipts *receiptLog) *Conversation {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conversation{
		id:        id,
		chatType:  normalizeChatType(chatType),
		selfID:    deps.Gate.UserID(),
		selfLabel: deps.Gate.Username(),
		opts:      opts,
		deps:      deps,
		logger:    deps.Logger.With().Str("conversation", id).Logger(),
		receipts:  receipts,
		commands:  make(chan Command, commandBuffer),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		updates:   make(chan Snapshot, 1),
		persistCh: make(chan []Message, 1),
	}
	c.timeline = NewTimeline(id, c.selfID, deps.Clock)
	c.presence = newPresence(deps.Clock, opts.TypingDisplayTimeout, func(key string, gen uint64) {
		c.post(Command{Kind: CommandPresenceExpired, Key: key, Gen: gen})
	})
	c.typing = NewTypingCoordinator(id, c.chatType, deps.Signaler, deps.Clock, opts.TypingCooldown, opts.TypingQuiet, &c.logger)
	c.publish()
	return c
}

func (c *Conversation) start() {
	c.wg.Add(1)
	go c.run()
	if c.deps.Cache != nil {
		c.wg.Add(2)
		go c.persist()
		go c.loadCache()
	}
	c.Resync()
}

// ID returns the conversation id.
func (c *Conversation) ID() string {
	return c.id
}

// ChatType returns the normalized chat type.
func (c *Conversation) ChatType() string {
	return c.chatType
}

// Snapshot returns the latest published state.
func (c *Conversation) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Updates delivers snapshots as they are published. Only the latest one is
// kept if the reader falls behind.
func (c *Conversation) Updates() <-chan Snapshot {
	return c.updates
}

// Compose records composer text and drives the typing signal.
func (c *Conversation) Compose(text string) {
	if !c.live() {
		return
	}
	c.typing.OnInput(text)
	c.post(Command{Kind: CommandCompose, Text: text})
}

// Attach stages a file for the next send.
func (c *Conversation) Attach(ref AttachmentRef) {
	if !c.live() {
		return
	}
	c.post(Command{Kind: CommandAttach, Attachment: &ref})
}

// SelectReply sets the reply target; an empty id clears it.
func (c *Conversation) SelectReply(messageID string) {
	if !c.live() {
		return
	}
	c.post(Command{Kind: CommandSelectReply, MessageID: messageID})
}

// Send turns the composer into optimistic messages.
func (c *Conversation) Send() {
	if !c.live() {
		return
	}
	c.post(Command{Kind: CommandSend})
}

// Resend retries a failed message under its original local id.
func (c *Conversation) Resend(localID string) {
	if !c.live() {
		return
	}
	c.post(Command{Kind: CommandResend, LocalID: localID})
}

// Resync refetches the history and replaces the timeline.
func (c *Conversation) Resync() {
	if !c.live() {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := c.requestContext(c.ctx)
		defer cancel()
		records, err := c.deps.API.FetchHistory(ctx, c.id)
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn().Err(err).Str("code", Classify(err)).Msg("history fetch failed")
			}
			return
		}
		c.post(Command{Kind: CommandHistory, Records: records})
	}()
}

// Close stops the conversation. In-flight sends may still complete; their
// results are discarded.
func (c *Conversation) Close() {
	c.once.Do(func() {
		c.typing.Close()
		c.cancel()
		close(c.done)
	})
	c.wg.Wait()
}

func (c *Conversation) live() bool {
	if c.deps.Gate != nil && !c.deps.Gate.Valid() {
		c.logger.Debug().Msg("intent ignored: not authenticated")
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Conversation) post(cmd Command) {
	select {
	case c.commands <- cmd:
	case <-c.done:
	}
}

func (c *Conversation) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			c.presence.clear()
			return
		case cmd := <-c.commands:
			c.handle(cmd)
			c.publish()
		}
	}
}

func (c *Conversation) handle(cmd Command) {
	switch cmd.Kind {
	case CommandCompose:
		c.composer.Text = cmd.Text
	case CommandAttach:
		c.composer.Attachment = cmd.Attachment
	case CommandSelectReply:
		c.selectReply(cmd.MessageID)
	case CommandSend:
		c.send()
	case CommandResend:
		c.resend(cmd.LocalID)
	case CommandAck:
		c.applyAck(cmd.LocalID, cmd.Ack)
	case CommandSendFailed:
		c.applyFailure(cmd.LocalID, cmd.Err)
	case CommandEvent:
		c.applyEvent(cmd.Event)
	case CommandHistory:
		c.applyHistory(cmd.Records)
	case CommandPresenceExpired:
		c.presence.expired(cmd.Key, cmd.Gen)
	case CommandRestore:
		if !c.loaded {
			c.timeline.restore(cmd.Cached)
		}
	}
}

func (c *Conversation) selectReply(messageID string) {
	if messageID == "" {
		c.composer.ReplyTo = nil
		return
	}
	target, ok := c.timeline.Lookup(messageID)
	if !ok {
		c.logger.Debug().Str("message_id", messageID).Msg("reply target not found")
		return
	}
	c.composer.ReplyTo = ResolveReply(target, c.selfLabel)
}

func (c *Conversation) send() {
	text := strings.TrimSpace(c.composer.Text)
	att := c.composer.Attachment
	reply := c.composer.ReplyTo
	if text == "" && att == nil {
		return
	}
	c.typing.Stop()
	c.composer = Composer{}

	if att != nil {
		id := c.timeline.AppendOptimistic(Draft{
			SenderLabel: c.selfLabel,
			Kind:        KindFile,
			Attachment:  &Attachment{Path: att.Path, Name: att.Name, SizeBytes: att.SizeBytes},
			ReplyTo:     reply,
		})
		c.dispatch(id)
		reply = nil
	}
	if text != "" {
		id := c.timeline.AppendOptimistic(Draft{
			SenderLabel: c.selfLabel,
			Kind:        KindText,
			Content:     text,
			ReplyTo:     reply,
		})
		c.dispatch(id)
	}
}

func (c *Conversation) resend(localID string) {
	m, ok := c.timeline.Lookup(localID)
	if !ok || m.Status != StatusFailed || m.LocalID != localID {
		return
	}
	c.timeline.AppendOptimistic(Draft{LocalID: localID})
	c.dispatch(localID)
}

// dispatch starts the network work for a pending entry. Results come back
// as commands; the goroutine never touches the timeline.
func (c *Conversation) dispatch(localID string) {
	m, ok := c.timeline.Lookup(localID)
	if !ok {
		return
	}
	req := SendRequest{
		ConversationID:   c.id,
		ChatType:         c.chatType,
		Content:          m.Content,
		Kind:             m.Kind,
		CorrelationToken: localID,
	}
	if m.ReplyTo != nil {
		if target, ok := c.timeline.Lookup(m.ReplyTo.TargetID); ok && target.ServerID != "" {
			req.ReplyToID = target.ServerID
		}
	}

	var upload *Attachment
	if m.Kind != KindText && m.Attachment != nil {
		if c.opts.MaxUploadBytes > 0 && m.Attachment.SizeBytes > c.opts.MaxUploadBytes {
			c.applyFailure(localID, coreError(ErrCodeTooLarge, "attachment exceeds upload limit", ErrTooLarge))
			return
		}
		a := *m.Attachment
		upload = &a
	}

	go func() {
		ctx, cancel := c.requestContext(context.Background())
		defer cancel()
		if upload != nil {
			uploaded, err := c.deps.API.Upload(ctx, UploadRequest{ConversationID: c.id, Path: upload.Path, Name: upload.Name})
			if err != nil {
				c.post(Command{Kind: CommandSendFailed, LocalID: localID, Err: err})
				return
			}
			if uploaded.Name == "" {
				uploaded.Name = upload.Name
			}
			if uploaded.SizeBytes == 0 {
				uploaded.SizeBytes = upload.SizeBytes
			}
			req.Attachment = &uploaded
		}
		ack, err := c.deps.API.SendMessage(ctx, req)
		if err != nil {
			c.post(Command{Kind: CommandSendFailed, LocalID: localID, Err: err})
			return
		}
		if ack.Attachment == nil && req.Attachment != nil {
			ack.Attachment = req.Attachment
		}
		c.post(Command{Kind: CommandAck, LocalID: localID, Ack: ack})
	}()
}

func (c *Conversation) applyAck(localID string, ack Ack) {
	outcome := c.timeline.ApplyServerAck(localID, ack)
	c.deps.Metrics.Reconcile("ack", outcome.String())
	if outcome != OutcomeAcked {
		return
	}
	m, _ := c.timeline.Lookup(localID)
	c.deps.Metrics.SendResult("acked", c.deps.Clock.Since(m.CreatedAtClient))
	c.logger.Debug().Str("local_id", localID).Str("server_id", ack.ServerID).Msg("message acknowledged")
}

func (c *Conversation) applyFailure(localID string, err error) {
	code := Classify(err)
	if !c.timeline.MarkFailed(localID, code) {
		c.logger.Debug().Err(err).Str("local_id", localID).Msg("late failure ignored")
		return
	}
	c.deps.Metrics.SendResult("failed", 0)
	c.logger.Warn().Err(err).Str("local_id", localID).Str("code", code).Msg("message send failed")
}

func (c *Conversation) applyEvent(ev Event) {
	switch ev.Kind {
	case EventNewMessage:
		if ev.Record == nil {
			return
		}
		outcome, m := c.timeline.ApplyPushedMessage(*ev.Record)
		c.deps.Metrics.Reconcile("push", outcome.String())
		if outcome == OutcomeStale || m.Direction != DirectionIncoming {
			return
		}
		c.presence.remove(m.SenderID)
		c.presence.remove(m.SenderLabel)
		if outcome == OutcomeAppended {
			c.receipts.send(ReceiptRead, m.ServerID)
		}
	case EventDeliveryReceipt, EventReadReceipt:
		status := StatusDelivered
		if ev.Kind == EventReadReceipt {
			status = StatusRead
		}
		outcome := c.timeline.ApplyReceipt(ev.MessageID, status)
		c.deps.Metrics.Reconcile("receipt", outcome.String())
		if outcome == OutcomeStale {
			c.deps.Metrics.ReceiptDropped()
			c.logger.Debug().Str("message_id", ev.MessageID).Stringer("kind", ev.Kind).Msg("receipt for unknown message dropped")
		}
	case EventTyping:
		if ev.Typing == nil || (c.selfID != "" && ev.Typing.FromID == c.selfID) {
			return
		}
		c.presence.apply(*ev.Typing)
	}
}

func (c *Conversation) applyHistory(records []Record) {
	c.loaded = true
	c.timeline.ReplaceAll(records)
	c.deps.Metrics.Reconcile("history", "replaced")

	msgs := c.timeline.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Direction != DirectionIncoming || m.ServerID == "" {
			continue
		}
		if m.Status != StatusRead {
			c.receipts.send(ReceiptRead, m.ServerID)
		}
		break
	}
}

func (c *Conversation) publish() {
	c.seq++
	composer := c.composer
	if composer.ReplyTo != nil {
		r := *composer.ReplyTo
		composer.ReplyTo = &r
	}
	if composer.Attachment != nil {
		a := *composer.Attachment
		composer.Attachment = &a
	}
	snap := Snapshot{
		ConversationID: c.id,
		Messages:       c.timeline.Messages(),
		Typing:         c.presence.list(),
		Composer:       composer,
		Version:        c.seq,
	}
	c.snap.Store(&snap)
	offerLatest(c.updates, snap)

	if c.deps.Cache != nil && c.timeline.Version() != c.persisted {
		c.persisted = c.timeline.Version()
		offerLatest(c.persistCh, snap.Messages)
	}
}

func (c *Conversation) persist() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case msgs := <-c.persistCh:
			ctx, cancel := c.requestContext(context.Background())
			if err := c.deps.Cache.SaveMessages(ctx, c.id, msgs); err != nil {
				c.logger.Warn().Err(err).Msg("timeline cache write failed")
			}
			cancel()
		}
	}
}

func (c *Conversation) loadCache() {
	defer c.wg.Done()
	ctx, cancel := c.requestContext(c.ctx)
	defer cancel()
	msgs, err := c.deps.Cache.LoadMessages(ctx, c.id)
	if err != nil {
		c.logger.Warn().Err(err).Msg("timeline cache read failed")
		return
	}
	if len(msgs) > 0 {
		c.post(Command{Kind: CommandRestore, Cached: msgs})
	}
}

func (c *Conversation) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.opts.RequestTimeout > 0 {
		return context.WithTimeout(parent, c.opts.RequestTimeout)
	}
	return context.WithCancel(parent)
}

// offerLatest puts v on a buffered channel, replacing any value the reader
// has not taken yet.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func normalizeChatType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "", "chat", "direct", "dm", "private", "user":
		return "chat"
	default:
		return strings.ToLower(strings.TrimSpace(t))
	}
}
