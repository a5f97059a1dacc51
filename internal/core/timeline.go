package core

import (
	"github.com/benbjohnson/clock"

	"github.com/xipher-messenger/chatcore/internal/utils"
)

// failReasonInterrupted marks entries that were in flight when the cache
// was last written.
const failReasonInterrupted = "interrupted"

// Timeline is the ordered message list of one conversation. It is not safe
// for concurrent use: the owning Conversation applies every mutation from
// its own goroutine.
type Timeline struct {
	conversationID string
	selfID         string
	clock          clock.Clock

	messages []Message
	byLocal  map[string]int
	byServer map[string]int
	version  uint64
}

// NewTimeline returns an empty timeline for conversationID as seen by selfID.
func NewTimeline(conversationID, selfID string, clk clock.Clock) *Timeline {
	if clk == nil {
		clk = clock.New()
	}
	return &Timeline{
		conversationID: conversationID,
		selfID:         selfID,
		clock:          clk,
		byLocal:        make(map[string]int),
		byServer:       make(map[string]int),
	}
}

// AppendOptimistic inserts a pending outgoing entry at the tail and returns
// its local id. A draft carrying the local id of a failed entry resets that
// entry to pending in place; any other known local id is left untouched.
func (t *Timeline) AppendOptimistic(d Draft) string {
	if d.LocalID != "" {
		if idx, ok := t.byLocal[d.LocalID]; ok {
			m := &t.messages[idx]
			if m.Status == StatusFailed {
				m.Status = StatusPending
				m.FailReason = ""
				m.ServerID = ""
				m.CreatedAtServer = ""
				m.CreatedAtClient = t.clock.Now()
				t.version++
			}
			return d.LocalID
		}
	}

	localID := d.LocalID
	if localID == "" {
		localID = utils.NewLocalID()
	}
	kind := d.Kind
	if kind == "" {
		kind = KindText
	}
	conversationID := d.ConversationID
	if conversationID == "" {
		conversationID = t.conversationID
	}
	senderID := d.SenderID
	if senderID == "" {
		senderID = t.selfID
	}
	m := Message{
		LocalID:         localID,
		ConversationID:  conversationID,
		SenderID:        senderID,
		SenderLabel:     d.SenderLabel,
		Direction:       DirectionOutgoing,
		Kind:            kind,
		Content:         d.Content,
		Status:          StatusPending,
		CreatedAtClient: t.clock.Now(),
	}
	if d.Attachment != nil {
		a := *d.Attachment
		m.Attachment = &a
	}
	if d.ReplyTo != nil {
		r := *d.ReplyTo
		m.ReplyTo = &r
	}
	t.messages = append(t.messages, m)
	t.byLocal[localID] = len(t.messages) - 1
	t.version++
	return localID
}

// MarkFailed moves a pending entry to failed. Entries already acknowledged
// are left alone, so a late failure cannot regress a confirmed message.
func (t *Timeline) MarkFailed(localID, reason string) bool {
	idx, ok := t.byLocal[localID]
	if !ok {
		return false
	}
	m := &t.messages[idx]
	if m.Status != StatusPending {
		return false
	}
	m.Status = StatusFailed
	m.FailReason = reason
	t.version++
	return true
}

// ReplaceAll swaps the timeline for a fetched history, in server order.
// Unconfirmed local entries that no record claims via temp id are kept at
// the tail so an in-flight send is never lost to a refresh. Entries restored
// as interrupted are claimed by the first outgoing record with the same
// kind, content and attachment name, since history carries no temp ids.
func (t *Timeline) ReplaceAll(records []Record) {
	claimed := make(map[string]bool)
	for _, r := range records {
		if r.TempID != "" {
			claimed[r.TempID] = true
		}
	}

	next := make([]Message, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ServerID == "" || seen[r.ServerID] {
			continue
		}
		seen[r.ServerID] = true
		m := t.fromRecord(r)
		prev, known := t.previousFor(r)
		if !known && m.Direction == DirectionOutgoing {
			prev, known = t.interruptedMatch(m, claimed)
		}
		if known {
			claimed[prev.LocalID] = true
			m.LocalID = prev.LocalID
			m.CreatedAtClient = prev.CreatedAtClient
			if m.Attachment == nil {
				m.Attachment = prev.Attachment
			}
			m.ReplyTo = mergeReply(prev.ReplyTo, m.ReplyTo)
			if m.Status.advances(prev.Status) {
				m.Status = prev.Status
			}
		}
		next = append(next, m)
	}
	resolveReplies(next)

	for _, m := range t.messages {
		if m.ServerID != "" || claimed[m.LocalID] {
			continue
		}
		if m.Status == StatusPending || m.Status == StatusFailed {
			next = append(next, m)
		}
	}

	t.messages = next
	t.reindex()
	t.version++
}

// previousFor finds the entry a history record refers to, by temp id first
// and then by server id.
func (t *Timeline) previousFor(r Record) (Message, bool) {
	if r.TempID != "" {
		if idx, ok := t.byLocal[r.TempID]; ok {
			return t.messages[idx], true
		}
	}
	if idx, ok := t.byServer[r.ServerID]; ok {
		return t.messages[idx], true
	}
	return Message{}, false
}

func (t *Timeline) interruptedMatch(m Message, claimed map[string]bool) (Message, bool) {
	for _, e := range t.messages {
		if e.ServerID != "" || claimed[e.LocalID] || e.Status != StatusFailed || e.FailReason != failReasonInterrupted {
			continue
		}
		if e.Kind == m.Kind && e.Content == m.Content && attachmentName(e.Attachment) == attachmentName(m.Attachment) {
			return e, true
		}
	}
	return Message{}, false
}

func attachmentName(a *Attachment) string {
	if a == nil {
		return ""
	}
	return a.Name
}

// Messages returns a copy of the entries in display order.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.clone()
	}
	return out
}

// Lookup finds an entry by server id or local id.
func (t *Timeline) Lookup(id string) (Message, bool) {
	if idx, ok := t.byServer[id]; ok {
		return t.messages[idx].clone(), true
	}
	if idx, ok := t.byLocal[id]; ok {
		return t.messages[idx].clone(), true
	}
	return Message{}, false
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	return len(t.messages)
}

// Version increments on every mutation.
func (t *Timeline) Version() uint64 {
	return t.version
}

// restore seeds an empty timeline from the local cache. Entries that were
// still pending when the cache was written can no longer be confirmed and
// come back as failed.
func (t *Timeline) restore(cached []Message) {
	if len(t.messages) > 0 {
		return
	}
	for _, m := range cached {
		m = m.clone()
		if m.LocalID == "" {
			m.LocalID = utils.NewLocalID()
		}
		if m.Status == StatusPending {
			m.Status = StatusFailed
			m.FailReason = failReasonInterrupted
		}
		t.messages = append(t.messages, m)
	}
	t.reindex()
	t.version++
}

func (t *Timeline) hasLocal(localID string) bool {
	_, ok := t.byLocal[localID]
	return ok
}

func (t *Timeline) reindex() {
	t.byLocal = make(map[string]int, len(t.messages))
	t.byServer = make(map[string]int, len(t.messages))
	for i, m := range t.messages {
		t.byLocal[m.LocalID] = i
		if m.ServerID != "" {
			t.byServer[m.ServerID] = i
		}
	}
}

func (t *Timeline) fromRecord(r Record) Message {
	kind := r.Kind
	if kind == "" {
		kind = KindText
	}
	label := r.SenderLabel
	if label == "" {
		label = r.SenderID
	}
	conversationID := r.ConversationID
	if conversationID == "" {
		conversationID = t.conversationID
	}
	return Message{
		LocalID:         utils.NewLocalID(),
		ServerID:        r.ServerID,
		ConversationID:  conversationID,
		SenderID:        r.SenderID,
		SenderLabel:     label,
		Direction:       DirectionFor(r, t.selfID),
		Kind:            kind,
		Content:         r.Content,
		Attachment:      r.attachment(),
		Status:          r.status(),
		ReplyTo:         r.serverReply(),
		CreatedAtClient: t.clock.Now(),
		CreatedAtServer: r.CreatedAt,
	}
}

// resolveReplies fills reply quotes the server left incomplete from the
// targets present in the same page.
func resolveReplies(msgs []Message) {
	byID := make(map[string]int, len(msgs))
	for i, m := range msgs {
		byID[m.ServerID] = i
	}
	for i := range msgs {
		r := msgs[i].ReplyTo
		if r == nil || (r.SenderLabel != "" && r.PreviewText != "") {
			continue
		}
		idx, ok := byID[r.TargetID]
		if !ok {
			continue
		}
		local := ResolveReply(msgs[idx], "")
		msgs[i].ReplyTo = mergeReply(local, r)
	}
}
