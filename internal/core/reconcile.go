package core

// Outcome reports what a reconciliation step did to the timeline.
type Outcome int

const (
	// OutcomeAcked means a local entry was matched and confirmed.
	OutcomeAcked Outcome = iota
	// OutcomeAppended means an unknown server message was added.
	OutcomeAppended
	// OutcomeUpdated means an existing entry's status advanced.
	OutcomeUpdated
	// OutcomeDuplicate means the update was already applied.
	OutcomeDuplicate
	// OutcomeStale means the update referenced nothing the timeline holds.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcked:
		return "acked"
	case OutcomeAppended:
		return "appended"
	case OutcomeUpdated:
		return "updated"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "stale"
	}
}

// ApplyServerAck confirms the entry created under localID. It accepts a
// pending or failed entry and is a no-op once a server id is assigned, so
// the REST ack and the pushed echo can land in either order.
func (t *Timeline) ApplyServerAck(localID string, ack Ack) Outcome {
	idx, ok := t.byLocal[localID]
	if !ok {
		return OutcomeStale
	}
	if t.messages[idx].ServerID != "" {
		return OutcomeDuplicate
	}

	status := ack.Status
	if status == StatusPending || status == StatusFailed {
		status = StatusSent
	}

	// A push without temp_id may already have appended this message.
	if ack.ServerID != "" {
		if dup, ok := t.byServer[ack.ServerID]; ok && dup != idx {
			if s := t.messages[dup].Status; status.advances(s) {
				status = s
			}
			t.messages = append(t.messages[:dup], t.messages[dup+1:]...)
			t.reindex()
			idx = t.byLocal[localID]
		}
	}

	m := &t.messages[idx]
	m.ServerID = ack.ServerID
	m.Status = status
	m.FailReason = ""
	if ack.CreatedAt != "" {
		m.CreatedAtServer = ack.CreatedAt
	}
	if ack.Content != "" {
		m.Content = ack.Content
	}
	if ack.Kind != "" {
		m.Kind = ack.Kind
	}
	if ack.Attachment != nil {
		a := *ack.Attachment
		if m.Attachment != nil {
			if a.Name == "" {
				a.Name = m.Attachment.Name
			}
			if a.SizeBytes == 0 {
				a.SizeBytes = m.Attachment.SizeBytes
			}
		}
		m.Attachment = &a
	}
	m.ReplyTo = mergeReply(m.ReplyTo, ack.ReplyTo)
	if m.ServerID != "" {
		t.byServer[m.ServerID] = idx
	}
	t.version++
	return OutcomeAcked
}

// ApplyPushedMessage reconciles a message pushed over the realtime channel.
// A temp id that names a local entry is treated as that entry's ack; a
// server id already present is ignored; anything else is appended.
func (t *Timeline) ApplyPushedMessage(r Record) (Outcome, Message) {
	if r.TempID != "" {
		if _, ok := t.byLocal[r.TempID]; ok {
			outcome := t.ApplyServerAck(r.TempID, AckFromRecord(r))
			m, _ := t.Lookup(r.TempID)
			return outcome, m
		}
	}
	if r.ServerID == "" {
		return OutcomeStale, Message{}
	}
	if idx, ok := t.byServer[r.ServerID]; ok {
		return OutcomeDuplicate, t.messages[idx].clone()
	}

	m := t.fromRecord(r)
	if m.ReplyTo != nil && (m.ReplyTo.SenderLabel == "" || m.ReplyTo.PreviewText == "") {
		if target, ok := t.Lookup(m.ReplyTo.TargetID); ok {
			m.ReplyTo = mergeReply(ResolveReply(target, ""), m.ReplyTo)
		}
	}
	t.messages = append(t.messages, m)
	t.byLocal[m.LocalID] = len(t.messages) - 1
	t.byServer[m.ServerID] = len(t.messages) - 1
	t.version++
	return OutcomeAppended, m.clone()
}

// ApplyReceipt advances the status of the entry with serverID. Receipts
// never move a status backwards; unknown ids are reported stale.
func (t *Timeline) ApplyReceipt(serverID string, status Status) Outcome {
	idx, ok := t.byServer[serverID]
	if !ok {
		return OutcomeStale
	}
	m := &t.messages[idx]
	if !m.Status.advances(status) {
		return OutcomeDuplicate
	}
	m.Status = status
	t.version++
	return OutcomeUpdated
}
