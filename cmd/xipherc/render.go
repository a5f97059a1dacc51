package main

import (
	"fmt"
	"strings"

	"github.com/xipher-messenger/chatcore/internal/core"
)

// renderer turns successive snapshots into terminal lines, printing each
// message once and then only its status changes.
type renderer struct {
	seen   map[string]core.Status
	typing string
}

func newRenderer() *renderer {
	return &renderer{seen: make(map[string]core.Status)}
}

func (r *renderer) diff(snap core.Snapshot) []string {
	var lines []string
	for _, m := range snap.Messages {
		prev, ok := r.seen[m.LocalID]
		r.seen[m.LocalID] = m.Status
		switch {
		case !ok:
			lines = append(lines, formatMessage(m))
		case prev != m.Status && m.Direction == core.DirectionOutgoing:
			line := fmt.Sprintf("  %s -> %s", shortID(m), m.Status)
			if m.Status == core.StatusFailed && m.FailReason != "" {
				line += " (" + m.FailReason + "; /resend " + m.LocalID + ")"
			}
			lines = append(lines, line)
		}
	}

	typing := strings.Join(snap.Typing, ", ")
	if typing != r.typing {
		r.typing = typing
		switch len(snap.Typing) {
		case 0:
		case 1:
			lines = append(lines, "* "+typing+" is typing")
		default:
			lines = append(lines, "* "+typing+" are typing")
		}
	}
	return lines
}

func formatMessage(m core.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s ", shortID(m))
	if m.ReplyTo != nil {
		fmt.Fprintf(&b, "[> %s: %s] ", m.ReplyTo.SenderLabel, m.ReplyTo.PreviewText)
	}
	who := m.SenderLabel
	if m.Direction == core.DirectionOutgoing {
		who = "you"
	} else if who == "" {
		who = m.SenderID
	}
	b.WriteString(who)
	b.WriteString(": ")
	if m.Attachment != nil {
		fmt.Fprintf(&b, "[file %s, %d bytes] ", m.Attachment.Name, m.Attachment.SizeBytes)
	}
	b.WriteString(m.Content)
	if m.Direction == core.DirectionOutgoing {
		fmt.Fprintf(&b, " (%s)", m.Status)
	}
	return b.String()
}

// shortID shows the server id once known so it can be used with /reply.
func shortID(m core.Message) string {
	if m.ServerID != "" {
		return "#" + m.ServerID
	}
	if len(m.LocalID) > 8 {
		return "~" + m.LocalID[:8]
	}
	return "~" + m.LocalID
}
