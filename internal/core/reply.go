package core

import (
	"path"
	"strings"
	"unicode/utf8"
)

const (
	previewLimit = 120
	selfLabel    = "You"
)

// ResolveReply builds the quote shown above a reply to target. Outgoing
// targets are labelled with self; incoming ones with the sender's label.
func ResolveReply(target Message, self string) *ReplyTo {
	id := target.ServerID
	if id == "" {
		id = target.LocalID
	}
	label := target.SenderLabel
	if target.Direction == DirectionOutgoing {
		label = self
		if label == "" {
			label = selfLabel
		}
	}
	if label == "" {
		label = target.SenderID
	}
	return &ReplyTo{TargetID: id, SenderLabel: label, PreviewText: Preview(target)}
}

// Preview is the one-line summary of a message used in reply quotes.
func Preview(m Message) string {
	if m.Kind == KindText || m.Kind == "" {
		return truncate(collapse(m.Content), previewLimit)
	}
	name := ""
	if m.Attachment != nil {
		name = m.Attachment.Name
		if name == "" {
			name = path.Base(m.Attachment.Path)
		}
	}
	switch m.Kind {
	case "image":
		return "Photo"
	case "voice":
		return "Voice message"
	}
	if name == "" || name == "." || name == "/" {
		return "File"
	}
	return "File: " + name
}

// mergeReply lets server-provided fields override the local preview while
// keeping local values the server left blank.
func mergeReply(local, server *ReplyTo) *ReplyTo {
	if server == nil {
		return local
	}
	if local == nil {
		r := *server
		return &r
	}
	out := *local
	if server.TargetID != "" {
		out.TargetID = server.TargetID
	}
	if server.SenderLabel != "" {
		out.SenderLabel = server.SenderLabel
	}
	if server.PreviewText != "" {
		out.PreviewText = server.PreviewText
	}
	return &out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
