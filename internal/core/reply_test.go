package core

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestResolveReplyLabels(t *testing.T) {
	out := Message{LocalID: "l1", ServerID: "m1", Direction: DirectionOutgoing, Kind: KindText, Content: "mine"}
	if r := ResolveReply(out, "Alice"); r.SenderLabel != "Alice" || r.TargetID != "m1" {
		t.Fatalf("unexpected outgoing reply: %+v", r)
	}
	if r := ResolveReply(out, ""); r.SenderLabel != "You" {
		t.Fatalf("empty self label should fall back, got %+v", r)
	}

	in := Message{LocalID: "l2", SenderID: "42", Direction: DirectionIncoming, Kind: KindText, Content: "theirs"}
	if r := ResolveReply(in, "Alice"); r.SenderLabel != "42" || r.TargetID != "l2" {
		t.Fatalf("unexpected incoming reply: %+v", r)
	}
}

func TestPreview(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want string
	}{
		{"collapses whitespace", Message{Kind: KindText, Content: "  a \n\n b  "}, "a b"},
		{"file name", Message{Kind: KindFile, Attachment: &Attachment{Name: "report.pdf"}}, "File: report.pdf"},
		{"file from path", Message{Kind: KindFile, Attachment: &Attachment{Path: "/files/9/x.png"}}, "File: x.png"},
		{"file without metadata", Message{Kind: KindFile}, "File"},
		{"image", Message{Kind: "image", Attachment: &Attachment{Name: "p.jpg"}}, "Photo"},
		{"voice", Message{Kind: "voice"}, "Voice message"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Preview(tc.msg); got != tc.want {
				t.Fatalf("Preview() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPreviewTruncatesLongText(t *testing.T) {
	long := strings.Repeat("ж", previewLimit+30)
	got := Preview(Message{Kind: KindText, Content: long})
	if n := utf8.RuneCountInString(got); n != previewLimit {
		t.Fatalf("preview has %d runes, want %d", n, previewLimit)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
}
