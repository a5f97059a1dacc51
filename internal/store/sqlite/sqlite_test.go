package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/xipher-messenger/chatcore/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTimeline() []core.Message {
	created := time.UnixMilli(1_700_000_000_000)
	return []core.Message{
		{
			LocalID:         "l1",
			ServerID:        "10",
			SenderID:        "2",
			SenderLabel:     "bob",
			Direction:       core.DirectionIncoming,
			Kind:            core.KindText,
			Content:         "hi",
			Status:          core.StatusRead,
			CreatedAtServer: "2024-01-01T10:00:00Z",
		},
		{
			LocalID:         "l2",
			ServerID:        "11",
			SenderID:        "1",
			Direction:       core.DirectionOutgoing,
			Kind:            core.KindFile,
			Attachment:      &core.Attachment{Path: "/uploads/a.png", Name: "a.png", SizeBytes: 2048},
			Status:          core.StatusDelivered,
			ReplyTo:         &core.ReplyTo{TargetID: "10", SenderLabel: "bob", PreviewText: "hi"},
			CreatedAtClient: created,
		},
		{
			LocalID:         "l3",
			SenderID:        "1",
			Direction:       core.DirectionOutgoing,
			Kind:            core.KindText,
			Content:         "still sending",
			Status:          core.StatusPending,
			CreatedAtClient: created,
		},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveMessages(ctx, "2", sampleTimeline()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadMessages(ctx, "2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}

	if got[0].ServerID != "10" || got[0].Direction != core.DirectionIncoming || got[0].Status != core.StatusRead {
		t.Fatalf("first message mismatch: %+v", got[0])
	}
	if got[0].Attachment != nil || got[0].ReplyTo != nil {
		t.Fatalf("first message should have no attachment or reply")
	}
	if got[0].ConversationID != "2" {
		t.Fatalf("conversation id not filled: %q", got[0].ConversationID)
	}

	file := got[1]
	if file.Attachment == nil || file.Attachment.Name != "a.png" || file.Attachment.SizeBytes != 2048 {
		t.Fatalf("attachment lost: %+v", file.Attachment)
	}
	if file.ReplyTo == nil || file.ReplyTo.TargetID != "10" || file.ReplyTo.PreviewText != "hi" {
		t.Fatalf("reply lost: %+v", file.ReplyTo)
	}
	if !file.CreatedAtClient.Equal(time.UnixMilli(1_700_000_000_000)) {
		t.Fatalf("client timestamp lost: %v", file.CreatedAtClient)
	}

	// The cache stores what it is given; turning pending into failed is
	// the timeline's job on restore.
	if got[2].Status != core.StatusPending || got[2].ServerID != "" {
		t.Fatalf("pending entry mismatch: %+v", got[2])
	}
}

func TestSaveReplacesConversationOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.SaveMessages(ctx, "2", sampleTimeline())
	_ = s.SaveMessages(ctx, "3", sampleTimeline()[:1])
	if err := s.SaveMessages(ctx, "2", sampleTimeline()[1:2]); err != nil {
		t.Fatalf("save: %v", err)
	}

	two, _ := s.LoadMessages(ctx, "2")
	if len(two) != 1 || two[0].LocalID != "l2" {
		t.Fatalf("expected conversation 2 replaced, got %+v", two)
	}
	three, _ := s.LoadMessages(ctx, "3")
	if len(three) != 1 {
		t.Fatalf("conversation 3 should be untouched, got %d", len(three))
	}
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.SaveMessages(ctx, "2", sampleTimeline())
	_ = s.SaveMessages(ctx, "3", sampleTimeline())
	if err := s.Purge(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}
	for _, id := range []string{"2", "3"} {
		msgs, err := s.LoadMessages(ctx, id)
		if err != nil {
			t.Fatalf("load %s: %v", id, err)
		}
		if len(msgs) != 0 {
			t.Fatalf("conversation %s not purged", id)
		}
	}
}

func TestCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SaveMessages(ctx, "2", sampleTimeline()); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	msgs, err := reopened.LoadMessages(ctx, "2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages after reopen, got %d", len(msgs))
	}
}

func TestNewWithSetupError(t *testing.T) {
	_, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(`CREATE TABLE broken (`)
		return err
	})
	if err == nil {
		t.Fatalf("expected setup error")
	}
}
