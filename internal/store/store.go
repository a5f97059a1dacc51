package store

import (
	"context"

	"github.com/xipher-messenger/chatcore/internal/core"
)

// TimelineCache persists conversation timelines between runs so a
// conversation can render before its history request completes.
type TimelineCache interface {
	// LoadMessages returns the cached timeline in display order.
	LoadMessages(ctx context.Context, conversationID string) ([]core.Message, error)
	// SaveMessages replaces the cached timeline of one conversation.
	SaveMessages(ctx context.Context, conversationID string, msgs []core.Message) error
	// Purge drops every cached conversation, e.g. on logout.
	Purge(ctx context.Context) error
	Close() error
}
