package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// receiptLog sends each delivered/read receipt at most once per session.
// A read receipt implies delivery, so it suppresses a later delivered one.
type receiptLog struct {
	mu        sync.Mutex
	signals   Signaler
	logger    *zerolog.Logger
	delivered map[string]bool
	read      map[string]bool
}

func newReceiptLog(signals Signaler, logger *zerolog.Logger) *receiptLog {
	return &receiptLog{
		signals:   signals,
		logger:    logger,
		delivered: make(map[string]bool),
		read:      make(map[string]bool),
	}
}

func (r *receiptLog) send(kind ReceiptKind, messageID string) {
	if messageID == "" || r.signals == nil {
		return
	}
	r.mu.Lock()
	if r.read[messageID] || (kind == ReceiptDelivered && r.delivered[messageID]) {
		r.mu.Unlock()
		return
	}
	if kind == ReceiptRead {
		r.read[messageID] = true
	} else {
		r.delivered[messageID] = true
	}
	r.mu.Unlock()

	if err := r.signals.SendReceipt(context.Background(), kind, messageID); err != nil {
		r.logger.Debug().Err(err).Str("message_id", messageID).Stringer("kind", kind).Msg("receipt not sent")
	}
}

func (r *receiptLog) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = make(map[string]bool)
	r.read = make(map[string]bool)
}
