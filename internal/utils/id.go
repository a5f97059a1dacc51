package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewLocalID returns a client-side correlation id for an optimistic message.
// It doubles as the temp_id the server echoes back.
func NewLocalID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	return "local-" + NewID()
}

// NewID returns a best-effort unique identifier.
func NewID() string {
	const size = 12

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// Fallback to timestamp if crypto/rand is unavailable.
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
