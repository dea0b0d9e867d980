package executor

import (
	"crypto/sha256"
	"encoding/hex"

	"ai-answer-engine-be/pkg/pipeline/state"
)

// CacheKey derives the result-cache key from mode, message, and the full
// conversation history. Any differing turn produces a different key, so a
// stale cached answer can never leak across conversations.
func CacheKey(qc state.QueryContext) string {
	h := sha256.New()
	h.Write([]byte("result\x00"))
	h.Write([]byte(qc.Mode))
	h.Write([]byte{0})
	h.Write([]byte(qc.Message))
	for _, turn := range qc.History {
		h.Write([]byte{0})
		h.Write([]byte(turn.Role))
		h.Write([]byte{0x1f})
		h.Write([]byte(turn.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}
