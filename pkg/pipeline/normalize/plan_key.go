package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"ai-answer-engine-be/pkg/pipeline/state"
)

// PlanKey is the content address of a normalization outcome: same message,
// history, and rewrite variant always map to the same key. Mode is excluded
// deliberately; normalization is identical for quick and deep runs.
func PlanKey(qc state.QueryContext) string {
	h := sha256.New()
	io.WriteString(h, "plan\x00")
	io.WriteString(h, qc.Message)
	io.WriteString(h, "\x00")
	io.WriteString(h, qc.RewriteVariant)
	for _, turn := range qc.History {
		io.WriteString(h, "\x00")
		io.WriteString(h, turn.Role)
		io.WriteString(h, "\x1f")
		io.WriteString(h, turn.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}
