package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// Fingerprint identifies a step by its semantic content instead of its
// generated step ID. Re-planning the same request yields new step IDs but
// identical fingerprints, so a confirmation granted in one cycle can be
// matched to exactly the same action in the next.
func (s Step) Fingerprint() string {
	doc := map[string]any{"kind": string(s.Kind)}
	if s.ToolCall != nil {
		doc["tool_call"] = s.ToolCall
	}
	if len(s.Payload) > 0 {
		doc["payload"] = s.Payload
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
