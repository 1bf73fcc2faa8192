// Package redact scrubs secret-shaped and PII-shaped substrings from text
// before it reaches the audit log. The scanner is deliberately conservative:
// a false positive masks harmless text, a false negative leaks a credential
// into a record that can never be rewritten.
package redact

import "regexp"

// Mask replaces every matched secret or PII fragment.
const Mask = "[REDACTED]"

// Keyed patterns keep the label and mask only the value, so redacted
// summaries stay readable ("password: [REDACTED]").
var keyedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password\s*[:=]\s*)\S+`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*)\S+`),
	regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)\S+`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*)\S+`),
}

// Bare patterns are masked wholesale.
var barePatterns = []*regexp.Regexp{
	// Provider-prefixed API keys (sk-..., ghp_..., AKIA..., xoxb-...).
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{8,}`),
	regexp.MustCompile(`\bghp_[A-Za-z0-9]{8,}`),
	regexp.MustCompile(`\bAKIA[A-Z0-9]{12,}`),
	regexp.MustCompile(`\bxox[bp]-[A-Za-z0-9\-]{8,}`),

	// Email addresses.
	regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`),

	// Account-number shapes: long unbroken digit runs.
	regexp.MustCompile(`\b\d{8,17}\b`),

	// Long high-entropy tokens (base64ish blobs, bearer tokens).
	regexp.MustCompile(`\b[A-Za-z0-9+/=_\-]{40,}\b`),
}

// Redact returns a copy of text with secret-shaped and PII-shaped
// substrings masked. Idempotent: Redact(Redact(x)) == Redact(x).
func Redact(text string) string {
	out := text
	for _, re := range keyedPatterns {
		out = re.ReplaceAllString(out, "${1}"+Mask)
	}
	for _, re := range barePatterns {
		out = re.ReplaceAllString(out, Mask)
	}
	return out
}
