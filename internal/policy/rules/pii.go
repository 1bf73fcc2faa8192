package rules

import (
	"fmt"
	"regexp"

	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
)

// Pre-compiled PII patterns, scanned against structured fields only.
var piiPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	// SSN: 123-45-6789 or 123 45 6789
	{regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`), "SSN"},
	// Credit cards (Visa, Mastercard, Amex)
	{regexp.MustCompile(`\b4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "credit card (Visa)"},
	{regexp.MustCompile(`\b5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "credit card (Mastercard)"},
	{regexp.MustCompile(`\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`), "credit card (Amex)"},
	// Email addresses
	{regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), "email address"},
	// IBAN
	{regexp.MustCompile(`\b[A-Z]{2}\d{2}[-\s]?[A-Z0-9]{4}[-\s]?(?:[A-Z0-9]{4}[-\s]?){1,7}[A-Z0-9]{1,4}\b`), "IBAN"},
}

// PII denies steps carrying personally identifiable information in their
// payload or tool arguments. Audit summaries are redacted separately; this
// rule stops the data from being routed outward at all.
type PII struct{}

func (PII) Name() string { return "pii_in_payload" }

func (PII) Evaluate(step plan.Step, _ policy.RiskMeta, _ plan.RiskLevel, _ policy.State) *policy.Finding {
	for _, field := range flatten(step) {
		for _, p := range piiPatterns {
			if p.re.MatchString(field) {
				return &policy.Finding{
					Verdict:   policy.VerdictDeny,
					Rationale: fmt.Sprintf("PII detected in step fields: %s", p.detail),
					Flags:     []string{"pii:" + p.detail},
				}
			}
		}
	}
	return nil
}
