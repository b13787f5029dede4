package steps

import "regexp"

// namedSecretPatterns matches well-known credential formats that should never
// appear in a client email regardless of context. Each pattern is
// intentionally specific (vendor prefix + sufficient length) to keep the
// false-positive rate low.
var namedSecretPatterns = []*regexp.Regexp{
	// OpenAI API key — classic and project variants
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`\bsk-proj-[A-Za-z0-9_\-]{20,}\b`),
	// Anthropic
	regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_\-]{20,}\b`),
	// AWS access key ID
	regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`),
	// GitHub tokens (personal, OAuth, fine-grained)
	regexp.MustCompile(`\bghp_[A-Za-z0-9]{36,}\b`),
	regexp.MustCompile(`\bgho_[A-Za-z0-9]{36,}\b`),
	regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}\b`),
	// Slack tokens
	regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}\b`),
	// Stripe secret / restricted / public keys
	regexp.MustCompile(`\b(?:sk|rk|pk)_(?:live|test)_[A-Za-z0-9]{20,}\b`),
}

// genericSecretPatterns catches high-entropy strings that are unlikely to
// appear in normal prose. These are skipped when the message carries a
// billing reference (IBAN confirmations and payment references legitimately
// contain long alphanumeric runs).
var genericSecretPatterns = []*regexp.Regexp{
	// Long base64 segment (≥48 contiguous chars from the base64 alphabet).
	// Using 48 instead of 40 avoids false positives from SHA-1 hashes (40 chars)
	// while still catching SHA-256 hashes (64 chars) and longer API tokens.
	regexp.MustCompile(`[A-Za-z0-9+/]{48,}={0,2}`),
	// Long lowercase hex (≥48 chars). Avoids SHA-1 (40 chars) while catching
	// SHA-256 (64 chars) and other long hex tokens.
	regexp.MustCompile(`[0-9a-f]{48,}`),
}

// LooksLikeSecret reports whether body appears to contain a sensitive
// credential that has no business being in an inbound client message.
//
// When skipGeneric is true (the message carries a billing or payment
// reference), only the named vendor patterns are checked so that legitimate
// payment confirmations are not refused.
func LooksLikeSecret(body string, skipGeneric bool) bool {
	for _, re := range namedSecretPatterns {
		if re.MatchString(body) {
			return true
		}
	}
	if !skipGeneric {
		for _, re := range genericSecretPatterns {
			if re.MatchString(body) {
				return true
			}
		}
	}
	return false
}

// SecretGuardrailMessage is the reply sent when an inbound message is
// rejected by the secret-in-chat guardrail.
const SecretGuardrailMessage = "That message appears to contain a credential or API key. " +
	"Please don't share credentials over email — if this relates to a booking payment, " +
	"our billing team will follow up through the secure invoice portal."
