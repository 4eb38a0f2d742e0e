// Package redact provides helpers for stripping sensitive values from log
// output and diagnostic messages before they leave the process boundary.
//
// API keys for the chat-completion and image-generation services must never
// appear in log lines, error envelopes surfaced to chat clients, or rows
// written to the usage ledger.  Redaction is best-effort: it operates on
// string representations and relies on callers to pass the right set of
// sensitive terms.  It is NOT a substitute for keeping secrets out of log
// call-sites in the first place.
package redact

import "strings"

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED].  Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
//
// Example:
//
//	safe := redact.String(diagnostic, nlpAPIKey, imageAPIKey)
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Headers returns a shallow copy of h with values replaced by [REDACTED] for
// every header whose name suggests it carries credentials (Authorization,
// api-key variants, tokens).
func Headers(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if isSensitiveKey(k) && v != "" {
			out[k] = placeholder
			continue
		}
		out[k] = v
	}
	return out
}

// isSensitiveKey returns true when the key name suggests it holds a secret.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"authorization", "token", "secret", "key", "credential", "auth"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
