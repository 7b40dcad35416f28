package core

import "strings"

const RedactedValue = "[REDACTED]"

// sensitiveKeyParts flags any field key containing one of these fragments.
var sensitiveKeyParts = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"verifier",
	"credential",
	"api_key",
	"apikey",
}

// traceabilityKeys are operational identifiers that stay readable in logs
// even when a sensitive fragment would otherwise match.
var traceabilityKeys = map[string]struct{}{
	"provider":     {},
	"user_id":      {},
	"external_id":  {},
	"session_id":   {},
	"pairing_code": {},
	"tool":         {},
	"trace_id":     {},
	"request_id":   {},
}

// MaskToken keeps a short prefix and suffix for audit logging and hides
// the rest. Short tokens are fully redacted.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return RedactedValue
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// RedactSensitiveMap returns a deep copy of fields with secret-bearing keys
// replaced by RedactedValue. The input map is never mutated.
func RedactSensitiveMap(fields map[string]any) map[string]any {
	scrubbed := make(map[string]any, len(fields))
	for key, value := range fields {
		if shouldRedactKey(key) {
			scrubbed[key] = RedactedValue
			continue
		}
		scrubbed[key] = redactValue(value)
	}
	return scrubbed
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := traceabilityKeys[key]; ok {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
