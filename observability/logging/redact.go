package logging

import (
	"encoding/hex"
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// plainKeys may be logged verbatim. Everything else passed through MaskField
// is redacted.
var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"error":     {},
	"reason":    {},
	"op":        {},
	"tx_hash":   {},
	"sender":    {},
	"borrower":  {},
	"route":     {},
	"status":    {},
	"requestid": {},
}

// MaskField returns key=value when the key is plain or the value is empty,
// and key=[REDACTED] otherwise.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	if _, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskSignature keeps the first four bytes of sig so rejected attestations can
// be correlated across log lines.
func MaskSignature(sig []byte) string {
	switch {
	case len(sig) == 0:
		return ""
	case len(sig) <= 4:
		return RedactedValue
	default:
		return hex.EncodeToString(sig[:4]) + "..."
	}
}
