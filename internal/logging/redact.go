package logging

import (
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"key":          {},
	"key_fragment": {},
	"fragment":     {},
	"password":     {},
	"salt_key":     {},
	"token":        {},
	"manage_token": {},
	"secret":       {},
	"secret_key":   {},
	"blob":         {},
}

// RedactAttr is a slog ReplaceAttr hook. It masks attributes whose key names
// key material or credentials and cuts the fragment off any URL-like string,
// since share-link fragments carry decryption keys.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if s, ok := StripFragment(a.Value.String()); ok {
			return slog.String(a.Key, s)
		}
	}
	return a
}

// StripFragment removes everything from the first '#' of a URL-like string.
// The second result reports whether anything was removed.
func StripFragment(s string) (string, bool) {
	if !strings.Contains(s, "://") && !strings.HasPrefix(s, "/") {
		return s, false
	}
	i := strings.IndexByte(s, '#')
	if i < 0 {
		return s, false
	}
	return s[:i], true
}
