package agent

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/llm"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/prompts"
)

// Sanitizer defaults.
const (
	DefaultHistoryWindow  = 2
	DefaultPrintableRatio = 0.6
)

// SanitizeOptions tune Sanitize. Zero values select the defaults.
type SanitizeOptions struct {
	Window            int
	MinPrintableRatio float64
}

func (o SanitizeOptions) withDefaults() SanitizeOptions {
	if o.Window <= 0 {
		o.Window = DefaultHistoryWindow
	}
	if o.MinPrintableRatio <= 0 {
		o.MinPrintableRatio = DefaultPrintableRatio
	}
	return o
}

// errorPrefixes mark assistant messages that carry a propagated failure
// rather than an answer. Matched case-insensitively.
var errorPrefixes = []string{
	"error:",
	"error -",
	"[error",
	"failed to ",
	"an error occurred",
	"i encountered an error",
	"internal server error",
	"traceback (most recent call last)",
	"panic:",
	"exception:",
}

// errorFragments mark error text anywhere in an assistant message.
var errorFragments = []string{
	"context deadline exceeded",
	"connection refused",
	"no more responses",
}

// Sanitize filters and windows a conversation before it is sent to the
// model. It drops unreadable messages, assistant messages that echo
// errors, and tool results that were already answered, then keeps the
// last Window messages. Sanitize is pure and Sanitize(Sanitize(c)) equals
// Sanitize(c).
func Sanitize(conv []Message, opts SanitizeOptions) []Message {
	opts = opts.withDefaults()

	kept := make([]Message, 0, len(conv))
	for _, m := range conv {
		m.Content = norm.NFC.String(m.Content)
		if !readable(m.Content, opts.MinPrintableRatio) {
			continue
		}
		if m.Role == llm.RoleAssistant && looksLikeError(m.Content) {
			continue
		}
		kept = append(kept, m)
	}

	kept = dropConsumedResults(kept)

	if len(kept) > opts.Window {
		kept = kept[len(kept)-opts.Window:]
	}
	return kept
}

// readable reports whether s is non-blank and at least minRatio of its
// runes are printable. Whitespace counts as printable; invalid UTF-8
// does not.
func readable(s string, minRatio float64) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	var total, printable int
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		total++
		if r == utf8.RuneError && size <= 1 {
			continue
		}
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return float64(printable)/float64(total) >= minRatio
}

func looksLikeError(content string) bool {
	c := strings.TrimSpace(content)
	if c == prompts.FailureMessage || c == prompts.ExhaustedMessage {
		return true
	}
	lower := strings.ToLower(c)
	for _, p := range errorPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, f := range errorFragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// dropConsumedResults keeps at most one tool results message: the most
// recent, and only while no assistant message follows it.
func dropConsumedResults(conv []Message) []Message {
	last := -1
	for i, m := range conv {
		if isResults(m) {
			last = i
		}
	}
	if last == -1 {
		return conv
	}
	for _, m := range conv[last+1:] {
		if m.Role == llm.RoleAssistant {
			last = -1
			break
		}
	}

	out := conv[:0:0]
	for i, m := range conv {
		if isResults(m) && i != last {
			continue
		}
		out = append(out, m)
	}
	return out
}

func isResults(m Message) bool {
	return m.Role == llm.RoleUser && prompts.IsToolResults(m.Content)
}
