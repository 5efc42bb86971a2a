package generator

// MaxPostLen is the posting endpoint's hard character limit.
const MaxPostLen = 280

const ellipsis = "..."

// ClampPost enforces the 280-character limit: longer text is cut to 277
// characters plus an ellipsis marker (total exactly 280); shorter text is
// returned unchanged, so the operation is idempotent. Counted in runes so a
// multi-byte character is never split.
func ClampPost(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxPostLen {
		return s
	}
	return string(runes[:MaxPostLen-len(ellipsis)]) + ellipsis
}
