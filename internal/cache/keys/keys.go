// Package keys derives Redis keys for cached backend queries.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const Prefix = "ls"

// QueryKey names one cached select. The generation segment lets a table's
// entries be invalidated at once by bumping GenerationKey(table).
func QueryKey(table string, gen int64, canonical string) string {
	text := collapseASCIIWhitespace(canonical)
	safe := sanitize(text, false)

	const maxReadableLen = 96
	if len(safe) > maxReadableLen {
		safe = safe[:maxReadableLen]
	}

	sum := xxhash.Sum64String(text)
	return fmt.Sprintf("%s:q:%s:g%d:%s:f=%016x", Prefix, sanitize(strings.TrimSpace(table), true), gen, safe, sum)
}

// GenerationKey holds the current generation counter of a table.
func GenerationKey(table string) string {
	return Prefix + ":gen:" + sanitize(strings.TrimSpace(table), true)
}

// sanitize maps s onto [A-Za-z0-9:_=-]; strict also drops '='.
func sanitize(s string, strict bool) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		case r == '=' && !strict:
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
