package pii

import (
	"strings"
	"unicode/utf8"
)

// Mask applies a type-dependent masking pattern. Empty input passes
// through unchanged, and the function is deterministic:
// the same (piiType, value) always yields the same masked string.
func Mask(piiType Type, value string) string {
	if value == "" {
		return value
	}
	switch piiType {
	case TypeEmail:
		return maskEmail(value)
	case TypePhone:
		return maskPhone(value)
	case TypeName:
		return maskName(value)
	case TypeAddress, TypeGeneric:
		return maskPrefix(value, 0.3)
	default:
		return maskPrefix(value, 0.3)
	}
}

// maskEmail keeps the local-part's first rune, masks the rest of the local
// part, keeps the domain's first two runes and the TLD, masking the rest
// of the domain.
func maskEmail(value string) string {
	at := strings.IndexByte(value, '@')
	if at < 0 {
		// Not a well-formed email; fall back to the generic prefix rule
		// rather than guess at structure that isn't there.
		return maskPrefix(value, 0.3)
	}
	local := value[:at]
	domain := value[at+1:]

	localFirst := firstRune(local)

	dot := strings.LastIndexByte(domain, '.')
	var domainHead, tld string
	if dot < 0 {
		domainHead, tld = domain, ""
	} else {
		domainHead, tld = domain[:dot], domain[dot:]
	}
	domainHeadMasked := firstNRunes(domainHead, 2)

	var b strings.Builder
	b.WriteString(localFirst)
	b.WriteString("***@")
	b.WriteString(domainHeadMasked)
	b.WriteString("***")
	b.WriteString(tld)
	return b.String()
}

// maskPhone keeps the first three and last four digits, masking everything
// in between. Non-digit separators are preserved in place so formatted
// numbers keep their shape.
func maskPhone(value string) string {
	runes := []rune(value)
	digitIdx := make([]int, 0, len(runes))
	for i, r := range runes {
		if r >= '0' && r <= '9' {
			digitIdx = append(digitIdx, i)
		}
	}
	n := len(digitIdx)
	if n <= 7 {
		// Too short to keep 3+4 and still mask a digit; mask every
		// character to stay on the safe side.
		return maskPrefix(value, 0.0)
	}

	keepFront, keepBack := 3, 4
	out := make([]rune, len(runes))
	copy(out, runes)
	for _, idx := range digitIdx[keepFront : n-keepBack] {
		out[idx] = '*'
	}
	return string(out)
}

// maskName keeps the first code point, masks the rest.
func maskName(value string) string {
	first := firstRune(value)
	remaining := utf8.RuneCountInString(value) - 1
	if remaining <= 0 {
		return first
	}
	return first + strings.Repeat("*", remaining)
}

// maskPrefix keeps the first fraction of code points, masking the rest.
func maskPrefix(value string, fraction float64) string {
	total := utf8.RuneCountInString(value)
	keep := int(float64(total) * fraction)
	if keep < 0 {
		keep = 0
	}
	if keep > total {
		keep = total
	}
	head := firstNRunes(value, keep)
	masked := total - keep
	return head + strings.Repeat("*", masked)
}

func firstRune(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size <= 1 {
		return ""
	}
	return s[:size]
}

func firstNRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
