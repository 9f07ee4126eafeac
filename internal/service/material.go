package service

import "strings"

// NormalizeMaterial canonicalizes a waste-type name to the pluralized
// display form used as the price-table key: "  plastic " -> "Plastics".
// The exact rule (trim, capitalize first rune, lowercase the rest, append
// "s" unless already suffixed) is a compatibility requirement of the price
// table and must not change.
func NormalizeMaterial(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	r := []rune(s)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	out := string(r)
	if !strings.HasSuffix(out, "s") {
		out += "s"
	}
	return out
}
