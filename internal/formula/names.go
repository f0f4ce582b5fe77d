package formula

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalizes a user-supplied identifier (variable name,
// sheet id, cell id): NFC normalization followed by lower-casing.
// Identifiers are case-insensitive everywhere in the system, and NFC keeps
// visually identical names from landing on distinct keys.
func NormalizeName(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
