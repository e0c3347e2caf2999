package types

import (
	"fmt"
	"strings"
)

// MaxNodeKeyLen bounds derived node keys (see OnsiteNodeKey in pkg/secrets).
const MaxNodeKeyLen = 64

func isDomainChar(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ':' || r == '_' || r == '-'
}

// NormalizeDomain upper-cases a revision domain and rejects anything
// outside the A-Z 0-9 : _ - character set. Domains are produced by
// programs, not people, so invalid input is an error rather than being
// silently rewritten.
func NormalizeDomain(domain string) (string, error) {
	d := strings.ToUpper(strings.TrimSpace(domain))
	if d == "" {
		return "", fmt.Errorf("domain is required")
	}
	if len(d) > 64 {
		return "", fmt.Errorf("domain exceeds 64 characters")
	}
	for _, r := range d {
		if !isDomainChar(r) {
			return "", fmt.Errorf("domain contains invalid character %q", r)
		}
	}
	return d, nil
}

// NormalizeCode upper-cases an identifier code (reseller code, store code,
// onsite server uid) and maps it into the A-Z 0-9 : _ - character set:
// spaces become dashes, anything else invalid is dropped. Codes originate
// from humans and hardware labels, so this is lenient where
// NormalizeDomain is strict.
func NormalizeCode(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	var b strings.Builder
	for _, r := range c {
		switch {
		case isDomainChar(r):
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return b.String()
}

// NormalizeSlug lower-cases a tenant slug and maps it into a-z 0-9 _ -
// with spaces collapsed to dashes.
func NormalizeSlug(slug string) string {
	s := strings.ToLower(strings.TrimSpace(slug))
	var b strings.Builder
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return b.String()
}

// NormalizeEmail lower-cases and trims an account email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
