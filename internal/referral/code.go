package referral

import (
	"regexp"
	"strings"
)

var (
	codeRe  = regexp.MustCompile(`^[a-z0-9_-]{1,20}$`)
	ownerRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)
)

// Normalize lowercases ASCII letters and checks a code. Surrounding
// whitespace is not trimmed: " abc" is a malformed code.
func Normalize(code string) (string, error) {
	c := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, code)
	if !codeRe.MatchString(c) {
		return "", ErrInvalidCode
	}
	return c, nil
}

func ValidateOwner(owner string) error {
	if !ownerRe.MatchString(owner) {
		return ErrInvalidOwner
	}
	return nil
}
