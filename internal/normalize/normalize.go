// Package normalize turns raw phone, email, and name strings into canonical
// comparison keys. All functions are pure; malformed input yields an empty or
// short key that simply never matches.
package normalize

import "strings"

// Phone strips every character except digits and a single leading "+".
// An empty result means the input carries no usable identifier.
func Phone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "+" {
		return ""
	}
	return out
}

// phoneKeyDigits is the number of trailing digits compared when matching
// phone numbers, so that a number stored with a country prefix still matches
// its bare national form.
const phoneKeyDigits = 9

// PhoneKey reduces a phone number to its comparison key: the digits only,
// truncated to the trailing phoneKeyDigits. "+34 600 111 222" and
// "600111222" produce the same key. Empty when the input has no digits.
func PhoneKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > phoneKeyDigits {
		digits = digits[len(digits)-phoneKeyDigits:]
	}
	return digits
}

// Email trims surrounding whitespace and lowercases.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims, lowercases, and collapses internal whitespace runs to single
// spaces.
func Name(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
