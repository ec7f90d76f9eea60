package utils

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s()-]{10,}$`)
)

// IsEmail reports whether an identifier looks like an email address.
// Anything with an '@' is routed to the mailer; the rest goes to SMS.
func IsEmail(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// ValidEmail checks the email format.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidPhone checks the phone format (digits with optional +, spaces,
// parentheses and dashes, at least 10 characters).
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// MaskIdentifier obscures most of an identifier for echoing back in
// responses: "abc***@domain" for emails, "987***21" for phones.
func MaskIdentifier(identifier string) string {
	if identifier == "" {
		return ""
	}

	if IsEmail(identifier) {
		at := strings.Index(identifier, "@")
		local, domain := identifier[:at], identifier[at+1:]
		if len(local) > 3 {
			local = local[:3]
		}
		return local + "***@" + domain
	}

	if len(identifier) <= 5 {
		return identifier[:1] + "***"
	}
	return identifier[:3] + "***" + identifier[len(identifier)-2:]
}
