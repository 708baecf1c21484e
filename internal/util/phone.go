package util

import (
	"regexp"
	"strings"
)

// Myanmar mobile numbers, with or without the +95 country code.
var phonePattern = regexp.MustCompile(`^(09|\+?950?9|\+?95950?9)\d{7,9}$`)

// ValidPhone reports whether the raw input looks like a Myanmar mobile number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// NormalizePhone strips the local trunk prefix ("09") so the stored value is the
// bare national number. Inputs without the prefix pass through unchanged.
func NormalizePhone(phone string) string {
	if strings.HasPrefix(phone, "09") {
		return phone[2:]
	}
	return phone
}
