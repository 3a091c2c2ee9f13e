package stages

import (
	"regexp"
	"strings"
)

var (
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nonDigit       = regexp.MustCompile(`\D`)
	phoneDigitsLen = 10
)

// ValidEmail reports whether the address is well formed. A doubled
// ".com" suffix is a common transcription artifact and is rejected here
// so CleanEmail gets a chance to strip it first.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	if strings.Count(email, ".com") > 1 {
		return false
	}
	return emailPattern.MatchString(email)
}

// CleanEmail normalizes the address, repairing the ".com.com" artifact.
func CleanEmail(email string) (string, bool) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", false
	}
	if strings.HasSuffix(email, ".com.com") {
		email = strings.TrimSuffix(email, ".com")
	}
	if !ValidEmail(email) {
		return "", false
	}
	return email, true
}

// ValidPhone accepts any formatting that contains exactly ten digits.
func ValidPhone(phone string) bool {
	return len(nonDigit.ReplaceAllString(phone, "")) == phoneDigitsLen
}

// CleanPhone normalizes to the 555-012-3456 layout.
func CleanPhone(phone string) (string, bool) {
	digits := nonDigit.ReplaceAllString(phone, "")
	if len(digits) != phoneDigitsLen {
		return "", false
	}
	return digits[:3] + "-" + digits[3:6] + "-" + digits[6:], true
}

// CarrierVerified checks the carrier against the office's accepted list,
// case-insensitively.
func CarrierVerified(carrier string, known []string) bool {
	carrier = strings.TrimSpace(carrier)
	if carrier == "" {
		return false
	}
	for _, k := range known {
		if strings.EqualFold(carrier, k) {
			return true
		}
	}
	return false
}
