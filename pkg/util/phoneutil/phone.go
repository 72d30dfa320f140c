// Package phoneutil normalizes phone numbers captured on leads.
package phoneutil

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizeE164 formats input to E.164 using region for numbers without a country code.
// If parsing fails, it returns the trimmed input.
func NormalizeE164(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}
