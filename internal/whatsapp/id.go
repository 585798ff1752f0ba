package whatsapp

import (
	"strings"
	"unicode"
)

// ShortID derives the canonical message id from a provider identifier.
// Composite ids look like "<from_me>_<chat_id>_<short_id>"; the trailing
// segment is the id. Ids without a separator are already short. An empty
// trailing segment falls back to the whole id.
func ShortID(providerID string) string {
	id := strings.TrimSpace(providerID)
	i := strings.LastIndex(id, "_")
	if i < 0 {
		return id
	}
	if short := id[i+1:]; short != "" {
		return short
	}
	return id
}

// ChatID returns the provider chat id for a phone number.
func ChatID(phone string) string {
	if strings.Contains(phone, "@") {
		return phone
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	return digits + "@c.us"
}
