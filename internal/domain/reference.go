package domain

import (
	"regexp"
	"strings"
)

// Cancellation invoices reference the original order in their header too, so
// the marker check has to run before token extraction.
const cancellationMarker = "storno"

var orderReferencePattern = regexp.MustCompile(`#([A-Za-z0-9]+)`)

// ExtractOrderReference derives the Shopify order number from a sevDesk invoice
// header. The reference is the alphanumeric run following the first '#',
// normalized to uppercase. Headers carrying the cancellation marker yield no
// reference regardless of other content.
func ExtractOrderReference(header string) (string, bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", false
	}
	if strings.Contains(strings.ToLower(trimmed), cancellationMarker) {
		return "", false
	}

	match := orderReferencePattern.FindStringSubmatch(trimmed)
	if match == nil {
		return "", false
	}

	return strings.ToUpper(match[1]), true
}
