// Package hashtag builds the hashtag line attached to alert and report posts.
package hashtag

import (
	"strings"
	"unicode"

	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
)

// ForSOSAlert creates the hashtag text for an SOS alert.
//
// Order of hashtags:
// 1. #SOS
// 2. Alert status (#Active, #Acknowledged)
// 3. Place (district, state, country when known)
func ForSOSAlert(alert ledger.SOSAlert) string {
	tags := []string{"#SOS"}

	if alert.Status != "" {
		tags = append(tags, "#"+camelCase(string(alert.Status)))
	}

	tags = append(tags, locationTags(alert.Location)...)

	return formatHashtagText(deduplicateTags(tags))
}

// ForReport creates the hashtag text for a civic report.
//
// Order of hashtags:
// 1. Priority (#HighPriority) and #Emergency for emergency reports
// 2. Category words
// 3. Responsible department
// 4. Place
func ForReport(report ledger.Report) string {
	var tags []string

	if report.Priority != "" {
		tags = append(tags, "#"+camelCase(report.Priority)+"Priority")
	}
	if report.Status == ledger.StatusEmergency {
		tags = append(tags, "#Emergency")
	}

	tags = append(tags, categoryTags(report.Category)...)

	department := ledger.DepartmentFor(report.Category)
	if report.AssignedTo != nil && report.AssignedTo.Name != "" {
		department = report.AssignedTo.Name
	}
	if department != "" {
		tags = append(tags, "#"+camelCase(department))
	}

	tags = append(tags, extractPlaceTags(report.Location)...)

	return formatHashtagText(deduplicateTags(tags))
}

// deduplicateTags removes duplicate tags (case-insensitive) while preserving order.
func deduplicateTags(tags []string) []string {
	seen := make(map[string]bool)
	var uniqueTags []string

	for _, tag := range tags {
		if tag == "#" {
			continue
		}
		tagLower := strings.ToLower(tag)
		if !seen[tagLower] {
			uniqueTags = append(uniqueTags, tag)
			seen[tagLower] = true
		}
	}

	return uniqueTags
}

// formatHashtagText formats hashtags as comma-separated text with emoji prefix.
func formatHashtagText(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	return "🏷️ " + strings.Join(tags, ", ")
}

// camelCase converts text to CamelCase, dropping spaces and punctuation.
func camelCase(text string) string {
	var result strings.Builder

	for _, word := range strings.Fields(text) {
		result.WriteString(capitalizeFirst(word))
	}

	return result.String()
}

// capitalizeFirst strips punctuation from a word and upper-cases its first letter.
// The rest of the word keeps its case so acronyms survive.
func capitalizeFirst(word string) string {
	runes := make([]rune, 0, len(word))
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			runes = append(runes, r)
		}
	}
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
