// Package formatter renders ledger records as Mattermost message attachments.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
)

// Attachment colors
const (
	ColorCritical = "#FF0000" // Red 🔴
	ColorHigh     = "#FF9900" // Orange 🟠
	ColorMedium   = "#FFFF00" // Yellow 🟡
	ColorLow      = "#2E7D32" // Green 🟢
	ColorResolved = "#808080" // Gray ⚪
)

const footer = "Civic SOS"

// FormatSOSAlert converts an SOS alert into a SlackAttachment. Active alerts are red and
// acknowledged ones orange.
func FormatSOSAlert(alert ledger.SOSAlert) *model.SlackAttachment {
	attachment := &model.SlackAttachment{
		Text:     fmt.Sprintf("#### 🚨 SOS from %s", displayName(alert.User.Name)),
		Color:    ColorCritical,
		ThumbURL: alert.User.ProfilePicture,
		Footer:   fmt.Sprintf("%s | %s", footer, alert.Status),
	}
	if alert.Status == ledger.AlertAcknowledged {
		attachment.Color = ColorHigh
	}

	fields := []*model.SlackAttachmentField{
		{
			Title: "Time",
			Value: formatTime(alert.Timestamp),
			Short: true,
		},
		{
			Title: "Location",
			Value: formatLocation(alert.Location),
			Short: true,
		},
	}

	if alert.User.Phone != "" {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Phone",
			Value: alert.User.Phone,
			Short: true,
		})
	}

	fields = append(fields, &model.SlackAttachmentField{
		Title: "Map",
		Value: mapLink(alert.Location.Coords),
		Short: true,
	})

	if alert.RecordedVideo != "" {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Recorded Video",
			Value: fmt.Sprintf("[Watch](%s)", alert.RecordedVideo),
			Short: false,
		})
	}

	attachment.Fields = fields
	return attachment
}

// FormatReport converts a civic report into a SlackAttachment colored by priority.
// Emergency reports are always red and resolved ones gray.
func FormatReport(report ledger.Report) *model.SlackAttachment {
	attachment := &model.SlackAttachment{
		Text:     fmt.Sprintf("#### %s %s", getPriorityEmoji(report), report.Title),
		Color:    getPriorityColor(report),
		ImageURL: report.Photo,
		Footer:   fmt.Sprintf("%s | %s", footer, report.ID),
	}

	fields := []*model.SlackAttachmentField{
		{
			Title: "Submitted",
			Value: formatTime(report.Date),
			Short: true,
		},
		{
			Title: "Location",
			Value: report.Location,
			Short: true,
		},
		{
			Title: "Category",
			Value: report.Category,
			Short: true,
		},
		{
			Title: "Priority",
			Value: report.Priority,
			Short: true,
		},
		{
			Title: "Status",
			Value: string(report.Status),
			Short: true,
		},
	}

	department := "Unassigned"
	if report.AssignedTo != nil && report.AssignedTo.Name != "" {
		department = report.AssignedTo.Name
	}
	fields = append(fields, &model.SlackAttachmentField{
		Title: "Assigned To",
		Value: department,
		Short: true,
	})

	if report.Description != "" {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Description",
			Value: truncateText(report.Description, 500),
			Short: false,
		})
	}

	if report.Video != "" {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Video",
			Value: fmt.Sprintf("[Watch](%s)", report.Video),
			Short: false,
		})
	}

	attachment.Fields = fields
	return attachment
}

func getPriorityColor(report ledger.Report) string {
	if report.Status == ledger.StatusEmergency {
		return ColorCritical
	}
	if report.Status == ledger.StatusResolved {
		return ColorResolved
	}

	switch strings.ToLower(report.Priority) {
	case "critical":
		return ColorCritical
	case "high":
		return ColorHigh
	case "medium":
		return ColorMedium
	default:
		return ColorLow
	}
}

func getPriorityEmoji(report ledger.Report) string {
	switch getPriorityColor(report) {
	case ColorCritical:
		return "🔴"
	case ColorHigh:
		return "🟠"
	case ColorMedium:
		return "🟡"
	case ColorResolved:
		return "⚪"
	default:
		return "🟢"
	}
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Unknown reporter"
	}
	return name
}

// formatTime formats a time.Time to a readable string
func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 MST")
}

// formatLocation joins the address with the coordinates unless the address already is them.
func formatLocation(loc ledger.Location) string {
	coords := loc.Coords.String()
	if loc.Address == "" || loc.Address == coords {
		return coords
	}
	return fmt.Sprintf("%s (%s)", loc.Address, coords)
}

func mapLink(c ledger.Coords) string {
	return fmt.Sprintf("[Open map](https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f#map=17/%.6f/%.6f)", c.Lat, c.Lng, c.Lat, c.Lng)
}

// truncateText truncates text to maxLen runes, adding "..." if truncated
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
