package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
)

func testAlert() ledger.SOSAlert {
	return ledger.SOSAlert{
		ID:     "sos-1",
		UserID: "user-1",
		User: ledger.AlertUser{
			Name:           "Priya Raman",
			Phone:          "+91 98400 00000",
			ProfilePicture: "https://example.com/priya.png",
		},
		Timestamp: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		Location: ledger.Location{
			Address: "Anna Nagar, Chennai",
			Coords:  ledger.Coords{Lat: 13.085, Lng: 80.21},
		},
		Status: ledger.AlertActive,
	}
}

func TestFormatSOSAlert_Full(t *testing.T) {
	alert := testAlert()
	alert.RecordedVideo = "https://example.com/clip.mp4"

	attachment := FormatSOSAlert(alert)

	assert.Equal(t, "#### 🚨 SOS from Priya Raman", attachment.Text)
	assert.Equal(t, ColorCritical, attachment.Color)
	assert.Equal(t, "https://example.com/priya.png", attachment.ThumbURL)
	assert.Equal(t, "Civic SOS | Active", attachment.Footer)

	require.Len(t, attachment.Fields, 5)

	assert.Equal(t, "Time", attachment.Fields[0].Title)
	assert.Equal(t, "2025-03-01 09:30:00 UTC", attachment.Fields[0].Value)
	assert.Equal(t, model.SlackCompatibleBool(true), attachment.Fields[0].Short)

	assert.Equal(t, "Location", attachment.Fields[1].Title)
	assert.Equal(t, "Anna Nagar, Chennai (13.0850, 80.2100)", attachment.Fields[1].Value)

	assert.Equal(t, "Phone", attachment.Fields[2].Title)
	assert.Equal(t, "+91 98400 00000", attachment.Fields[2].Value)

	assert.Equal(t, "Map", attachment.Fields[3].Title)
	assert.Contains(t, attachment.Fields[3].Value, "mlat=13.085000&mlon=80.210000")

	assert.Equal(t, "Recorded Video", attachment.Fields[4].Title)
	assert.Equal(t, "[Watch](https://example.com/clip.mp4)", attachment.Fields[4].Value)
	assert.Equal(t, model.SlackCompatibleBool(false), attachment.Fields[4].Short)
}

func TestFormatSOSAlert_Minimal(t *testing.T) {
	alert := ledger.SOSAlert{
		Status: ledger.AlertAcknowledged,
		Location: ledger.Location{
			Address: "12.9800, 80.2200",
			Coords:  ledger.Coords{Lat: 12.98, Lng: 80.22},
		},
	}

	attachment := FormatSOSAlert(alert)

	assert.Equal(t, "#### 🚨 SOS from Unknown reporter", attachment.Text)
	assert.Equal(t, ColorHigh, attachment.Color)
	require.Len(t, attachment.Fields, 3)
	assert.Equal(t, "12.9800, 80.2200", attachment.Fields[1].Value, "an address equal to the coordinates is not repeated")
	assert.Equal(t, "Map", attachment.Fields[2].Title)
}

func TestFormatReport(t *testing.T) {
	report := ledger.Report{
		ID:          "report-1",
		Title:       "Water Leakage at Adyar",
		Category:    "Water Leakage",
		Description: "Main pipe burst near the bus stop.",
		Status:      ledger.StatusUnderReview,
		Priority:    "High",
		Date:        time.Date(2025, 3, 2, 7, 0, 0, 0, time.UTC),
		Location:    "Adyar, Chennai",
		Photo:       "https://example.com/leak.jpg",
		Video:       "https://example.com/leak.mp4",
		AssignedTo:  &ledger.Assignment{ID: "water", Name: "Water", Role: "Department"},
	}

	attachment := FormatReport(report)

	assert.Equal(t, "#### 🟠 Water Leakage at Adyar", attachment.Text)
	assert.Equal(t, ColorHigh, attachment.Color)
	assert.Equal(t, "https://example.com/leak.jpg", attachment.ImageURL)
	assert.Equal(t, "Civic SOS | report-1", attachment.Footer)

	titles := make([]string, 0, len(attachment.Fields))
	for _, f := range attachment.Fields {
		titles = append(titles, f.Title)
	}
	assert.Equal(t, []string{"Submitted", "Location", "Category", "Priority", "Status", "Assigned To", "Description", "Video"}, titles)
	assert.Equal(t, "2025-03-02 07:00:00 UTC", attachment.Fields[0].Value)
	assert.Equal(t, "Under Review", attachment.Fields[4].Value)
	assert.Equal(t, "Water", attachment.Fields[5].Value)
}

func TestFormatReport_Unassigned(t *testing.T) {
	attachment := FormatReport(ledger.Report{Title: "Lost Cat", Priority: "Low"})

	require.Len(t, attachment.Fields, 6)
	assert.Equal(t, "Unassigned", attachment.Fields[5].Value)
	assert.Empty(t, attachment.ImageURL)
}

func TestGetPriorityColor(t *testing.T) {
	tests := []struct {
		name     string
		priority string
		status   ledger.ReportStatus
		color    string
		emoji    string
	}{
		{"critical", "Critical", ledger.StatusUnderReview, ColorCritical, "🔴"},
		{"high", "high", ledger.StatusUnderReview, ColorHigh, "🟠"},
		{"medium", "Medium", ledger.StatusUnderReview, ColorMedium, "🟡"},
		{"low", "Low", ledger.StatusUnderReview, ColorLow, "🟢"},
		{"unknown priority", "", ledger.StatusUnderReview, ColorLow, "🟢"},
		{"emergency overrides priority", "Low", ledger.StatusEmergency, ColorCritical, "🔴"},
		{"resolved is gray", "Critical", ledger.StatusResolved, ColorResolved, "⚪"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ledger.Report{Priority: tt.priority, Status: tt.status}
			assert.Equal(t, tt.color, getPriorityColor(report))
			assert.Equal(t, tt.emoji, getPriorityEmoji(report))
		})
	}
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 10))
	assert.Equal(t, strings.Repeat("a", 10)+"...", truncateText(strings.Repeat("a", 20), 10))
	assert.Equal(t, "नमस...", truncateText("नमस्ते", 3))
}
