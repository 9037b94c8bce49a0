package hashtag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
)

func TestForSOSAlert(t *testing.T) {
	tests := []struct {
		name     string
		alert    ledger.SOSAlert
		expected string
	}{
		{
			name: "structured location",
			alert: ledger.SOSAlert{
				Status: ledger.AlertActive,
				Location: ledger.Location{
					Address:  "12 Main Road, Anna Nagar",
					District: "Chennai",
					State:    "TN",
					Country:  "India",
				},
			},
			expected: "🏷️ #SOS, #Active, #Chennai, #TamilNadu, #India",
		},
		{
			name: "address only",
			alert: ledger.SOSAlert{
				Status:   ledger.AlertAcknowledged,
				Location: ledger.Location{Address: "Koramangala, Bengaluru"},
			},
			expected: "🏷️ #SOS, #Acknowledged, #Koramangala, #Bengaluru",
		},
		{
			name: "coordinates only",
			alert: ledger.SOSAlert{
				Status:   ledger.AlertActive,
				Location: ledger.Location{Address: "13.0850, 80.2100"},
			},
			expected: "🏷️ #SOS, #Active",
		},
		{
			name:     "no status",
			alert:    ledger.SOSAlert{},
			expected: "🏷️ #SOS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ForSOSAlert(tt.alert))
		})
	}
}

func TestForReport(t *testing.T) {
	t.Run("full report", func(t *testing.T) {
		report := ledger.Report{
			Category: "Pothole / Road Damage",
			Priority: "High",
			Status:   ledger.StatusUnderReview,
			Location: "Velachery, Chennai",
		}
		assert.Equal(t, "🏷️ #HighPriority, #Pothole, #Road, #Damage, #PublicWorks, #Velachery, #Chennai", ForReport(report))
	})

	t.Run("emergency", func(t *testing.T) {
		report := ledger.Report{
			Category: "Transformer Sparks",
			Priority: "Critical",
			Status:   ledger.StatusEmergency,
		}
		assert.Equal(t, "🏷️ #CriticalPriority, #Emergency, #Transformer, #Sparks, #Electricity", ForReport(report))
	})

	t.Run("assignment overrides department", func(t *testing.T) {
		report := ledger.Report{
			Category:   "Garbage Dump",
			AssignedTo: &ledger.Assignment{Name: "Ward Office"},
		}
		assert.Equal(t, "🏷️ #Garbage, #Dump, #WardOffice", ForReport(report))
	})

	t.Run("unknown category", func(t *testing.T) {
		report := ledger.Report{Category: "Lost Cat"}
		assert.Equal(t, "🏷️ #Lost, #Cat", ForReport(report))
	})

	t.Run("empty report", func(t *testing.T) {
		assert.Equal(t, "", ForReport(ledger.Report{}))
	})
}

func TestCategoryTags(t *testing.T) {
	tests := []struct {
		category string
		expected []string
	}{
		{"Garbage Dump", []string{"#Garbage", "#Dump"}},
		{"Pothole / Road Damage", []string{"#Pothole", "#Road", "#Damage"}},
		{"Water and Sewage", []string{"#Water", "#Sewage", "#WaterAndSewage"}},
		{"Health - Hospital Hygiene", []string{"#Health", "#Hospital", "#Hygiene"}},
		{"Mid-day Meal", []string{"#Midday", "#Meal"}},
		{"Fires and Floods and Storms", []string{"#Fires", "#Floods", "#Storms"}},
		{"  ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			assert.Equal(t, tt.expected, categoryTags(tt.category))
		})
	}
}

func TestExtractPlaceTags(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		expected []string
	}{
		{"empty", "", nil},
		{"single city", "Chennai", []string{"#Chennai"}},
		{"single country code", "IN", []string{"#India"}},
		{"neighbourhood and city", "Anna Nagar, Chennai", []string{"#AnnaNagar", "#Chennai"}},
		{"ambiguous state code is skipped", "Chennai, TN", []string{"#Chennai"}},
		{"country code in second place", "Mumbai, IN", []string{"#Mumbai", "#India"}},
		{"country name in second place", "Delhi, India", []string{"#Delhi", "#India"}},
		{"state code with PIN", "Bandra, Mumbai, MH 400050, India", []string{"#Mumbai", "#Maharashtra", "#India"}},
		{"street number dropped", "12 Link Road, Bandra, Mumbai, MH, India", []string{"#Mumbai", "#Maharashtra", "#India"}},
		{"state code outside India is kept", "Austin, TX, USA", []string{"#Austin", "#TX", "#UnitedStates"}},
		{"coordinates", "28.6304, 77.2177", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractPlaceTags(tt.address))
		})
	}
}

func TestDeduplicateTags(t *testing.T) {
	tags := []string{"#Water", "#water", "#Leak", "#WATER", "#Leak"}
	assert.Equal(t, []string{"#Water", "#Leak"}, deduplicateTags(tags))
}

func TestCamelCase(t *testing.T) {
	assert.Equal(t, "TamilNadu", camelCase("Tamil Nadu"))
	assert.Equal(t, "PublicWorks", camelCase("public works"))
	assert.Equal(t, "TNagar", camelCase("T. Nagar"))
	assert.Equal(t, "", camelCase(""))
}
