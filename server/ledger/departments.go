package ledger

import (
	"strings"
)

// Department is a derived aggregate of the open reports handled by one department.
type Department struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	OpenIssues      int    `json:"open_issues"`
	AvgResponseTime string `json:"avg_response_time"`
}

// Department load levels.
const (
	LoadNormal   = "Normal"
	LoadWarning  = "Warning"
	LoadCritical = "Critical"
)

const (
	warningOpenIssues  = 5
	criticalOpenIssues = 10
)

type departmentInfo struct {
	name            string
	avgResponseTime string
	categories      []string
	keywords        []string
}

var departments = []departmentInfo{
	{"Health", "2h", []string{"Hospital Hygiene", "Medicine Shortage", "Dengue Risk", "Staff Unavailability"}, []string{"health", "hospital", "medicine"}},
	{"Transport", "5h", []string{"Traffic Signal Issue", "Illegal Parking", "Public Transport Complaint", "Road Sign Damaged"}, []string{"traffic", "transport", "parking"}},
	{"Sanitation", "8h", []string{"Garbage Dump", "Waste Collection", "Street Cleaning", "Dead Animal"}, []string{"garbage", "waste"}},
	{"Water", "3h", []string{"Water Leakage", "No Water Supply", "Contaminated Water", "Low Water Pressure"}, []string{"water"}},
	{"Electricity", "4h", []string{"Streetlight Outage", "Power Outage", "Dangerous Wiring", "Transformer Sparks"}, []string{"power", "streetlight", "wiring"}},
	{"Housing", "6h", []string{"Illegal Construction", "Encroachment", "Building Safety"}, []string{"building", "construction"}},
	{"Safety", "1h", []string{"Suspicious Activity", "Noise Pollution", "Theft Report", "Harassment"}, []string{"safety", "theft"}},
	{"Public Works", "7h", []string{"Pothole / Road Damage", "Drainage Blockage", "Park Maintenance"}, []string{"road", "drainage", "pothole"}},
	{"Finance", "4h", []string{"Property Tax Issue", "Pension Delay"}, []string{"tax", "pension"}},
	{"Education", "5h", []string{"School Facility", "Teacher Absence", "Mid-day Meal", "Playground Safety"}, []string{"school", "teacher"}},
}

// DepartmentFor returns the department responsible for a report category, or "" if none is.
// Known categories map exactly. Other categories fall back to keyword matching.
func DepartmentFor(category string) string {
	for _, d := range departments {
		for _, c := range d.categories {
			if strings.EqualFold(c, category) {
				return d.name
			}
		}
	}

	lower := strings.ToLower(category)
	for _, d := range departments {
		for _, kw := range d.keywords {
			if strings.Contains(lower, kw) {
				return d.name
			}
		}
	}
	return ""
}

// GetDepartments recomputes each department's open (not Resolved) report count.
func (s *Store) GetDepartments() ([]Department, error) {
	reports, err := s.GetReports()
	if err != nil {
		return nil, err
	}

	open := make(map[string]int)
	for _, r := range reports {
		if r.Status == StatusResolved {
			continue
		}
		if name := DepartmentFor(r.Category); name != "" {
			open[name]++
		}
	}

	out := make([]Department, 0, len(departments))
	for _, d := range departments {
		count := open[d.name]
		out = append(out, Department{
			ID:              departmentID(d.name),
			Name:            d.name,
			Status:          loadLevel(count),
			OpenIssues:      count,
			AvgResponseTime: d.avgResponseTime,
		})
	}
	return out, nil
}

func loadLevel(openIssues int) string {
	switch {
	case openIssues >= criticalOpenIssues:
		return LoadCritical
	case openIssues >= warningOpenIssues:
		return LoadWarning
	default:
		return LoadNormal
	}
}

func departmentID(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
