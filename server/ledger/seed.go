package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

type demoPlace struct {
	name     string
	lat, lng float64
}

var demoPlaces = []demoPlace{
	{"Anna Nagar, Chennai", 13.0850, 80.2100},
	{"T. Nagar, Chennai", 13.0400, 80.2300},
	{"Adyar, Chennai", 13.0012, 80.2565},
	{"Velachery, Chennai", 12.9800, 80.2200},
	{"Connaught Place, Delhi", 28.6304, 77.2177},
	{"Karol Bagh, Delhi", 28.6520, 77.1900},
	{"Indiranagar, Bengaluru", 12.9719, 77.6412},
	{"Koramangala, Bengaluru", 12.9279, 77.6271},
	{"Bandra, Mumbai", 19.0596, 72.8295},
}

// SeedDemoReports fills an empty ledger with n generated reports spread over the last two
// weeks. It does nothing if any report already exists. seed makes the output reproducible.
func (s *Store) SeedDemoReports(n int, seed int64) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex(reportIndexKey)
	if err != nil {
		return 0, err
	}
	if len(index) > 0 {
		return 0, nil
	}

	faker := gofakeit.New(seed)
	now := s.clock.Now()

	var categories []string
	for _, d := range departments {
		categories = append(categories, d.categories...)
	}

	reports := make([]Report, 0, n)
	for i := 0; i < n; i++ {
		category := faker.RandomString(categories)
		place := demoPlaces[faker.Number(0, len(demoPlaces)-1)]
		date := now.Add(-time.Duration(faker.Number(0, 13)) * 24 * time.Hour)

		report := Report{
			ID:          uuid.NewString(),
			Title:       fmt.Sprintf("%s at %s", category, strings.SplitN(place.name, ",", 2)[0]),
			Category:    category,
			Description: faker.Sentence(8),
			Status:      ReportStatus(faker.RandomString([]string{string(StatusUnderReview), string(StatusUnderReview), string(StatusResolved), string(StatusEmergency)})),
			Priority:    faker.RandomString([]string{"Medium", "High", "Critical"}),
			Date:        date,
			Location:    place.name,
			Coords: Coords{
				Lat: place.lat + faker.Float64Range(-0.02, 0.02),
				Lng: place.lng + faker.Float64Range(-0.02, 0.02),
			},
			Updates: []UpdateEntry{
				{Timestamp: date, Message: "Report received via App", By: SystemActor},
			},
		}
		if faker.Bool() {
			report.AssignedTo = &Assignment{ID: "off-1", Name: "Field Officer", Role: "Officer"}
		}
		reports = append(reports, report)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Date.After(reports[j].Date)
	})

	ids := make([]string, 0, len(reports))
	for _, r := range reports {
		if err := s.setJSON(reportKeyPrefix+r.ID, r); err != nil {
			return 0, fmt.Errorf("failed to seed demo report: %w", err)
		}
		ids = append(ids, r.ID)
	}
	if err := s.setJSON(reportIndexKey, ids); err != nil {
		return 0, fmt.Errorf("failed to seed demo report index: %w", err)
	}
	return len(reports), nil
}
