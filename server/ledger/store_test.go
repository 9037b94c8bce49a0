package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-civicsos/server/clock"
	"github.com/mattermost/mattermost-plugin-civicsos/server/kvtest"
	"github.com/mattermost/mattermost-plugin-civicsos/server/logging"
)

var testStart = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *kvtest.Store, *clock.Fake) {
	t.Helper()
	kv := kvtest.New()
	clk := clock.NewFake(testStart)
	s := NewStore(kv, clk, logging.NewNop(), Options{})
	t.Cleanup(s.Close)
	return s, kv, clk
}

func testReporter() Reporter {
	return Reporter{
		UserID:         "user-1",
		Name:           "Asha Rao",
		Phone:          "+91 98400 00000",
		ProfilePicture: "https://example.com/asha.png",
		Location: Location{
			Address: "Anna Nagar, Chennai",
			Coords:  Coords{Lat: 13.085, Lng: 80.21},
			Country: "India",
		},
	}
}

func TestStore_CreateReport(t *testing.T) {
	t.Run("starts under review with a submission entry", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		report, err := s.CreateReport(ReportData{
			Title:    "Water Leakage at Adyar",
			Category: "Water Leakage",
			Coords:   Coords{Lat: 13.0012, Lng: 80.2565},
		}, testReporter(), "")
		require.NoError(t, err)

		assert.NotEmpty(t, report.ID)
		assert.Equal(t, StatusUnderReview, report.Status)
		assert.Equal(t, "Low", report.Priority)
		assert.Equal(t, "user-1", report.ReporterID)
		assert.Equal(t, "Anna Nagar, Chennai", report.Location)
		assert.Nil(t, report.AssignedTo)
		require.Len(t, report.Updates, 1)
		assert.Equal(t, "Report submitted", report.Updates[0].Message)
		assert.Equal(t, "Asha Rao", report.Updates[0].By)
	})

	t.Run("falls back to coordinates when the reporter has no address", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		report, err := s.CreateReport(ReportData{Coords: Coords{Lat: 12.5, Lng: 77.25}}, Reporter{Name: "anon"}, "")
		require.NoError(t, err)
		assert.Equal(t, "12.5000, 77.2500", report.Location)
	})

	t.Run("assigns a department", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		report, err := s.CreateReport(ReportData{Category: "Garbage Dump"}, testReporter(), "Public Works")
		require.NoError(t, err)
		require.NotNil(t, report.AssignedTo)
		assert.Equal(t, Assignment{ID: "public-works", Name: "Public Works", Role: "Department"}, *report.AssignedTo)

		unassigned, err := s.CreateReport(ReportData{Category: "Garbage Dump"}, testReporter(), "Unassigned")
		require.NoError(t, err)
		assert.Nil(t, unassigned.AssignedTo)
	})

	t.Run("lists newest first", func(t *testing.T) {
		s, _, clk := newTestStore(t)

		first, err := s.CreateReport(ReportData{Title: "first"}, testReporter(), "")
		require.NoError(t, err)
		clk.Advance(time.Minute)
		second, err := s.CreateReport(ReportData{Title: "second"}, testReporter(), "")
		require.NoError(t, err)

		reports, err := s.GetReports()
		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.Equal(t, second.ID, reports[0].ID)
		assert.Equal(t, first.ID, reports[1].ID)
	})

	t.Run("storage failure", func(t *testing.T) {
		s, kv, _ := newTestStore(t)
		kv.FailSet = reportKeyPrefix

		_, err := s.CreateReport(ReportData{Title: "x"}, testReporter(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create report")
	})
}

func TestStore_UpdateReport(t *testing.T) {
	t.Run("status change appends exactly one entry", func(t *testing.T) {
		s, _, clk := newTestStore(t)

		created, err := s.CreateReport(ReportData{Title: "Pothole"}, testReporter(), "")
		require.NoError(t, err)
		original := created.Updates

		clk.Advance(time.Hour)
		resolved := StatusResolved
		_, err = s.UpdateReport(created.ID, ReportPatch{Status: &resolved})
		require.NoError(t, err)

		got, err := s.GetReport(created.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusResolved, got.Status)
		require.Len(t, got.Updates, len(original)+1)
		for i := range original {
			assert.Equal(t, original[i].Message, got.Updates[i].Message)
			assert.Equal(t, original[i].By, got.Updates[i].By)
			assert.True(t, original[i].Timestamp.Equal(got.Updates[i].Timestamp))
		}
		last := got.Updates[len(got.Updates)-1]
		assert.Equal(t, "Status changed to Resolved", last.Message)
		assert.Equal(t, SystemActor, last.By)
		assert.True(t, testStart.Add(time.Hour).Equal(last.Timestamp))
	})

	t.Run("status in a mixed patch still logs once", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		created, err := s.CreateReport(ReportData{Title: "Pothole"}, testReporter(), "")
		require.NoError(t, err)

		emergency := StatusEmergency
		priority := "Critical"
		updated, err := s.UpdateReport(created.ID, ReportPatch{
			Status:     &emergency,
			Priority:   &priority,
			AssignedTo: &Assignment{ID: "off-1", Name: "Field Officer", Role: "Officer"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Critical", updated.Priority)
		assert.Equal(t, "Field Officer", updated.AssignedTo.Name)
		assert.Len(t, updated.Updates, 2)
	})

	t.Run("patch without status leaves the log alone", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		created, err := s.CreateReport(ReportData{Title: "Pothole"}, testReporter(), "")
		require.NoError(t, err)

		title := "Deep pothole"
		updated, err := s.UpdateReport(created.ID, ReportPatch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "Deep pothole", updated.Title)
		assert.Len(t, updated.Updates, 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		resolved := StatusResolved
		_, err := s.UpdateReport("missing", ReportPatch{Status: &resolved})
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetReport("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_SOSAlerts(t *testing.T) {
	t.Run("snapshots the reporter", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		reporter := testReporter()
		alert, err := s.CreateSOSAlert(reporter, "video-1")
		require.NoError(t, err)

		reporter.Name = "Changed"
		reporter.Location.Address = "Elsewhere"

		alerts, err := s.GetSOSAlerts()
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, alert.ID, alerts[0].ID)
		assert.Equal(t, "Asha Rao", alerts[0].User.Name)
		assert.Equal(t, "+91 98400 00000", alerts[0].User.Phone)
		assert.Equal(t, "Anna Nagar, Chennai", alerts[0].Location.Address)
		assert.Equal(t, AlertActive, alerts[0].Status)
		assert.Equal(t, "video-1", alerts[0].RecordedVideo)
		assert.True(t, testStart.Equal(alerts[0].Timestamp))
	})

	t.Run("address defaults to coordinates", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		alert, err := s.CreateSOSAlert(Reporter{Name: "n", Location: Location{Coords: Coords{Lat: 1, Lng: 2}}}, "")
		require.NoError(t, err)
		assert.Equal(t, "1.0000, 2.0000", alert.Location.Address)
	})

	t.Run("subscribers run before create returns", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		var received []SOSAlert
		unsubscribe := s.SubscribeToSOSAlerts(func(a SOSAlert) {
			received = append(received, a)
		})

		alert, err := s.CreateSOSAlert(testReporter(), "")
		require.NoError(t, err)
		require.Len(t, received, 1)
		assert.Equal(t, alert.ID, received[0].ID)

		unsubscribe()
		unsubscribe()

		_, err = s.CreateSOSAlert(testReporter(), "")
		require.NoError(t, err)
		assert.Len(t, received, 1)
	})

	t.Run("a panicking subscriber does not break others", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		calls := 0
		s.SubscribeToSOSAlerts(func(SOSAlert) { panic("boom") })
		s.SubscribeToSOSAlerts(func(SOSAlert) { calls++ })

		_, err := s.CreateSOSAlert(testReporter(), "")
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("write failure notifies nobody", func(t *testing.T) {
		s, kv, _ := newTestStore(t)
		kv.FailSet = sosKeyPrefix

		called := false
		s.SubscribeToSOSAlerts(func(SOSAlert) { called = true })

		_, err := s.CreateSOSAlert(testReporter(), "")
		require.Error(t, err)
		assert.False(t, called)
	})

	t.Run("index failure rolls back the record", func(t *testing.T) {
		s, kv, _ := newTestStore(t)
		kv.FailSet = sosIndexKey

		_, err := s.CreateSOSAlert(testReporter(), "")
		require.Error(t, err)
		for _, key := range kv.Keys() {
			assert.NotContains(t, key, sosKeyPrefix)
		}
	})

	t.Run("acknowledge and resolve", func(t *testing.T) {
		s, _, _ := newTestStore(t)

		alert, err := s.CreateSOSAlert(testReporter(), "")
		require.NoError(t, err)

		acknowledged := AlertAcknowledged
		updated, err := s.UpdateSOSAlert(alert.ID, SOSAlertPatch{Status: &acknowledged})
		require.NoError(t, err)
		assert.Equal(t, AlertAcknowledged, updated.Status)
		assert.Equal(t, alert.User, updated.User)

		deleted, err := s.DeleteSOSAlert(alert.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.DeleteSOSAlert(alert.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = s.UpdateSOSAlert(alert.ID, SOSAlertPatch{Status: &acknowledged})
		assert.ErrorIs(t, err, ErrNotFound)

		alerts, err := s.GetSOSAlerts()
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})
}
