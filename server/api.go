package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-civicsos/server/gesture"
	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
	"github.com/mattermost/mattermost-plugin-civicsos/server/livesync"
	"github.com/mattermost/mattermost-plugin-civicsos/server/notify"
	"github.com/mattermost/mattermost-plugin-civicsos/server/session"
	"github.com/mattermost/mattermost-plugin-civicsos/server/sos"
)

const userIDHeader = "Mattermost-User-ID"

// maxSamplesPerRequest bounds one batch of acceleration samples.
const maxSamplesPerRequest = 500

// maxRequestBytes bounds every JSON request body.
const maxRequestBytes = 1 << 20

// ServeHTTP handles HTTP requests for the plugin.
// The root URL is currently <siteUrl>/plugins/com.mattermost.plugin-civicsos/api/v1/.
func (p *Plugin) ServeHTTP(c *plugin.Context, w http.ResponseWriter, r *http.Request) {
	router := mux.NewRouter()

	// Middleware to require that the user is logged in
	router.Use(p.MattermostAuthorizationRequired)

	router.Handle("/metrics", p.requireSystemAdmin(p.metrics.Handler())).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	apiRouter.HandleFunc("/sessions", p.handleOpenSession).Methods(http.MethodPost)

	sessionRouter := apiRouter.PathPrefix("/sessions/{id}").Subrouter()
	sessionRouter.HandleFunc("", p.withSession(p.handleGetSession)).Methods(http.MethodGet)
	sessionRouter.HandleFunc("", p.withSession(p.handleCloseSession)).Methods(http.MethodDelete)
	sessionRouter.HandleFunc("/view", p.withSession(p.handleGetView)).Methods(http.MethodGet)
	sessionRouter.HandleFunc("/samples", p.withSession(p.handleSamples)).Methods(http.MethodPost)
	sessionRouter.HandleFunc("/transcripts", p.withSession(p.handleTranscript)).Methods(http.MethodPost)
	sessionRouter.HandleFunc("/recognition-errors", p.withSession(p.handleRecognitionError)).Methods(http.MethodPost)
	sessionRouter.HandleFunc("/location", p.withSession(p.handleLocation)).Methods(http.MethodPost)
	sessionRouter.HandleFunc("/confirm", p.withSession(p.handleConfirm)).Methods(http.MethodPost)
	sessionRouter.HandleFunc("/cancel", p.withSession(p.handleCancel)).Methods(http.MethodPost)
	sessionRouter.HandleFunc("/hold", p.withSession(p.handleHold)).Methods(http.MethodPost)
	sessionRouter.HandleFunc("/video", p.withSession(p.handleVideo)).Methods(http.MethodPost)

	apiRouter.HandleFunc("/settings", p.handleGetSettings).Methods(http.MethodGet)
	apiRouter.HandleFunc("/settings", p.handleSaveSettings).Methods(http.MethodPut)

	apiRouter.HandleFunc("/reports", p.handleGetReports).Methods(http.MethodGet)
	apiRouter.HandleFunc("/reports", p.handleCreateReport).Methods(http.MethodPost)
	apiRouter.Handle("/reports/{id}", p.requireOfficial(http.HandlerFunc(p.handleUpdateReport))).Methods(http.MethodPatch)

	apiRouter.HandleFunc("/sos", p.handleGetSOSAlerts).Methods(http.MethodGet)
	apiRouter.Handle("/sos/{id}/acknowledge", p.requireOfficial(http.HandlerFunc(p.handleAcknowledgeSOSAlert))).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sos/{id}", p.handleResolveSOSAlert).Methods(http.MethodDelete)

	apiRouter.HandleFunc("/dataflow", p.handleGetDataflow).Methods(http.MethodGet)
	apiRouter.HandleFunc("/dataflow", p.handleCreateDataflow).Methods(http.MethodPost)
	apiRouter.HandleFunc("/dataflow/mine", p.handleGetMyDataflow).Methods(http.MethodGet)

	apiRouter.HandleFunc("/departments", p.handleGetDepartments).Methods(http.MethodGet)

	router.ServeHTTP(w, r)
}

func (p *Plugin) MattermostAuthorizationRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		if userID == "" {
			http.Error(w, "Not authorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isOfficial reports whether the user may act as an official.
func (p *Plugin) isOfficial(userID string) bool {
	return p.API.HasPermissionTo(userID, model.PermissionManageSystem)
}

func (p *Plugin) requireOfficial(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.isOfficial(r.Header.Get(userIDHeader)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Plugin) requireSystemAdmin(next http.Handler) http.Handler {
	return p.requireOfficial(next)
}

// withSession resolves the {id} route variable to a session owned by the caller. Sessions of
// other users are reported as not found.
func (p *Plugin) withSession(handler func(http.ResponseWriter, *http.Request, *session.Client)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := p.registry.Get(mux.Vars(r)["id"])
		if client == nil || client.UserID() != r.Header.Get(userIDHeader) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		handler(w, r, client)
	}
}

type locationRequest struct {
	Address  string  `json:"address"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	District string  `json:"district,omitempty"`
	State    string  `json:"state,omitempty"`
	Country  string  `json:"country,omitempty"`
}

func (l locationRequest) toLocation() ledger.Location {
	return ledger.Location{
		Address:  strings.TrimSpace(l.Address),
		Coords:   ledger.Coords{Lat: l.Lat, Lng: l.Lng},
		District: l.District,
		State:    l.State,
		Country:  l.Country,
	}
}

type openSessionRequest struct {
	Role     livesync.Role   `json:"role"`
	Motion   bool            `json:"motion"`
	Speech   bool            `json:"speech"`
	Phone    string          `json:"phone,omitempty"`
	Location locationRequest `json:"location"`
}

func (p *Plugin) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	var req openSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = livesync.RoleCitizen
	}
	if !req.Role.Valid() {
		http.Error(w, fmt.Sprintf("Unknown role %q", req.Role), http.StatusBadRequest)
		return
	}
	if req.Role == livesync.RoleOfficial && !p.isOfficial(userID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	reporter, err := p.reporterFor(userID)
	if err != nil {
		p.API.LogError("Failed to load user", "user_id", userID, "error", err.Error())
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	reporter.Phone = req.Phone
	reporter.Location = req.Location.toLocation()

	settings, err := p.settings.Get(userID)
	if err != nil {
		p.API.LogWarn("Failed to load SOS settings, using defaults", "user_id", userID, "error", err.Error())
		settings = sos.DefaultSettings()
	}

	client, err := p.openSession(session.Config{
		ID:           uuid.NewString(),
		Role:         req.Role,
		Capabilities: session.Capabilities{Motion: req.Motion, Speech: req.Speech},
		Reporter:     reporter,
		Settings:     settings,
	})
	if err != nil {
		p.API.LogError("Failed to open session", "user_id", userID, "error", err.Error())
		http.Error(w, "Failed to open session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, client.State())
}

func (p *Plugin) handleGetSession(w http.ResponseWriter, _ *http.Request, client *session.Client) {
	writeJSON(w, http.StatusOK, client.State())
}

func (p *Plugin) handleCloseSession(w http.ResponseWriter, _ *http.Request, client *session.Client) {
	if err := p.registry.Unregister(client.GetID()); err != nil {
		p.API.LogWarn("Failed to close session", "session_id", client.GetID(), "error", err.Error())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) handleGetView(w http.ResponseWriter, _ *http.Request, client *session.Client) {
	writeJSON(w, http.StatusOK, client.Engine().View())
}

func (p *Plugin) handleSamples(w http.ResponseWriter, r *http.Request, client *session.Client) {
	var samples []gesture.Sample
	if !decodeJSON(w, r, &samples) {
		return
	}
	if len(samples) > maxSamplesPerRequest {
		http.Error(w, fmt.Sprintf("At most %d samples per request", maxSamplesPerRequest), http.StatusRequestEntityTooLarge)
		return
	}
	if err := validateSamples(samples); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for _, sample := range samples {
		if err := client.Controller().HandleSample(sample); err != nil {
			p.writeControllerError(w, client, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, client.Controller().Session())
}

// validateSamples requires every sample to carry a timestamp and the batch to be in time order.
func validateSamples(samples []gesture.Sample) error {
	for i, sample := range samples {
		if sample.Timestamp.IsZero() {
			return errors.Errorf("sample %d has no timestamp", i)
		}
		if i > 0 && sample.Timestamp.Before(samples[i-1].Timestamp) {
			return errors.Errorf("sample %d is older than the sample before it", i)
		}
	}
	return nil
}

type transcriptRequest struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type transcriptResponse struct {
	Matched bool        `json:"matched"`
	Session sos.Session `json:"session"`
}

func (p *Plugin) handleTranscript(w http.ResponseWriter, r *http.Request, client *session.Client) {
	var req transcriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	matched, err := client.Controller().HandleTranscript(req.Text)
	if err != nil {
		p.writeControllerError(w, client, err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Matched: matched, Session: client.Controller().Session()})
}

type recognitionErrorRequest struct {
	Kind string `json:"kind"`
}

func (p *Plugin) handleRecognitionError(w http.ResponseWriter, r *http.Request, client *session.Client) {
	var req recognitionErrorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Kind == "" {
		http.Error(w, "Missing error kind", http.StatusBadRequest)
		return
	}

	p.runControllerInput(w, client, func() error {
		return client.Controller().HandleRecognitionError(req.Kind)
	})
}

func (p *Plugin) handleLocation(w http.ResponseWriter, r *http.Request, client *session.Client) {
	var req locationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	client.UpdateLocation(req.toLocation())
	writeJSON(w, http.StatusOK, client.State())
}

func (p *Plugin) handleConfirm(w http.ResponseWriter, _ *http.Request, client *session.Client) {
	p.runControllerInput(w, client, client.Controller().Confirm)
}

func (p *Plugin) handleCancel(w http.ResponseWriter, _ *http.Request, client *session.Client) {
	p.runControllerInput(w, client, client.Controller().Cancel)
}

func (p *Plugin) handleHold(w http.ResponseWriter, _ *http.Request, client *session.Client) {
	p.runControllerInput(w, client, client.Controller().HoldCompleted)
}

type videoRequest struct {
	Ref string `json:"ref"`
}

func (p *Plugin) handleVideo(w http.ResponseWriter, r *http.Request, client *session.Client) {
	var req videoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p.runControllerInput(w, client, func() error {
		return client.Controller().AttachVideo(req.Ref)
	})
}

func (p *Plugin) runControllerInput(w http.ResponseWriter, client *session.Client, input func() error) {
	if err := input(); err != nil {
		p.writeControllerError(w, client, err)
		return
	}
	writeJSON(w, http.StatusOK, client.Controller().Session())
}

func (p *Plugin) writeControllerError(w http.ResponseWriter, client *session.Client, err error) {
	switch {
	case errors.Is(err, sos.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, sos.ErrClosed):
		http.Error(w, "Session closed", http.StatusGone)
	default:
		p.API.LogError("SOS controller input failed", "session_id", client.GetID(), "error", err.Error())
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (p *Plugin) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := p.settings.Get(r.Header.Get(userIDHeader))
	if err != nil {
		p.API.LogError("Failed to load SOS settings", "error", err.Error())
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (p *Plugin) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	var settings sos.Settings
	if !decodeJSON(w, r, &settings) {
		return
	}

	if err := p.settings.Save(userID, settings); err != nil {
		if errors.Is(err, sos.ErrPhraseTooShort) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p.API.LogError("Failed to save SOS settings", "user_id", userID, "error", err.Error())
		http.Error(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}

	p.applySettings(userID, settings)
	writeJSON(w, http.StatusOK, settings)
}

func (p *Plugin) handleGetReports(w http.ResponseWriter, _ *http.Request) {
	reports, err := p.ledger.GetReports()
	if err != nil {
		p.writeLedgerError(w, "get reports", err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

type createReportRequest struct {
	ledger.ReportData
	Location locationRequest `json:"location"`
}

func (p *Plugin) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	var req createReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Category) == "" {
		http.Error(w, "Title and category are required", http.StatusBadRequest)
		return
	}

	reporter, err := p.reporterFor(userID)
	if err != nil {
		p.API.LogError("Failed to load user", "user_id", userID, "error", err.Error())
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	reporter.Location = req.Location.toLocation()
	if req.Coords == (ledger.Coords{}) {
		req.Coords = reporter.Location.Coords
	}

	report, err := p.ledger.CreateReport(req.ReportData, reporter, ledger.DepartmentFor(req.Category))
	if err != nil {
		p.writeLedgerError(w, "create report", err)
		return
	}

	p.dispatcher.Dispatch(notify.Event{Kind: notify.KindReportCreated, Report: report})
	writeJSON(w, http.StatusCreated, report)
}

func (p *Plugin) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	var patch ledger.ReportPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.Status != nil && !patch.Status.Valid() {
		http.Error(w, fmt.Sprintf("Unknown status %q", *patch.Status), http.StatusBadRequest)
		return
	}

	report, err := p.ledger.UpdateReport(mux.Vars(r)["id"], patch)
	if err != nil {
		p.writeLedgerError(w, "update report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (p *Plugin) handleGetSOSAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts, err := p.ledger.GetSOSAlerts()
	if err != nil {
		p.writeLedgerError(w, "get SOS alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (p *Plugin) handleAcknowledgeSOSAlert(w http.ResponseWriter, r *http.Request) {
	status := ledger.AlertAcknowledged
	alert, err := p.ledger.UpdateSOSAlert(mux.Vars(r)["id"], ledger.SOSAlertPatch{Status: &status})
	if err != nil {
		p.writeLedgerError(w, "acknowledge SOS alert", err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// handleResolveSOSAlert deletes an alert. Officials may resolve any alert, citizens only
// their own.
func (p *Plugin) handleResolveSOSAlert(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	id := mux.Vars(r)["id"]

	if !p.isOfficial(userID) {
		alerts, err := p.ledger.GetSOSAlerts()
		if err != nil {
			p.writeLedgerError(w, "get SOS alerts", err)
			return
		}
		owned := false
		for _, alert := range alerts {
			if alert.ID == id && alert.UserID == userID {
				owned = true
				break
			}
		}
		if !owned {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	deleted, err := p.ledger.DeleteSOSAlert(id)
	if err != nil {
		p.writeLedgerError(w, "resolve SOS alert", err)
		return
	}
	if !deleted {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) handleGetDataflow(w http.ResponseWriter, _ *http.Request) {
	items, err := p.ledger.GetDataflowSubmissions()
	if err != nil {
		p.writeLedgerError(w, "get dataflow", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (p *Plugin) handleCreateDataflow(w http.ResponseWriter, r *http.Request) {
	var data ledger.DataflowData
	if !decodeJSON(w, r, &data) {
		return
	}
	if strings.TrimSpace(data.Service) == "" {
		http.Error(w, "Service is required", http.StatusBadRequest)
		return
	}

	user, appErr := p.API.GetUser(r.Header.Get(userIDHeader))
	if appErr != nil {
		p.API.LogError("Failed to load user", "error", appErr.Error())
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	data.User = ledger.DataflowUser{Name: displayName(user), Email: user.Email}

	item, err := p.ledger.CreateDataflowSubmission(data)
	if err != nil {
		p.writeLedgerError(w, "create dataflow submission", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (p *Plugin) handleGetMyDataflow(w http.ResponseWriter, r *http.Request) {
	user, appErr := p.API.GetUser(r.Header.Get(userIDHeader))
	if appErr != nil {
		p.API.LogError("Failed to load user", "error", appErr.Error())
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}

	items, err := p.ledger.GetUserDataflow(displayName(user))
	if err != nil {
		p.writeLedgerError(w, "get user dataflow", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (p *Plugin) handleGetDepartments(w http.ResponseWriter, _ *http.Request) {
	departments, err := p.ledger.GetDepartments()
	if err != nil {
		p.writeLedgerError(w, "get departments", err)
		return
	}
	writeJSON(w, http.StatusOK, departments)
}

func (p *Plugin) writeLedgerError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	p.API.LogError("Ledger operation failed", "operation", op, "error", err.Error())
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

// reporterFor builds the identity snapshot of a user. Location and phone come from the device.
func (p *Plugin) reporterFor(userID string) (ledger.Reporter, error) {
	user, appErr := p.API.GetUser(userID)
	if appErr != nil {
		return ledger.Reporter{}, errors.Wrap(appErr, "failed to get user")
	}

	return ledger.Reporter{
		UserID:         user.Id,
		Name:           displayName(user),
		ProfilePicture: fmt.Sprintf("/api/v4/users/%s/image", user.Id),
	}, nil
}

func displayName(user *model.User) string {
	return user.GetDisplayName(model.ShowFullName)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
