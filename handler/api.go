package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pyama86/bellhop/domain/entity"
	"github.com/pyama86/bellhop/domain/repository"
)

// userIDHeader carries the authenticated user identity resolved by the
// gateway in front of this service.
const userIDHeader = "X-User-ID"

type APIHandler struct {
	repo     repository.Repository
	notifier repository.PushNotifier
	exporter repository.ReportExporter
}

func NewAPIHandler(repo repository.Repository, notifier repository.PushNotifier, exporter repository.ReportExporter) *APIHandler {
	return &APIHandler{
		repo:     repo,
		notifier: notifier,
		exporter: exporter,
	}
}

func (a *APIHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/incidents", a.listIncidents)
		r.Get("/incidents/{incidentID}", a.getIncident)
		r.Post("/incidents/{incidentID}/ack", a.ackIncident)
		r.Post("/incidents/{incidentID}/resolve", a.resolveIncident)

		r.Post("/devices", a.registerDevice)
		r.Delete("/devices", a.unregisterDevice)
		r.Post("/devices/test", a.sendTestPush)
	})
	return r
}

func (a *APIHandler) listIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := a.repo.ActiveIncidents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	if incidents == nil {
		incidents = []entity.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (a *APIHandler) getIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := a.repo.GetIncident(r.Context(), chi.URLParam(r, "incidentID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (a *APIHandler) ackIncident(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(userIDHeader)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing "+userIDHeader+" header")
		return
	}

	incident, err := a.repo.AckIncident(r.Context(), chi.URLParam(r, "incidentID"), actor, timeNow())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (a *APIHandler) resolveIncident(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(userIDHeader)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing "+userIDHeader+" header")
		return
	}

	incident, err := a.repo.ResolveIncident(r.Context(), chi.URLParam(r, "incidentID"), actor, timeNow())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if a.exporter != nil {
		// Report export must never fail or delay the resolve.
		go func(incident entity.Incident) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			title := "Incident report: " + incident.AlarmName
			if err := a.exporter.ExportIncidentReport(ctx, title, IncidentReportMarkdown(&incident)); err != nil {
				slog.Error("failed to export incident report",
					slog.String("incident_id", incident.IncidentID),
					slog.Any("error", err))
			}
		}(*incident)
	}

	writeJSON(w, http.StatusOK, incident)
}

type deviceRequest struct {
	UserID      string `json:"user_id"`
	DeviceToken string `json:"device_token"`
	Platform    string `json:"platform"`
	Sandbox     bool   `json:"sandbox"`
}

func (a *APIHandler) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.DeviceToken == "" {
		writeError(w, http.StatusBadRequest, "user_id and device_token are required")
		return
	}
	platform := entity.Platform(req.Platform)
	if !platform.Valid() {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	device := &entity.Device{
		UserID:      req.UserID,
		DeviceToken: req.DeviceToken,
		Platform:    platform,
		Sandbox:     req.Sandbox,
		CreatedAt:   timeNow(),
	}
	if err := a.repo.SaveDevice(r.Context(), device); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save device")
		return
	}
	writeJSON(w, http.StatusCreated, device)
}

func (a *APIHandler) unregisterDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.DeviceToken == "" {
		writeError(w, http.StatusBadRequest, "user_id and device_token are required")
		return
	}
	if err := a.repo.DeleteDevice(r.Context(), req.UserID, req.DeviceToken); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *APIHandler) sendTestPush(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	device, err := a.repo.DeviceByToken(r.Context(), req.UserID, req.DeviceToken)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	result := a.notifier.Deliver(r.Context(), *device, entity.Notification{
		Title:             "Test notification",
		Body:              "Push delivery is working.",
		Sound:             "default",
		InterruptionLevel: entity.InterruptionLevelActive,
	})
	writeJSON(w, http.StatusOK, result)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "incident not found")
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "incident is not in the expected state")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
