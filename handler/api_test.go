package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyama86/bellhop/domain/entity"
	"github.com/pyama86/bellhop/domain/repository"
	"github.com/pyama86/bellhop/handler"
)

type recordingExporter struct {
	titles chan string
}

func (r *recordingExporter) ExportIncidentReport(_ context.Context, title, markdown string) error {
	r.titles <- title
	return nil
}

func newTestAPI(incidents *mockIncidentRepo, devices *mockDeviceRepo, notifier repository.PushNotifier, exporter repository.ReportExporter) http.Handler {
	repo := repository.NewRepository(incidents, devices, &mockTeamRepo{}, &mockScheduleRepo{})
	return handler.NewAPIHandler(repo, notifier, exporter).Router()
}

func seedIncident(t *testing.T, incidents *mockIncidentRepo) *entity.Incident {
	t.Helper()
	incident := testIncident(entity.SeverityCritical)
	require.NoError(t, incidents.CreateIncident(context.Background(), incident))
	return incident
}

func TestAckEndpoint(t *testing.T) {
	incidents := newMockIncidentRepo()
	incident := seedIncident(t, incidents)
	api := newTestAPI(incidents, &mockDeviceRepo{}, &fakeNotifier{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/"+incident.IncidentID+"/ack", nil)
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got entity.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, entity.IncidentStateAcked, got.State)
	assert.NotZero(t, got.AckedAt)

	// second ack conflicts
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAckEndpointRequiresActor(t *testing.T) {
	incidents := newMockIncidentRepo()
	incident := seedIncident(t, incidents)
	api := newTestAPI(incidents, &mockDeviceRepo{}, &fakeNotifier{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/"+incident.IncidentID+"/ack", nil)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAckEndpointNotFound(t *testing.T) {
	api := newTestAPI(newMockIncidentRepo(), &mockDeviceRepo{}, &fakeNotifier{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/nope/ack", nil)
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveEndpointExportsReport(t *testing.T) {
	incidents := newMockIncidentRepo()
	incident := seedIncident(t, incidents)
	exporter := &recordingExporter{titles: make(chan string, 1)}
	api := newTestAPI(incidents, &mockDeviceRepo{}, &fakeNotifier{}, exporter)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/"+incident.IncidentID+"/resolve", nil)
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got entity.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, entity.IncidentStateResolved, got.State)

	select {
	case title := <-exporter.titles:
		assert.Contains(t, title, incident.AlarmName)
	case <-time.After(time.Second):
		t.Fatal("expected a report export")
	}
}

func TestDeviceRegistration(t *testing.T) {
	devices := &mockDeviceRepo{}
	api := newTestAPI(newMockIncidentRepo(), devices, &fakeNotifier{}, nil)

	body := `{"user_id":"alice","device_token":"tok-1","platform":"ios","sandbox":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", strings.NewReader(body))
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	saved, err := devices.DeviceByToken(context.Background(), "alice", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, entity.PlatformIOS, saved.Platform)
	assert.True(t, saved.Sandbox)

	// unknown platform is rejected
	req = httptest.NewRequest(http.MethodPost, "/api/v1/devices", strings.NewReader(`{"user_id":"alice","device_token":"tok-2","platform":"blackberry"}`))
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// unregister
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/devices", strings.NewReader(`{"user_id":"alice","device_token":"tok-1"}`))
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = devices.DeviceByToken(context.Background(), "alice", "tok-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendTestPush(t *testing.T) {
	devices := &mockDeviceRepo{devices: []entity.Device{
		{UserID: "alice", DeviceToken: "tok-1", Platform: entity.PlatformIOS},
	}}
	notifier := &fakeNotifier{}
	api := newTestAPI(newMockIncidentRepo(), devices, notifier, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/test", strings.NewReader(`{"user_id":"alice","device_token":"tok-1"}`))
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result repository.DeliveryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 1, notifier.callCount())
}

func TestListIncidents(t *testing.T) {
	incidents := newMockIncidentRepo()
	seedIncident(t, incidents)
	api := newTestAPI(incidents, &mockDeviceRepo{}, &fakeNotifier{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []entity.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 1)
}
