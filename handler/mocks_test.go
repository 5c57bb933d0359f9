package handler_test

import (
	"context"
	"sync"
	"time"

	"github.com/pyama86/bellhop/domain/entity"
	"github.com/pyama86/bellhop/domain/repository"
)

// ------------------------
// Mock repositories
// ------------------------

type mockIncidentRepo struct {
	mu        sync.Mutex
	data      map[string]*entity.Incident
	created   chan entity.Incident
	createErr error
}

func newMockIncidentRepo() *mockIncidentRepo {
	return &mockIncidentRepo{
		data:    map[string]*entity.Incident{},
		created: make(chan entity.Incident, 16),
	}
}

func (m *mockIncidentRepo) Created() <-chan entity.Incident {
	return m.created
}

func (m *mockIncidentRepo) CreateIncident(_ context.Context, incident *entity.Incident) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[incident.IncidentID]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *incident
	m.data[incident.IncidentID] = &cp
	select {
	case m.created <- cp:
	default:
	}
	return nil
}

func (m *mockIncidentRepo) GetIncident(_ context.Context, id string) (*entity.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.data[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *incident
	return &cp, nil
}

func (m *mockIncidentRepo) AckIncident(ctx context.Context, id, actor string, now time.Time) (*entity.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.data[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := incident.Acknowledge(actor, now); err != nil {
		return nil, repository.ErrConflict
	}
	cp := *incident
	return &cp, nil
}

func (m *mockIncidentRepo) ResolveIncident(ctx context.Context, id, actor string, now time.Time) (*entity.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.data[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := incident.Resolve(actor, now); err != nil {
		return nil, repository.ErrConflict
	}
	cp := *incident
	return &cp, nil
}

func (m *mockIncidentRepo) AdvanceEscalation(_ context.Context, id string, fromLevel int, target string, now time.Time) (*entity.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.data[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if incident.EscalationLevel != fromLevel {
		return nil, repository.ErrConflict
	}
	if err := incident.Escalate(target, now); err != nil {
		return nil, repository.ErrConflict
	}
	cp := *incident
	return &cp, nil
}

func (m *mockIncidentRepo) ActiveIncidents(_ context.Context) ([]entity.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var incidents []entity.Incident
	for _, incident := range m.data {
		if incident.Outstanding() {
			incidents = append(incidents, *incident)
		}
	}
	return incidents, nil
}

type mockDeviceRepo struct {
	mu      sync.Mutex
	devices []entity.Device
}

func (m *mockDeviceRepo) SaveDevice(_ context.Context, device *entity.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.devices {
		if d.UserID == device.UserID && d.DeviceToken == device.DeviceToken {
			m.devices[i] = *device
			return nil
		}
	}
	m.devices = append(m.devices, *device)
	return nil
}

func (m *mockDeviceRepo) DeleteDevice(_ context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.devices {
		if d.UserID == userID && d.DeviceToken == token {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockDeviceRepo) DeviceByToken(_ context.Context, userID, token string) (*entity.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.UserID == userID && d.DeviceToken == token {
			cp := d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockDeviceRepo) DevicesByUserID(_ context.Context, userID string) ([]entity.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var devices []entity.Device
	for _, d := range m.devices {
		if d.UserID == userID {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

type mockTeamRepo struct {
	teams []entity.Team
}

func (m *mockTeamRepo) Teams(_ context.Context) ([]entity.Team, error) {
	return m.teams, nil
}

func (m *mockTeamRepo) TeamByID(_ context.Context, id string) (*entity.Team, error) {
	for _, team := range m.teams {
		if team.ID == id {
			return &team, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockTeamRepo) TeamByAccountID(_ context.Context, accountID string) (*entity.Team, error) {
	for _, team := range m.teams {
		if team.OwnsAccount(accountID) {
			return &team, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockTeamRepo) AnnouncementChannels(_ context.Context) []string {
	return nil
}

type mockScheduleRepo struct {
	slots []entity.ScheduleSlot
}

func (m *mockScheduleRepo) OnCallUserID(_ context.Context, teamID string, at time.Time) (string, error) {
	for _, slot := range m.slots {
		if slot.TeamID == teamID && slot.Covers(at) {
			return slot.UserID, nil
		}
	}
	return "", repository.ErrNotFound
}

// ------------------------
// Fake notifier
// ------------------------

type fakeNotifier struct {
	mu      sync.Mutex
	results []repository.DeliveryResult
	calls   []entity.Device
	sent    []entity.Notification
}

func (f *fakeNotifier) Deliver(_ context.Context, device entity.Device, n entity.Notification) repository.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, device)
	f.sent = append(f.sent, n)
	if len(f.results) == 0 {
		return repository.DeliveryResult{Success: true}
	}
	result := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return result
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
