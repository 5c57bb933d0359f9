package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pyama86/bellhop/domain/entity"
)

var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrAlreadyExists = fmt.Errorf("already exists")
	ErrConflict      = fmt.Errorf("state conflict")
	ErrNotConfigured = fmt.Errorf("APNs not configured")
)

type IncidentRepository interface {
	CreateIncident(context.Context, *entity.Incident) error
	GetIncident(context.Context, string) (*entity.Incident, error)
	AckIncident(ctx context.Context, id, actor string, now time.Time) (*entity.Incident, error)
	ResolveIncident(ctx context.Context, id, actor string, now time.Time) (*entity.Incident, error)
	AdvanceEscalation(ctx context.Context, id string, fromLevel int, target string, now time.Time) (*entity.Incident, error)
	ActiveIncidents(context.Context) ([]entity.Incident, error)
}

type DeviceRepository interface {
	SaveDevice(context.Context, *entity.Device) error
	DeleteDevice(ctx context.Context, userID, token string) error
	DeviceByToken(ctx context.Context, userID, token string) (*entity.Device, error)
	DevicesByUserID(ctx context.Context, userID string) ([]entity.Device, error)
}

type TeamRepository interface {
	Teams(context.Context) ([]entity.Team, error)
	TeamByID(context.Context, string) (*entity.Team, error)
	TeamByAccountID(context.Context, string) (*entity.Team, error)
	AnnouncementChannels(context.Context) []string
}

type ScheduleRepository interface {
	OnCallUserID(ctx context.Context, teamID string, at time.Time) (string, error)
}

// DeliveryResult classifies one push delivery. Retryable failures are safe
// for the caller to redrive; terminal ones are not.
type DeliveryResult struct {
	Success   bool
	Retryable bool
	Error     string
}

type PushNotifier interface {
	Deliver(ctx context.Context, device entity.Device, n entity.Notification) DeliveryResult
}

type Announcer interface {
	AnnounceIncident(incident *entity.Incident) error
}

type ReportExporter interface {
	ExportIncidentReport(ctx context.Context, title, markdown string) error
}

type Repository interface {
	IncidentRepository
	DeviceRepository
	TeamRepository
	ScheduleRepository
}

type RepositoryFacade struct {
	IncidentRepository
	DeviceRepository
	TeamRepository
	ScheduleRepository
}

func NewRepository(incidentRepository IncidentRepository, deviceRepository DeviceRepository, teamRepository TeamRepository, scheduleRepository ScheduleRepository) Repository {
	return RepositoryFacade{
		IncidentRepository: incidentRepository,
		DeviceRepository:   deviceRepository,
		TeamRepository:     teamRepository,
		ScheduleRepository: scheduleRepository,
	}
}
