package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/guregu/dynamo/v2"
	"github.com/pyama86/bellhop/domain/entity"
)

var (
	incidentsTable = "incidents"
	devicesTable   = "devices"
)

func init() {
	if os.Getenv("DYNAMO_INCIDENTS_TABLE") != "" {
		incidentsTable = os.Getenv("DYNAMO_INCIDENTS_TABLE")
	}
	if os.Getenv("DYNAMO_DEVICES_TABLE") != "" {
		devicesTable = os.Getenv("DYNAMO_DEVICES_TABLE")
	}
}

func NewDynamoDBRepository() (*DynamoDBRepository, error) {
	var db *dynamo.DB
	if os.Getenv("DYNAMO_LOCAL") != "" {
		cfg, err := config.LoadDefaultConfig(context.TODO(),
			config.WithRegion("dummy"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "dummy")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}
		db = dynamo.New(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String("http://localhost:8000")
		},
		)

		err = setupDdbSchema(db)
		if err != nil {
			return nil, fmt.Errorf("failed to setup schema: %v", err)
		}
	} else {
		cfg, err := config.LoadDefaultConfig(context.TODO())
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}
		db = dynamo.New(cfg)
	}

	return &DynamoDBRepository{
		db:      db,
		created: make(chan entity.Incident, 128),
	}, nil
}

func setupDdbSchema(db *dynamo.DB) error {
	for table, model := range map[string]interface{}{
		incidentsTable: entity.Incident{},
		devicesTable:   entity.Device{},
	} {
		t := db.Table(table)
		_, err := t.Describe().Run(context.TODO())
		if err != nil {
			input := db.CreateTable(table, model).
				Provision(10, 10)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := input.Run(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

type DynamoDBRepository struct {
	db      *dynamo.DB
	created chan entity.Incident
}

// Created is the store change feed: one event per created incident,
// consumed by the dispatch driver.
func (r *DynamoDBRepository) Created() <-chan entity.Incident {
	return r.created
}

// CreateIncident is a conditional insert keyed on the incident id, so a
// redelivered alarm message cannot create a second incident.
func (r *DynamoDBRepository) CreateIncident(ctx context.Context, incident *entity.Incident) error {
	err := r.db.Table(incidentsTable).Put(incident).If("attribute_not_exists('incident_id')").Run(ctx)
	if err != nil {
		if dynamo.IsCondCheckFailed(err) {
			return ErrAlreadyExists
		}
		return err
	}

	select {
	case r.created <- *incident:
	default:
		slog.Warn("incident feed is full, dropping change event", slog.String("incident_id", incident.IncidentID))
	}
	return nil
}

func (r *DynamoDBRepository) GetIncident(ctx context.Context, id string) (*entity.Incident, error) {
	incident := &entity.Incident{}
	err := r.db.Table(incidentsTable).Get("incident_id", id).One(ctx, incident)
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return incident, nil
}

func (r *DynamoDBRepository) AckIncident(ctx context.Context, id, actor string, now time.Time) (*entity.Incident, error) {
	return r.transition(ctx, id, func(incident *entity.Incident) error {
		return incident.Acknowledge(actor, now)
	})
}

func (r *DynamoDBRepository) ResolveIncident(ctx context.Context, id, actor string, now time.Time) (*entity.Incident, error) {
	return r.transition(ctx, id, func(incident *entity.Incident) error {
		return incident.Resolve(actor, now)
	})
}

func (r *DynamoDBRepository) AdvanceEscalation(ctx context.Context, id string, fromLevel int, target string, now time.Time) (*entity.Incident, error) {
	incident, err := r.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.EscalationLevel != fromLevel {
		return nil, ErrConflict
	}
	priorState := incident.State
	if err := incident.Escalate(target, now); err != nil {
		return nil, ErrConflict
	}
	err = r.db.Table(incidentsTable).Put(incident).
		If("'state' = ? AND 'escalation_level' = ?", priorState, fromLevel).
		Run(ctx)
	if err != nil {
		if dynamo.IsCondCheckFailed(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return incident, nil
}

// transition applies a state-machine step with a conditional write on the
// prior state. Concurrent client retries lose the condition check instead
// of overwriting timestamps or duplicating timeline entries.
func (r *DynamoDBRepository) transition(ctx context.Context, id string, step func(*entity.Incident) error) (*entity.Incident, error) {
	incident, err := r.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	priorState := incident.State
	if err := step(incident); err != nil {
		return nil, ErrConflict
	}
	err = r.db.Table(incidentsTable).Put(incident).If("'state' = ?", priorState).Run(ctx)
	if err != nil {
		if dynamo.IsCondCheckFailed(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return incident, nil
}

func (r *DynamoDBRepository) ActiveIncidents(ctx context.Context) ([]entity.Incident, error) {
	var incidents []entity.Incident
	err := r.db.Table(incidentsTable).Scan().
		Filter("'state' <> ?", entity.IncidentStateResolved).
		All(ctx, &incidents)
	if err != nil {
		return nil, err
	}
	return incidents, nil
}

func (r *DynamoDBRepository) SaveDevice(ctx context.Context, device *entity.Device) error {
	return r.db.Table(devicesTable).Put(device).Run(ctx)
}

func (r *DynamoDBRepository) DeleteDevice(ctx context.Context, userID, token string) error {
	return r.db.Table(devicesTable).Delete("user_id", userID).Range("device_token", token).Run(ctx)
}

func (r *DynamoDBRepository) DeviceByToken(ctx context.Context, userID, token string) (*entity.Device, error) {
	device := &entity.Device{}
	err := r.db.Table(devicesTable).Get("user_id", userID).Range("device_token", dynamo.Equal, token).One(ctx, device)
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return device, nil
}

func (r *DynamoDBRepository) DevicesByUserID(ctx context.Context, userID string) ([]entity.Device, error) {
	var devices []entity.Device
	err := r.db.Table(devicesTable).Get("user_id", userID).All(ctx, &devices)
	if err != nil {
		return nil, err
	}
	return devices, nil
}
