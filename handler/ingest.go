package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pyama86/bellhop/domain/entity"
	"github.com/pyama86/bellhop/domain/repository"
)

type QueueClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Ingestor consumes CloudWatch alarm messages from SQS and turns alarm
// state changes into incidents. Delivery is at-least-once; creation is
// deduplicated by the store, so redelivered messages are harmless.
type Ingestor struct {
	client   QueueClient
	queueURL string
	repo     repository.Repository
}

func NewIngestor(client QueueClient, queueURL string, repo repository.Repository) *Ingestor {
	return &Ingestor{
		client:   client,
		queueURL: queueURL,
		repo:     repo,
	}
}

func (h *Ingestor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := h.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(h.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to receive alarm messages", slog.Any("error", err))
			time.Sleep(5 * time.Second)
			continue
		}

		// Each message is handled independently; one bad message must
		// not block the rest of the batch.
		for _, msg := range out.Messages {
			if err := h.handleMessage(ctx, aws.ToString(msg.Body)); err != nil {
				slog.Error("failed to handle alarm message", slog.Any("error", err))
				continue
			}
			_, err := h.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(h.queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			})
			if err != nil {
				slog.Error("failed to delete alarm message", slog.Any("error", err))
			}
		}
	}
}

func (h *Ingestor) handleMessage(ctx context.Context, body string) error {
	ev, err := DecodeAlarmEvent(body)
	if err != nil {
		// Malformed messages are dropped, not retried.
		slog.Warn("dropping undecodable alarm message", slog.Any("error", err))
		return nil
	}
	_, err = h.Ingest(ctx, ev)
	return err
}

// DecodeAlarmEvent unwraps the SNS envelope when present and decodes the
// CloudWatch alarm message.
func DecodeAlarmEvent(body string) (*entity.AlarmEvent, error) {
	var envelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		body = envelope.Message
	}

	var ev entity.AlarmEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("failed to decode alarm event: %w", err)
	}
	if ev.AlarmName == "" || ev.NewStateValue == "" {
		return nil, fmt.Errorf("alarm event is missing AlarmName or NewStateValue")
	}
	return &ev, nil
}

// Ingest runs the pipeline for one alarm event. Resolution misses drop
// the event with a diagnostic and return no error; only persistence
// failures propagate so the queue can redeliver.
func (h *Ingestor) Ingest(ctx context.Context, ev *entity.AlarmEvent) (*entity.Incident, error) {
	if ev.NewStateValue != entity.AlarmStateAlarm {
		// Only transitions into ALARM create incidents. Recovery is a
		// human action, never automatic.
		slog.Info("skipping alarm state change",
			slog.String("alarm", ev.AlarmName),
			slog.String("state", ev.NewStateValue))
		return nil, nil
	}

	team, err := h.repo.TeamByAccountID(ctx, ev.AWSAccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("no team owns account, dropping alarm",
				slog.String("alarm", ev.AlarmName),
				slog.String("account_id", ev.AWSAccountID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve team: %w", err)
	}

	now := timeNow()
	userID, err := h.repo.OnCallUserID(ctx, team.ID, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("nobody is on call, dropping alarm",
				slog.String("alarm", ev.AlarmName),
				slog.String("team_id", team.ID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve on-call: %w", err)
	}

	incident := entity.NewIncident(team.ID, ev, userID, now)
	if err := h.repo.CreateIncident(ctx, incident); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			slog.Info("duplicate alarm delivery, incident already exists",
				slog.String("incident_id", incident.IncidentID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to create incident: %w", err)
	}

	slog.Info("incident created",
		slog.String("incident_id", incident.IncidentID),
		slog.String("alarm", incident.AlarmName),
		slog.String("severity", string(incident.Severity)),
		slog.String("assigned_to", incident.AssignedTo))
	return incident, nil
}
