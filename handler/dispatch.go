package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Songmu/retry"
	"github.com/pyama86/bellhop/domain/entity"
	"github.com/pyama86/bellhop/domain/repository"
)

// Dispatcher consumes the incident creation feed and pushes one
// notification per registered device of the assignee. Deliveries to
// distinct devices run concurrently and independently.
type Dispatcher struct {
	repo      repository.Repository
	notifier  repository.PushNotifier
	announcer repository.Announcer
}

func NewDispatcher(repo repository.Repository, notifier repository.PushNotifier, announcer repository.Announcer) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		notifier:  notifier,
		announcer: announcer,
	}
}

func (d *Dispatcher) Run(ctx context.Context, feed <-chan entity.Incident) {
	for {
		select {
		case <-ctx.Done():
			return
		case incident := <-feed:
			d.Dispatch(ctx, &incident)
		}
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, incident *entity.Incident) {
	if d.announcer != nil {
		if err := d.announcer.AnnounceIncident(incident); err != nil {
			slog.Error("failed to announce incident", slog.Any("error", err))
		}
	}
	d.NotifyUser(ctx, incident.AssignedTo, incident)
}

// NotifyUser pushes the incident to every device the user has registered.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID string, incident *entity.Incident) {
	devices, err := d.repo.DevicesByUserID(ctx, userID)
	if err != nil {
		slog.Error("failed to look up devices",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}
	if len(devices) == 0 {
		slog.Warn("no devices registered for responder",
			slog.String("user_id", userID),
			slog.String("incident_id", incident.IncidentID))
		return
	}

	n := NotificationForIncident(incident)

	var wg sync.WaitGroup
	for _, device := range devices {
		wg.Add(1)
		go func(device entity.Device) {
			defer wg.Done()
			d.deliver(ctx, device, n)
		}(device)
	}
	wg.Wait()
}

// deliver pushes to one device, redriving only retryable failures. The
// notifier itself never retries.
func (d *Dispatcher) deliver(ctx context.Context, device entity.Device, n entity.Notification) {
	var result repository.DeliveryResult
	err := retry.Retry(3, 2*time.Second, func() error {
		result = d.notifier.Deliver(ctx, device, n)
		if !result.Success && result.Retryable {
			return fmt.Errorf("retryable delivery failure: %s", result.Error)
		}
		return nil
	})
	if err != nil {
		slog.Error("push delivery failed after retries",
			slog.String("device_token", device.DeviceToken),
			slog.Any("error", err))
		return
	}
	if !result.Success {
		// Terminal rejection. An invalid token means the registration
		// should be cleaned up by an operator.
		slog.Error("push delivery rejected",
			slog.String("device_token", device.DeviceToken),
			slog.String("reason", result.Error))
		return
	}
	slog.Info("push delivered",
		slog.String("device_token", device.DeviceToken),
		slog.String("platform", string(device.Platform)))
}

// NotificationForIncident maps incident severity onto APNs interruption
// semantics.
func NotificationForIncident(incident *entity.Incident) entity.Notification {
	level := entity.InterruptionLevelActive
	sound := "default"
	if incident.Severity == entity.SeverityCritical {
		level = entity.InterruptionLevelCritical
		sound = "critical.caf"
	}

	body := "Alarm is firing"
	if len(incident.Timeline) > 0 && incident.Timeline[0].Note != "" {
		body = incident.Timeline[0].Note
	}

	return entity.Notification{
		Title:             fmt.Sprintf("[%s] %s", strings.ToUpper(string(incident.Severity)), incident.AlarmName),
		Body:              body,
		Sound:             sound,
		InterruptionLevel: level,
		Data: map[string]any{
			"incident_id": incident.IncidentID,
			"team_id":     incident.TeamID,
		},
	}
}
