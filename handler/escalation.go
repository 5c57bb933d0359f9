package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pyama86/bellhop/domain/entity"
	"github.com/pyama86/bellhop/domain/repository"
)

// Escalator periodically walks the unacknowledged incidents and advances
// them through their team's escalation policy, re-notifying the step's
// target. Acking an incident stops its escalation.
type Escalator struct {
	repo       repository.Repository
	dispatcher *Dispatcher
	interval   time.Duration
}

func NewEscalator(repo repository.Repository, dispatcher *Dispatcher, interval time.Duration) *Escalator {
	return &Escalator{
		repo:       repo,
		dispatcher: dispatcher,
		interval:   interval,
	}
}

func (e *Escalator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

func (e *Escalator) Tick(ctx context.Context) {
	incidents, err := e.repo.ActiveIncidents(ctx)
	if err != nil {
		slog.Error("failed to list active incidents", slog.Any("error", err))
		return
	}

	now := timeNow()
	for _, incident := range incidents {
		if err := e.escalate(ctx, &incident, now); err != nil {
			slog.Error("failed to escalate incident",
				slog.String("incident_id", incident.IncidentID),
				slog.Any("error", err))
		}
	}
}

func (e *Escalator) escalate(ctx context.Context, incident *entity.Incident, now time.Time) error {
	if incident.State != entity.IncidentStateTriggered {
		return nil
	}

	team, err := e.repo.TeamByID(ctx, incident.TeamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if incident.EscalationLevel >= len(team.EscalationPolicy) {
		return nil
	}

	step := team.EscalationPolicy[incident.EscalationLevel]
	due := incident.TriggeredAt + int64(step.DelayMinutes)*time.Minute.Milliseconds()
	if now.UnixMilli() < due {
		return nil
	}

	target := step.Target
	if target == entity.EscalationTargetOnCall {
		target, err = e.repo.OnCallUserID(ctx, incident.TeamID, now)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				slog.Warn("nobody is on call for escalation",
					slog.String("incident_id", incident.IncidentID),
					slog.String("team_id", incident.TeamID))
				return nil
			}
			return err
		}
	}

	updated, err := e.repo.AdvanceEscalation(ctx, incident.IncidentID, incident.EscalationLevel, target, now)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Somebody acked, resolved or escalated it concurrently.
			return nil
		}
		return err
	}

	slog.Info("escalating incident",
		slog.String("incident_id", updated.IncidentID),
		slog.Int("level", updated.EscalationLevel),
		slog.String("target", target))
	e.dispatcher.NotifyUser(ctx, target, updated)
	return nil
}
