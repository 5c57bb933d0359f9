package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type IncidentState string

const (
	IncidentStateTriggered IncidentState = "triggered"
	IncidentStateAcked     IncidentState = "acked"
	IncidentStateResolved  IncidentState = "resolved"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

const (
	TimelineEventTriggered = "triggered"
	TimelineEventAcked     = "acked"
	TimelineEventResolved  = "resolved"
	TimelineEventEscalated = "escalated"
)

// ErrIllegalTransition is returned when an incident is asked to move
// backwards or to repeat a transition it has already made.
var ErrIllegalTransition = fmt.Errorf("illegal incident state transition")

// IncidentTTL is how long an incident stays in the store before DynamoDB
// reclaims it.
const IncidentTTL = 24 * time.Hour

type TimelineEntry struct {
	Timestamp int64  `json:"timestamp" dynamo:"timestamp"`
	Event     string `json:"event" dynamo:"event"`
	Actor     string `json:"actor" dynamo:"actor"`
	Note      string `json:"note,omitempty" dynamo:"note,omitempty"`
}

type Incident struct {
	IncidentID      string          `json:"incident_id" dynamo:"incident_id,hash"`
	TeamID          string          `json:"team_id" dynamo:"team_id"`
	AlarmName       string          `json:"alarm_name" dynamo:"alarm_name"`
	AlarmARN        string          `json:"alarm_arn" dynamo:"alarm_arn"`
	State           IncidentState   `json:"state" dynamo:"state"`
	Severity        Severity        `json:"severity" dynamo:"severity"`
	AssignedTo      string          `json:"assigned_to" dynamo:"assigned_to"`
	EscalationLevel int             `json:"escalation_level" dynamo:"escalation_level"`
	TriggeredAt     int64           `json:"triggered_at" dynamo:"triggered_at"`
	AckedAt         int64           `json:"acked_at,omitempty" dynamo:"acked_at,omitempty"`
	ResolvedAt      int64           `json:"resolved_at,omitempty" dynamo:"resolved_at,omitempty"`
	Timeline        []TimelineEntry `json:"timeline" dynamo:"timeline"`
	TTL             time.Time       `json:"ttl" dynamo:"ttl,unixtime"`
}

// NewIncident builds the initial triggered incident for an alarm event.
// The incident id is derived from the alarm identity and its state-change
// time so that redelivered alarm messages map onto the same incident.
func NewIncident(teamID string, ev *AlarmEvent, assignedTo string, now time.Time) *Incident {
	return &Incident{
		IncidentID:  IncidentIDFor(ev.AlarmARN, ev.StateChangeTime),
		TeamID:      teamID,
		AlarmName:   ev.AlarmName,
		AlarmARN:    ev.AlarmARN,
		State:       IncidentStateTriggered,
		Severity:    SeverityFromAlarmName(ev.AlarmName),
		AssignedTo:  assignedTo,
		TriggeredAt: now.UnixMilli(),
		Timeline: []TimelineEntry{
			{
				Timestamp: now.UnixMilli(),
				Event:     TimelineEventTriggered,
				Actor:     "cloudwatch",
				Note:      ev.NewStateReason,
			},
		},
		TTL: now.Add(IncidentTTL),
	}
}

// IncidentIDFor is the idempotency key for incident creation.
func IncidentIDFor(alarmARN, stateChangeTime string) string {
	sum := sha256.Sum256([]byte(alarmARN + "|" + stateChangeTime))
	return hex.EncodeToString(sum[:16])
}

// SeverityFromAlarmName derives a severity from alarm-name keywords.
// Critical keywords win over warning ones.
func SeverityFromAlarmName(name string) Severity {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "critical"), strings.Contains(n, "error"):
		return SeverityCritical
	case strings.Contains(n, "warning"), strings.Contains(n, "warn"):
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Acknowledge moves a triggered incident to acked. Repeating the
// transition, or acking a resolved incident, fails without touching the
// incident.
func (i *Incident) Acknowledge(actor string, now time.Time) error {
	if i.State != IncidentStateTriggered {
		return ErrIllegalTransition
	}
	i.State = IncidentStateAcked
	i.AckedAt = now.UnixMilli()
	i.appendTimeline(TimelineEventAcked, actor, "", now)
	return nil
}

// Resolve closes the incident. A prior ack is not required.
func (i *Incident) Resolve(actor string, now time.Time) error {
	if i.State == IncidentStateResolved {
		return ErrIllegalTransition
	}
	i.State = IncidentStateResolved
	i.ResolvedAt = now.UnixMilli()
	i.appendTimeline(TimelineEventResolved, actor, "", now)
	return nil
}

// Escalate advances the escalation level of a still-triggered incident.
func (i *Incident) Escalate(target string, now time.Time) error {
	if i.State != IncidentStateTriggered {
		return ErrIllegalTransition
	}
	i.EscalationLevel++
	i.appendTimeline(TimelineEventEscalated, "scheduler", target, now)
	return nil
}

func (i *Incident) appendTimeline(event, actor, note string, now time.Time) {
	i.Timeline = append(i.Timeline, TimelineEntry{
		Timestamp: now.UnixMilli(),
		Event:     event,
		Actor:     actor,
		Note:      note,
	})
}

// Outstanding reports whether the incident still needs human attention.
func (i *Incident) Outstanding() bool {
	return i.State != IncidentStateResolved
}
