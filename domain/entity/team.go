package entity

import "time"

// EscalationTargetOnCall makes an escalation step re-resolve the on-call
// schedule at escalation time instead of naming a fixed user.
const EscalationTargetOnCall = "oncall"

type EscalationStep struct {
	// DelayMinutes is measured from the trigger time of the incident.
	DelayMinutes int    `mapstructure:"delay_minutes" validate:"required,gte=1"`
	Target       string `mapstructure:"target" validate:"required"`
}

type Team struct {
	ID               string           `mapstructure:"id" validate:"required"`
	Name             string           `mapstructure:"name" validate:"required"`
	AccountIDs       []string         `mapstructure:"account_ids"`
	EscalationPolicy []EscalationStep `mapstructure:"escalation_policy" validate:"dive"`
	Disabled         bool             `mapstructure:"disabled"`
	CreatedAt        time.Time        `mapstructure:"created_at"`
}

// OwnsAccount reports whether inbound alarms from the AWS account should
// be routed to this team.
func (t *Team) OwnsAccount(accountID string) bool {
	for _, id := range t.AccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}
