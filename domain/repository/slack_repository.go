package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/Songmu/retry"
	"github.com/pyama86/bellhop/domain/entity"
	"github.com/slack-go/slack"
)

// SlackRepository posts incident announcements to the configured
// channels. It is optional wiring; push delivery never depends on it.
type SlackRepository struct {
	client   *slack.Client
	channels []string
}

func NewSlackRepository(client *slack.Client, channels []string) *SlackRepository {
	return &SlackRepository{
		client:   client,
		channels: channels,
	}
}

func (r *SlackRepository) AnnounceIncident(incident *entity.Incident) error {
	text := fmt.Sprintf(":rotating_light: [%s] %s assigned to %s (incident %s)",
		strings.ToUpper(string(incident.Severity)),
		incident.AlarmName,
		incident.AssignedTo,
		incident.IncidentID,
	)

	var lastErr error
	for _, channel := range r.channels {
		err := retry.Retry(3, time.Second, func() error {
			_, _, err := r.client.PostMessage(channel, slack.MsgOptionText(text, false))
			return err
		})
		if err != nil {
			lastErr = fmt.Errorf("failed to announce to %s: %w", channel, err)
		}
	}
	return lastErr
}
