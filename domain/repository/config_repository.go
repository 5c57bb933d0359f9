package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pyama86/bellhop/domain/entity"
	"github.com/spf13/viper"
)

func NewConfigRepository(path string) (*Config, error) {
	viper.SetConfigFile(path)

	viper.AutomaticEnv()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("escalation_interval_seconds", 60)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	var c Config
	err = viper.Unmarshal(&c)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	valid := validator.New()
	if err = valid.Struct(c); err != nil {
		return nil, fmt.Errorf("validate config error: %w", err)
	}

	return &c, nil
}

type Config struct {
	ListenAddr                string                `mapstructure:"listen_addr"`
	QueueURL                  string                `mapstructure:"queue_url"`
	EscalationIntervalSeconds int                   `mapstructure:"escalation_interval_seconds" validate:"gte=1"`
	TeamList                  []entity.Team         `mapstructure:"teams" validate:"required,dive"`
	ScheduleList              []entity.ScheduleSlot `mapstructure:"schedules" validate:"dive"`
	AnnouncementChannelList   []string              `mapstructure:"announcement_channels"`
	APNs                      APNsConfig            `mapstructure:"apns"`
	Confluence                ConfluenceConfig      `mapstructure:"confluence"`
}

type APNsConfig struct {
	SecretName string `mapstructure:"secret_name"`
}

type ConfluenceConfig struct {
	AncestorID string `mapstructure:"ancestor_id"`
	Space      string `mapstructure:"space"`
	Domain     string `mapstructure:"domain"`
}

func (c *Config) Teams(_ context.Context) ([]entity.Team, error) {
	var teams []entity.Team
	for _, team := range c.TeamList {
		if team.Disabled {
			continue
		}
		teams = append(teams, team)
	}
	return teams, nil
}

func (c *Config) TeamByID(_ context.Context, id string) (*entity.Team, error) {
	for _, team := range c.TeamList {
		if team.ID == id && !team.Disabled {
			return &team, nil
		}
	}
	return nil, ErrNotFound
}

// TeamByAccountID routes an inbound alarm to the team owning the AWS
// account. On ambiguity the team declared first in the config wins.
func (c *Config) TeamByAccountID(_ context.Context, accountID string) (*entity.Team, error) {
	for _, team := range c.TeamList {
		if team.Disabled {
			continue
		}
		if team.OwnsAccount(accountID) {
			return &team, nil
		}
	}
	return nil, ErrNotFound
}

func (c *Config) AnnouncementChannels(_ context.Context) []string {
	return c.AnnouncementChannelList
}

// OnCallUserID picks the first schedule slot covering the instant.
// Overlapping slots are not rejected here; the first declared one wins.
func (c *Config) OnCallUserID(_ context.Context, teamID string, at time.Time) (string, error) {
	for _, slot := range c.ScheduleList {
		if slot.TeamID != teamID {
			continue
		}
		if slot.Covers(at) {
			return slot.UserID, nil
		}
	}
	return "", ErrNotFound
}

func (c *Config) EscalationInterval() time.Duration {
	return time.Duration(c.EscalationIntervalSeconds) * time.Second
}
