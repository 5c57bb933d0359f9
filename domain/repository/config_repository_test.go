package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyama86/bellhop/domain/repository"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bellhop.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewConfigRepository(t *testing.T) {
	path := writeConfig(t, `
listen_addr = ":9090"
queue_url = "https://sqs.us-east-1.amazonaws.com/123456789012/alarms"

[[teams]]
id = "team-sre"
name = "SRE"
account_ids = ["123456789012"]

  [[teams.escalation_policy]]
  delay_minutes = 5
  target = "oncall"

[[teams]]
id = "team-data"
name = "Data"
account_ids = ["210987654321"]
disabled = true

[[schedules]]
team_id = "team-sre"
slot_id = "slot-1"
user_id = "alice"
start = 1000
end = 2000
`)

	cfg, err := repository.NewConfigRepository(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)

	ctx := context.Background()

	team, err := cfg.TeamByAccountID(ctx, "123456789012")
	require.NoError(t, err)
	assert.Equal(t, "team-sre", team.ID)
	require.Len(t, team.EscalationPolicy, 1)
	assert.Equal(t, "oncall", team.EscalationPolicy[0].Target)

	// disabled teams never match
	_, err = cfg.TeamByAccountID(ctx, "210987654321")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = cfg.TeamByAccountID(ctx, "000000000000")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	teams, err := cfg.Teams(ctx)
	require.NoError(t, err)
	assert.Len(t, teams, 1)
}

func TestConfigValidation(t *testing.T) {
	path := writeConfig(t, `
[[teams]]
id = "team-sre"
`)
	_, err := repository.NewConfigRepository(path)
	assert.Error(t, err)
}

func TestOnCallUserID(t *testing.T) {
	path := writeConfig(t, `
[[teams]]
id = "team-sre"
name = "SRE"

[[schedules]]
team_id = "team-sre"
slot_id = "slot-1"
user_id = "alice"
start = 1000
end = 2000

[[schedules]]
team_id = "team-sre"
slot_id = "slot-2"
user_id = "bob"
start = 2000
end = 3000
`)

	cfg, err := repository.NewConfigRepository(path)
	require.NoError(t, err)

	ctx := context.Background()

	user, err := cfg.OnCallUserID(ctx, "team-sre", time.UnixMilli(1000))
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	// slot end is exclusive, the next slot takes over
	user, err = cfg.OnCallUserID(ctx, "team-sre", time.UnixMilli(2000))
	require.NoError(t, err)
	assert.Equal(t, "bob", user)

	_, err = cfg.OnCallUserID(ctx, "team-sre", time.UnixMilli(3000))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = cfg.OnCallUserID(ctx, "team-data", time.UnixMilli(1500))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
