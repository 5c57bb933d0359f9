package cmd

import (
	"log/slog"
	"time"

	"github.com/pyama86/bellhop/demo"
	"github.com/pyama86/bellhop/domain/entity"
	"github.com/spf13/cobra"
)

var (
	demoTimeout time.Duration
	demoSeed    int64
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "run a scripted incident sequence against the in-memory state machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		done := make(chan demo.Outcome, 1)
		orchestrator := demo.NewOrchestrator(demo.Config{
			Timeout: demoTimeout,
			Seed:    demoSeed,
		}, demo.Hooks{
			OnAdd: func(incident *entity.Incident) {
				slog.Info("incident triggered",
					slog.String("incident_id", incident.IncidentID),
					slog.String("alarm", incident.AlarmName),
					slog.String("severity", string(incident.Severity)))
			},
			OnAck: func(incident *entity.Incident) {
				slog.Info("incident acked", slog.String("incident_id", incident.IncidentID))
			},
			OnResolve: func(incident *entity.Incident) {
				slog.Info("incident resolved", slog.String("incident_id", incident.IncidentID))
			},
			PlayAlert: func(severity entity.Severity) {
				slog.Info("alert", slog.String("severity", string(severity)))
			},
			OnFinish: func(outcome demo.Outcome) {
				done <- outcome
			},
		})

		orchestrator.Start()
		outcome := <-done
		slog.Info("demo finished", slog.String("outcome", string(outcome)))
		return nil
	},
}

func init() {
	demoCmd.Flags().DurationVar(&demoTimeout, "timeout", 2*time.Minute, "hard ceiling for the demo run")
	demoCmd.Flags().Int64Var(&demoSeed, "seed", time.Now().UnixNano(), "random seed for the scripted sequence")
	rootCmd.AddCommand(demoCmd)
}
