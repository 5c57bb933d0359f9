package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pyama86/bellhop/domain/repository"
	"github.com/slack-go/slack"
)

func timeNow() time.Time {
	return time.Now().UTC()
}

// Handle wires the pipeline together and runs it until the context is
// cancelled: SQS alarm ingestion, the store change-feed dispatcher, the
// escalation scheduler and the client-facing HTTP API.
func Handle(ctx context.Context, configPath string) error {
	cfgRepository, err := repository.NewConfigRepository(configPath)
	if err != nil {
		return err
	}

	dynamoRepository, err := repository.NewDynamoDBRepository()
	if err != nil {
		return err
	}

	repo := repository.NewRepository(dynamoRepository, dynamoRepository, cfgRepository, cfgRepository)

	awsConfig, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}

	secretsRepository := repository.NewSecretsRepository(
		secretsmanager.NewFromConfig(awsConfig),
		cfgRepository.APNs.SecretName,
	)
	notifier := repository.NewAPNsRepository(secretsRepository)

	var announcer repository.Announcer
	channels := cfgRepository.AnnouncementChannels(ctx)
	if os.Getenv("SLACK_BOT_TOKEN") != "" && len(channels) > 0 {
		announcer = repository.NewSlackRepository(
			slack.New(os.Getenv("SLACK_BOT_TOKEN")),
			channels,
		)
	}

	var exporter repository.ReportExporter
	if os.Getenv("CONFLUENCE_USERNAME") != "" && os.Getenv("CONFLUENCE_PASSWORD") != "" && cfgRepository.Confluence.Domain != "" {
		r, err := repository.NewConfluenceRepository(
			cfgRepository.Confluence.Domain,
			os.Getenv("CONFLUENCE_USERNAME"),
			os.Getenv("CONFLUENCE_PASSWORD"),
			cfgRepository.Confluence.Space,
			cfgRepository.Confluence.AncestorID,
		)
		if err != nil {
			return err
		}
		exporter = r
	}

	dispatcher := NewDispatcher(repo, notifier, announcer)
	go dispatcher.Run(ctx, dynamoRepository.Created())

	escalator := NewEscalator(repo, dispatcher, cfgRepository.EscalationInterval())
	go escalator.Run(ctx)

	if cfgRepository.QueueURL != "" {
		ingestor := NewIngestor(sqs.NewFromConfig(awsConfig), cfgRepository.QueueURL, repo)
		go ingestor.Run(ctx)
	} else {
		slog.Warn("queue_url is not configured, alarm ingestion is disabled")
	}

	api := NewAPIHandler(repo, notifier, exporter)
	server := &http.Server{
		Addr:    cfgRepository.ListenAddr,
		Handler: api.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down http server", slog.Any("error", err))
		}
	}()

	slog.Info("Server started", slog.String("addr", cfgRepository.ListenAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
