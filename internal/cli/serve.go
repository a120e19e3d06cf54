package cli

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	api "raid-mail-agent/cmd/api"
	authDelivery "raid-mail-agent/internal/auth/delivery"
	authRepo "raid-mail-agent/internal/auth/repository"
	authUsecase "raid-mail-agent/internal/auth/usecase"
	conversationDelivery "raid-mail-agent/internal/conversation/delivery"
	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/internal/conversation/usecase"
	"raid-mail-agent/internal/notification"
	"raid-mail-agent/internal/scheduler"
	"raid-mail-agent/pkg/chroma"
	"raid-mail-agent/pkg/config"
	"raid-mail-agent/pkg/fcm"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoAPI bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for mail and run conversations",
		Long: `Start the agent: the mailbox listener (Gmail Pub/Sub or IMAP IDLE),
the reconciler and the operator API.

Example:
  raid-agent serve
  raid-agent serve --no-api`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, config.Load())
		},
	}

	cmd.Flags().BoolVar(&opts.NoAPI, "no-api", false, "do not start the operator API")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	devices := authRepo.NewDeviceTokenRepository(a.db)
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (operator alerts disabled): %v", err)
		} else {
			a.engine.SetAlerter(notification.NewFCMAlerter(fcmClient, devices, cfg.FCMOperatorTokens))
		}
	}

	var index domain.ApplicationIndex
	if cfg.ChromaAPIKey != "" {
		chromaIndex, err := chroma.NewApplicationIndex(ctx, chroma.Options{
			APIKey:       cfg.ChromaAPIKey,
			Tenant:       cfg.ChromaTenant,
			Database:     cfg.ChromaDatabase,
			GeminiAPIKey: cfg.GeminiApiKey,
		})
		if err != nil {
			log.Printf("[WARN] Failed to initialize Chroma (semantic search disabled): %v", err)
		} else {
			index = chromaIndex
			a.engine.SetApplicationIndex(chromaIndex)
		}
	}

	resolver := usecase.NewResolver(a.repos, cfg.AgentEmail, a.engineCfg.Store)
	pipeline := usecase.NewPipeline(a.repos, a.mailTransport(), resolver, a.engine, usecase.PipelineConfig{
		Mailbox:     cfg.AgentEmail,
		Lookback:    cfg.HistoryLookback,
		Concurrency: cfg.ThreadConcurrency,
		Fetch:       a.engineCfg.Transport,
		Store:       a.engineCfg.Store,
	})

	reconciler := scheduler.NewReconciler(a.engine, cfg.ReconcileInterval, cfg.ReconcileStaleAfter, cfg.ProcessingTimeout)
	reconciler.Start()
	defer reconciler.Stop()

	g, ctx := errgroup.WithContext(ctx)

	switch a.transport {
	case transportGmail:
		if cfg.GoogleProjectID == "" {
			return NewExitError(ExitCommandError, "GOOGLE_PROJECT_ID is required for the gmail transport")
		}
		renewer := scheduler.NewWatchRenewer(a.gmail, a.repos.Cursors, cfg.AgentEmail, a.topicPath(), cfg.WatchRenewInterval)
		if err := renewer.Renew(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to watch mailbox", err)
		}
		renewer.Start()
		defer renewer.Stop()

		client, err := notification.NewPubSubClient(ctx, cfg.GoogleProjectID, cfg.GoogleCredentials)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to connect to pubsub", err)
		}
		defer client.Close()

		source := notification.NewPubSubSource(client, notification.PubSubConfig{
			Topic:             cfg.GooglePubSubTopic,
			Subscription:      cfg.GooglePubSubSubscription,
			Workers:           cfg.ListenerWorkers,
			ProcessingTimeout: cfg.ProcessingTimeout,
		}, pipeline)
		g.Go(func() error { return source.Run(ctx) })
	case transportIMAP:
		source := notification.NewIdleSource(a.imap, cfg.AgentEmail, pipeline, cfg.ProcessingTimeout)
		g.Go(func() error { return source.Run(ctx) })
	}

	if !opts.NoAPI {
		authUc, err := authUsecase.NewAuthUsecase(cfg.JWTSecret, cfg.JWTAccessExpiry)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid operator token settings", err)
		}
		conversations := usecase.NewConversationUsecase(a.repos, a.engine, index, cfg.ProcessingTimeout)
		handler := api.NewHandler(authUc,
			conversationDelivery.NewConversationHandler(conversations),
			authDelivery.NewDeviceHandler(devices),
			api.NewSettingsHandler(a.settings, cfg.AIProvider))
		g.Go(func() error { return handler.Start(ctx, ":"+cfg.Port) })
	}

	log.Printf("[Agent] %s is listening on %s via %s", cfg.AgentName, cfg.AgentEmail, a.transport)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "agent stopped", err)
	}
	log.Println("[Agent] Stopped")
	return nil
}

// commandContext returns the command's context, or Background when run outside Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
