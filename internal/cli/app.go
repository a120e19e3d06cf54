package cli

import (
	"fmt"
	"log"
	"strings"
	"time"

	authRepo "raid-mail-agent/internal/auth/repository"
	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/internal/conversation/repository"
	"raid-mail-agent/internal/conversation/usecase"
	"raid-mail-agent/pkg/ai"
	"raid-mail-agent/pkg/config"
	"raid-mail-agent/pkg/database"
	"raid-mail-agent/pkg/gmail"
	"raid-mail-agent/pkg/imapmail"
	"raid-mail-agent/pkg/markdown"

	"gorm.io/gorm"
)

// app holds the components shared by the commands
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	repos     usecase.Repositories
	transport transportKind
	gmail     *gmail.Service
	imap      *imapmail.Transport
	settings  *ai.RuntimeSettings
	agent     *ai.Agent
	renderer  *markdown.Renderer
	engineCfg usecase.EngineConfig
	engine    *usecase.Engine
}

type transportKind string

const (
	transportGmail transportKind = "gmail"
	transportIMAP  transportKind = "imap"
)

// newApp opens the database, runs migrations and builds the mail transport,
// generator and engine from cfg
func newApp(cfg *config.Config) (*app, error) {
	if cfg.AgentEmail == "" {
		return nil, NewExitError(ExitCommandError, "AGENT_EMAIL is required")
	}

	policy, err := usecase.NewCompletionPolicy(cfg.CompletionPolicy, cfg.MaxExchanges, cfg.TerminalPhrases)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid completion policy", err)
	}

	a := &app{
		cfg:      cfg,
		settings: ai.NewRuntimeSettings(cfg.OllamaBaseURL, cfg.OllamaModel),
		renderer: markdown.NewRenderer(),
	}

	switch transportKind(strings.ToLower(cfg.MailTransport)) {
	case transportGmail, "":
		if cfg.GoogleRefreshToken == "" {
			return nil, NewExitError(ExitCommandError, "GOOGLE_REFRESH_TOKEN is required for the gmail transport")
		}
		a.transport = transportGmail
		a.gmail = gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRefreshToken,
			cfg.AgentName, cfg.AgentEmail, int64(cfg.HistoryLookback))
	case transportIMAP:
		if cfg.IMAPAddr == "" || cfg.SMTPAddr == "" {
			return nil, NewExitError(ExitCommandError, "IMAP_ADDR and SMTP_ADDR are required for the imap transport")
		}
		a.transport = transportIMAP
		a.imap = imapmail.NewTransport(cfg.IMAPAddr, cfg.SMTPAddr, cfg.MailUsername, cfg.MailPassword,
			cfg.AgentName, cfg.AgentEmail, uint32(cfg.HistoryLookback)).
			WithSMTPSecurity(imapmail.SMTPSecurity(strings.ToLower(cfg.SMTPSecurity)), nil)
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown MAIL_TRANSPORT %q", cfg.MailTransport))
	}

	completer, err := ai.NewCompleter(ai.Config{
		Provider:       ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:   cfg.GeminiApiKey,
		GeminiModel:    cfg.GeminiModel,
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		OpenAIEndpoint: cfg.OpenAIEndpoint,
		OpenAIModel:    cfg.OpenAIModel,
	}, a.settings)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid generation backend", err)
	}
	prompt, err := ai.LoadSystemPrompt(cfg.AgentName, cfg.SystemPromptFile, cfg.ContextFiles)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load system prompt", err)
	}
	a.agent = ai.NewAgent(completer, cfg.AgentName, prompt)
	log.Printf("[AI] Using provider %s for %s", completer.Name(), cfg.AgentName)

	db, err := database.NewConnection(cfg)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to connect to database", err)
	}
	if err := repository.Migrate(db); err != nil {
		return nil, WrapExitError(ExitFailure, "failed to migrate database", err)
	}
	if err := authRepo.Migrate(db); err != nil {
		return nil, WrapExitError(ExitFailure, "failed to migrate database", err)
	}
	a.db = db

	a.repos = usecase.Repositories{
		Workflows:    repository.NewWorkflowRepository(db),
		Messages:     repository.NewMessageRepository(db),
		Users:        repository.NewUserRepository(db),
		Applications: repository.NewApplicationRepository(db),
		Cursors:      repository.NewCursorRepository(db),
	}

	a.engineCfg = usecase.EngineConfig{
		Generation:     a.retry(cfg.GenerationTimeout),
		Transport:      a.retry(cfg.TransportTimeout),
		Store:          a.retry(cfg.StoreTimeout),
		Policy:         policy,
		WelcomeSubject: cfg.WelcomeSubject,
		DeliveryLease:  cfg.DeliveryLease,
	}
	a.engine = usecase.NewEngine(a.repos, a.mailTransport(), a.agent, a.renderer, a.engineCfg)
	return a, nil
}

func (a *app) retry(timeout time.Duration) usecase.RetryPolicy {
	return usecase.RetryPolicy{
		MaxAttempts:     a.cfg.RetryAttempts,
		InitialInterval: a.cfg.RetryInitial,
		MaxInterval:     a.cfg.RetryMax,
		Timeout:         timeout,
	}
}

func (a *app) mailTransport() domain.MailTransport {
	if a.transport == transportIMAP {
		return a.imap
	}
	return a.gmail
}

// topicPath returns the full Pub/Sub resource name Gmail expects for watch
func (a *app) topicPath() string {
	topic := a.cfg.GooglePubSubTopic
	if strings.Contains(topic, "/") {
		return topic
	}
	return fmt.Sprintf("projects/%s/topics/%s", a.cfg.GoogleProjectID, topic)
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
