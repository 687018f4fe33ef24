package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/internal/api"
	"github.com/rendis/actiondesk/internal/coordinator"
	"github.com/rendis/actiondesk/internal/credentials"
	"github.com/rendis/actiondesk/internal/detection"
	"github.com/rendis/actiondesk/internal/expressions"
	"github.com/rendis/actiondesk/internal/extraction"
	"github.com/rendis/actiondesk/internal/filestore"
	"github.com/rendis/actiondesk/internal/integrations/google"
	"github.com/rendis/actiondesk/internal/integrations/stripe"
	"github.com/rendis/actiondesk/internal/llm"
	"github.com/rendis/actiondesk/internal/scheduler"
	"github.com/rendis/actiondesk/internal/secrets"
	"github.com/rendis/actiondesk/internal/store"
	"github.com/rendis/actiondesk/internal/streaming"
	"github.com/rendis/actiondesk/internal/validation"
	"github.com/rendis/actiondesk/pkg/schema"
)

// app holds the long-lived components. The request path (detector,
// coordinator, HTTP handler) is rebuilt from these on hot reload.
type app struct {
	cfg    Config
	logger *slog.Logger

	store     *store.LibSQLStore
	events    *store.EventLog
	creds     credentials.Store
	oauth     *google.OAuth
	registry  *actions.Registry
	extractor *extraction.Extractor
	completer llm.Completer
	guards    *expressions.CELEngine
	hub       *streaming.MemoryHub
	breakers  *coordinator.Breakers
	scheduler *scheduler.Scheduler

	closers []func() error
}

// buildApp wires every component that survives a config reload.
func buildApp(ctx context.Context, cfg Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	// Store
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	a.store, err = store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)
	if err := a.store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	a.events = store.NewEventLog(a.store)

	// Credentials
	sealer, err := newSealer(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	a.creds, err = a.credentialStore(cfg.Credentials, sealer)
	if err != nil {
		return nil, err
	}

	// Google
	var (
		calendar actions.CalendarBackend
		mail     actions.MailBackend
	)
	if cfg.Google.ClientID != "" {
		states, err := credentials.NewJWTStateSigner(cfg.Auth.StateSecret, cfg.Auth.StateTTL)
		if err != nil {
			return nil, fmt.Errorf("state signer: %w", err)
		}
		a.oauth = google.NewOAuth(google.OAuthConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		}, states)
		calendar = google.NewCalendar(google.APIConfig{}, cfg.Google.CalendarID)
		mail = google.NewGmail(google.APIConfig{})
	} else {
		logger.Warn("google is not configured; calendar and email actions will report unavailable")
	}

	// Stripe
	var payments actions.PaymentBackend
	if cfg.Stripe.SecretKey != "" {
		payments = stripe.NewCheckout(stripe.Config{SecretKey: cfg.Stripe.SecretKey})
	} else {
		logger.Warn("stripe is not configured; payment actions will report unavailable")
	}

	// Files
	files, err := a.fileStore(ctx, cfg.Files)
	if err != nil {
		return nil, err
	}

	// LLM
	a.completer = newCompleter(ctx, cfg.LLM, logger)

	// Executors
	validator := validation.NewJSONSchemaValidator()
	projector := expressions.NewGoJQEngine()
	builtin := actions.BuiltinConfig{
		Schedule: actions.ScheduleConfig{
			Calendar:  calendar,
			Validator: validator,
			Projector: projector,
		},
		Email: actions.EmailConfig{
			Mail:      mail,
			Files:     files,
			Validator: validator,
			Projector: projector,
		},
		Invoice: actions.InvoiceConfig{
			Files:     files,
			Formulas:  expressions.NewExprEngine(),
			Validator: validator,
			Issuer: actions.Issuer{
				Name:    cfg.Invoice.IssuerName,
				Email:   cfg.Invoice.IssuerEmail,
				Address: cfg.Invoice.IssuerAddress,
			},
			Terms:    cfg.Invoice.Terms,
			Location: loc,
		},
		Payment: actions.PaymentConfig{
			Payments:   payments,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
			Methods:    cfg.Stripe.PaymentMethods,
			Validator:  validator,
			Projector:  projector,
		},
	}
	if a.oauth != nil {
		builtin.Schedule.Authorizer, builtin.Schedule.Refresher = a.oauth, a.oauth
		builtin.Email.Authorizer, builtin.Email.Refresher = a.oauth, a.oauth
	}
	a.registry = actions.NewRegistry()
	if err := actions.RegisterBuiltins(a.registry, builtin); err != nil {
		return nil, fmt.Errorf("register executors: %w", err)
	}
	if err := a.registry.Complete(); err != nil {
		return nil, err
	}
	logger.Info("executors registered", slog.Int("count", a.registry.Count()))

	a.extractor = extraction.New(extraction.Config{
		Completer: a.completer,
		Validator: validator,
		Clock:     extraction.NewClock(loc),
		Logger:    logger,
	})
	a.guards, err = expressions.NewCELEngine()
	if err != nil {
		return nil, fmt.Errorf("cel engine: %w", err)
	}

	a.hub = streaming.NewMemoryHub()
	a.breakers = coordinator.NewBreakers(coordinator.BreakerConfig{
		FailureThreshold: cfg.Breaker.Threshold,
		Cooldown:         cfg.Breaker.Cooldown,
	})

	// Background jobs
	a.scheduler = scheduler.NewScheduler(logger)
	if err := a.addJobs(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

func newSealer(cfg CredentialsConfig) (*secrets.Sealer, error) {
	var kc secrets.KeyConfig
	if cfg.MasterKey != "" {
		key, err := hex.DecodeString(cfg.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("credentials.master_key must be hex: %w", err)
		}
		kc.MasterKey = key
	} else {
		kc.Passphrase = cfg.Passphrase
		kc.Salt = []byte(cfg.Salt)
	}
	sealer, err := secrets.NewSealer(kc)
	if err != nil {
		return nil, fmt.Errorf("credential sealer: %w", err)
	}
	return sealer, nil
}

func (a *app) credentialStore(cfg CredentialsConfig, sealer *secrets.Sealer) (credentials.Store, error) {
	switch cfg.Backend {
	case "file":
		local, err := filestore.NewLocal(afero.NewOsFs(), cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("credential dir: %w", err)
		}
		return credentials.NewFileStore(local, sealer), nil
	case "redis":
		rs := credentials.NewRedisStore(cfg.RedisAddr, "", cfg.RedisDB, "actiondesk:cred:", sealer)
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	default:
		return credentials.NewVaultStore(secrets.NewSealedVault(a.store, sealer)), nil
	}
}

// fileStore returns the store generated invoices are written to and read
// back from for attachments.
func (a *app) fileStore(ctx context.Context, cfg FilesConfig) (filestore.Store, error) {
	if cfg.Backend == "s3" {
		s3, err := filestore.NewS3(ctx, filestore.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 file store: %w", err)
		}
		return s3, nil
	}
	local, err := filestore.NewLocal(afero.NewOsFs(), cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("local file store: %w", err)
	}
	return local, nil
}

// newCompleter builds the chat model. Without one the service still runs
// on lexical detection, fallback extraction and fixed replies.
func newCompleter(ctx context.Context, cfg LLMConfig, logger *slog.Logger) llm.Completer {
	if cfg.Provider == "" {
		logger.Warn("no llm provider configured; running on fallbacks")
		return nil
	}
	provider, err := llm.ValidateProvider(cfg.Provider)
	if err != nil {
		logger.Warn("llm disabled", slog.String("error", err.Error()))
		return nil
	}
	m, err := llm.NewChatModel(ctx, llm.Config{
		Provider: provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		logger.Warn("llm disabled", slog.String("provider", cfg.Provider), slog.String("error", err.Error()))
		return nil
	}
	return llm.NewChatCompleter(m)
}

func (a *app) addJobs(cfg Config) error {
	if a.oauth != nil {
		sweeper := credentials.NewSweeper(credentials.SweeperConfig{
			Store:      a.creds,
			Refreshers: map[string]credentials.Refresher{schema.ProviderGoogle: a.oauth},
			Window:     cfg.Refresh.Window,
			Logger:     a.logger,
		})
		if err := a.scheduler.Add(sweeper.Job(cfg.Refresh.Schedule)); err != nil {
			return fmt.Errorf("schedule credential refresh: %w", err)
		}
	}

	retention := cfg.Events.Retention
	prune := scheduler.Job{
		Name:    "event-prune",
		Cron:    cfg.Events.PruneSchedule,
		Timeout: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			n, err := a.store.PruneEvents(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				return err
			}
			a.logger.Info("status events pruned", slog.Int64("deleted", n))
			if n == 0 {
				return nil
			}
			return a.store.Vacuum(ctx)
		},
	}
	if err := a.scheduler.Add(prune); err != nil {
		return fmt.Errorf("schedule event prune: %w", err)
	}
	return nil
}

// coordinator builds the request pipeline for the given detection mode.
func (a *app) coordinator(cfg Config, logger *slog.Logger) (*coordinator.Coordinator, error) {
	detector, err := detection.New(detection.Config{
		Mode:      detection.Mode(cfg.Detection.Mode),
		Guards:    a.guards,
		Completer: a.completer,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return coordinator.New(coordinator.Config{
		Detector:        detector,
		Extractor:       a.extractor,
		Executors:       a.registry,
		Credentials:     a.creds,
		Completer:       a.completer,
		Hub:             a.hub,
		Events:          a.events,
		Breakers:        a.breakers,
		Metrics:         coordinator.DefaultMetrics(),
		ExecutorTimeout: cfg.ExecutorTimeout,
		LLMTimeout:      cfg.LLM.Timeout,
		ChatTemperature: cfg.LLM.ChatTemperature,
		Logger:          logger,
	})
}

// handler builds the HTTP surface around a fresh coordinator.
func (a *app) handler(cfg Config, logger *slog.Logger) (http.Handler, error) {
	coord, err := a.coordinator(cfg, logger)
	if err != nil {
		return nil, err
	}
	deps := api.Deps{
		Chat:        coord,
		Credentials: a.creds,
		Events:      a.events,
		States:      a.events,
		Hub:         a.hub,
		Actions:     a.registry,
		Checks:      a.healthChecks(),
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
		},
		Metrics: api.DefaultMetrics(),
		Logger:  logger,
	}
	if a.oauth != nil {
		deps.OAuth = a.oauth
	}
	return api.NewServer(deps).Handler(), nil
}

func (a *app) healthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error { return a.store.DB().PingContext(ctx) },
	}
	if rs, ok := a.creds.(*credentials.RedisStore); ok {
		checks["redis"] = rs.Ping
	}
	return checks
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
