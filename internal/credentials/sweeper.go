package credentials

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/actiondesk/internal/scheduler"
	"github.com/rendis/actiondesk/pkg/schema"
)

// DefaultSweepWindow is how far ahead of expiry the sweeper refreshes.
const DefaultSweepWindow = 15 * time.Minute

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, cred schema.Credential) (*schema.Credential, error)
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Checked   int
	Refreshed int
	Revoked   int
	Failed    int
}

// Sweeper refreshes stored credentials that are about to expire, so a
// request rarely has to refresh inline.
type Sweeper struct {
	store      Store
	refreshers map[string]Refresher
	window     time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Store Store
	// Refreshers maps provider names to their token refreshers.
	Refreshers map[string]Refresher
	Window     time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	s := &Sweeper{
		store:      cfg.Store,
		refreshers: cfg.Refreshers,
		window:     cfg.Window,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if s.window <= 0 {
		s.window = DefaultSweepWindow
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Sweep refreshes every credential that expires within the window. Per-key
// failures are logged and counted; only a failure to list aborts the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	keys, err := s.store.List(ctx)
	if err != nil {
		return report, err
	}

	now := s.now()
	for _, key := range keys {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++
		log := s.logger.With(slog.String("provider", key.Provider), slog.String("user_id", key.UserID))

		refresher, ok := s.refreshers[key.Provider]
		if !ok {
			continue
		}
		cred, err := s.store.Get(ctx, key.Provider, key.UserID)
		if err != nil {
			report.Failed++
			log.Warn("credential read failed", slog.String("error", err.Error()))
			continue
		}
		if cred == nil || cred.RefreshToken == "" || !cred.ExpiresWithin(now, s.window) {
			continue
		}

		fresh, err := refresher.Refresh(ctx, *cred)
		if err != nil {
			if schema.IsCode(err, schema.ErrCodeUnauthenticated) {
				report.Revoked++
				log.Info("credential grant rejected; user must reconnect")
				continue
			}
			report.Failed++
			log.Warn("credential refresh failed", slog.String("error", err.Error()))
			continue
		}
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = cred.RefreshToken
		}
		if err := s.store.Put(ctx, key.Provider, key.UserID, *fresh); err != nil {
			report.Failed++
			log.Warn("credential write failed", slog.String("error", err.Error()))
			continue
		}
		report.Refreshed++
	}

	s.logger.Info("credential sweep done",
		slog.Int("checked", report.Checked),
		slog.Int("refreshed", report.Refreshed),
		slog.Int("revoked", report.Revoked),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// Job wraps Sweep as a scheduler job.
func (s *Sweeper) Job(cronExpr string) scheduler.Job {
	return scheduler.Job{
		Name: "credential-refresh",
		Cron: cronExpr,
		Run: func(ctx context.Context) error {
			_, err := s.Sweep(ctx)
			return err
		},
	}
}
