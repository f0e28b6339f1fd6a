package reconciler

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/merchantskit/merchants/internal/domain/session"
	"github.com/merchantskit/merchants/internal/infrastructure/observability"
	"github.com/merchantskit/merchants/internal/service"
	"github.com/rs/zerolog"
)

// Config controls the pending-session sweep.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// PendingAfter is how old a pending session must be before it is polled.
	// Young sessions are left alone: the customer may still be on the
	// provider's checkout page.
	PendingAfter time.Duration
	// BatchSize bounds how many sessions one sweep polls.
	BatchSize int
}

// Reconciler periodically polls providers for sessions stuck in pending,
// closing the gap left by webhooks that never arrived.
type Reconciler struct {
	sessions *service.SessionService
	cfg      Config
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// New creates a Reconciler. metrics may be nil.
func New(sessions *service.SessionService, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.PendingAfter <= 0 {
		cfg.PendingAfter = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reconciler{
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("interval", r.cfg.Interval).
		Dur("pending_after", r.cfg.PendingAfter).
		Msg("reconciler started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return nil
		case <-ticker.C:
		}

		if err := r.Sweep(ctx); err != nil {
			r.logger.Error().Err(err).Msg("sweep failed")
		}
	}
}

// Sweep polls every stale pending session once. One session's failure never
// stops the sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	all, err := r.sessions.AllSessions(ctx, "")
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-r.cfg.PendingAfter)
	polled := 0
	for _, sess := range all {
		if sess.Status != session.StatusPending || sess.CreatedAt.After(cutoff) {
			continue
		}
		if polled >= r.cfg.BatchSize {
			break
		}
		polled++

		updated, err := r.sessions.SyncSession(ctx, sess.PaymentID)
		switch {
		case err == nil && updated.Status != session.StatusPending:
			r.countSync("resolved")
			r.logger.Info().
				Str("payment_id", sess.PaymentID).
				Str("status", string(updated.Status)).
				Msg("stale session resolved")
		case err == nil:
			r.countSync("still_pending")
		case errors.Is(err, context.Canceled):
			return err
		default:
			r.countSync("error")
			var provErr *domainErrors.ProviderError
			if errors.As(err, &provErr) {
				r.logger.Warn().Err(err).Str("payment_id", sess.PaymentID).Msg("provider poll failed")
			} else {
				r.logger.Error().Err(err).Str("payment_id", sess.PaymentID).Msg("sync failed")
			}
		}
	}

	if polled > 0 {
		r.logger.Debug().Int("polled", polled).Msg("sweep finished")
	}
	return nil
}

func (r *Reconciler) countSync(result string) {
	if r.metrics != nil {
		r.metrics.ReconcilerSyncsTotal.WithLabelValues(result).Inc()
	}
}
