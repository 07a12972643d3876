package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stripe/stripe-go/v79"

	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/storage"
)

// StripeReconciler asks Stripe about checkout sessions that stayed open
// longer than expected and applies what it finds, in case a webhook never
// arrived.
type StripeReconciler struct {
	pool        *db.Pool
	repo        *storage.Repository
	settle      *payments.Settlement
	sessions    payments.Sessions
	logger      *slog.Logger
	batchSize   int
	staleAfter  time.Duration
	advisoryKey int64
	now         func() time.Time
}

type StripeReconcilerConfig struct {
	BatchSize       int
	StaleAfter      time.Duration
	AdvisoryLockKey int64
}

func NewStripeReconciler(pool *db.Pool, repo *storage.Repository, settle *payments.Settlement, sessions payments.Sessions, logger *slog.Logger, cfg StripeReconcilerConfig) *StripeReconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = 4242001
	}
	return &StripeReconciler{
		pool:        pool,
		repo:        repo,
		settle:      settle,
		sessions:    sessions,
		logger:      logger,
		batchSize:   cfg.BatchSize,
		staleAfter:  cfg.StaleAfter,
		advisoryKey: cfg.AdvisoryLockKey,
		now:         time.Now,
	}
}

// Run reconciles every interval until ctx ends. With several billing
// instances only the holder of the advisory lock does the work.
func (r *StripeReconciler) Run(ctx context.Context, interval time.Duration) {
	if r.sessions == nil {
		r.logger.Warn("stripe reconcile disabled: STRIPE_SECRET_KEY missing")
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	conn, err := r.acquireLock(ctx)
	if err != nil {
		return
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.advisoryKey)
		conn.Release()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.ReconcileOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// acquireLock pins one connection, since advisory locks belong to the
// session that took them.
func (r *StripeReconciler) acquireLock(ctx context.Context) (*pgxpool.Conn, error) {
	for {
		conn, err := r.pool.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Error("stripe reconcile: acquire connection", "err", err)
			if !sleep(ctx, 5*time.Second) {
				return nil, ctx.Err()
			}
			continue
		}
		var locked bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.advisoryKey).Scan(&locked); err != nil || !locked {
			conn.Release()
			if err != nil {
				r.logger.Error("stripe reconcile: advisory lock", "err", err)
			} else {
				r.logger.Debug("stripe reconcile: lock held by another instance", "lock_key", r.advisoryKey)
			}
			if !sleep(ctx, 30*time.Second) {
				return nil, ctx.Err()
			}
			continue
		}
		r.logger.Info("stripe reconcile: advisory lock acquired", "lock_key", r.advisoryKey)
		return conn, nil
	}
}

func (r *StripeReconciler) ReconcileOnce(ctx context.Context) {
	var stale []storage.Session
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		stale, err = r.repo.StaleOpenSessions(ctx, tx, r.now().Add(-r.staleAfter), r.batchSize)
		return err
	})
	if err != nil {
		r.logger.Error("stripe reconcile: list sessions", "err", err)
		return
	}
	for _, s := range stale {
		if ctx.Err() != nil {
			return
		}
		params := &stripe.CheckoutSessionParams{}
		params.Context = ctx
		cs, err := r.sessions.Get(s.StripeSessionID, params)
		if err != nil {
			r.logger.Warn("stripe reconcile: fetch session", "err", err, "session_id", s.StripeSessionID)
			continue
		}
		if err := r.apply(ctx, cs); err != nil {
			r.logger.Warn("stripe reconcile: apply", "err", err, "session_id", s.StripeSessionID)
		}
	}
}

func (r *StripeReconciler) apply(ctx context.Context, cs *stripe.CheckoutSession) error {
	now := r.now().UTC()
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		switch {
		case payments.IsPaid(cs):
			applied, err := r.settle.Paid(ctx, tx, cs.ID, now, "reconciler")
			if applied {
				r.logger.Info("stripe reconcile: recovered payment", "session_id", cs.ID)
			}
			return err
		case cs.Status == stripe.CheckoutSessionStatusExpired:
			expiredAt := now
			if cs.ExpiresAt > 0 {
				expiredAt = time.Unix(cs.ExpiresAt, 0).UTC()
			}
			_, err := r.settle.Expired(ctx, tx, cs.ID, expiredAt)
			return err
		}
		return nil
	})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
