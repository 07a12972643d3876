// Package worker delivers due notification jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	otelx "github.com/md-rashed-zaman/bizdash/libs/otel"
	"github.com/md-rashed-zaman/bizdash/libs/outbox"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/jobs"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/storage"
)

type EmailSender interface {
	Send(ctx context.Context, msg email.Message) (string, error)
	ProviderID() string
}

// errPermanent marks failures a retry cannot fix.
var errPermanent = errors.New("permanent")

type Worker struct {
	pool          *db.Pool
	jobs          *jobs.Repository
	notifications *storage.Repository
	outbox        *outbox.Repository
	email         EmailSender
	sms           sms.Sender
	logger        *slog.Logger
	interval      time.Duration
	batchSize     int
	lease         time.Duration
	backoff       time.Duration
	maxBackoff    time.Duration
	now           func() time.Time
}

type Config struct {
	Interval   time.Duration
	BatchSize  int
	Lease      time.Duration
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func New(pool *db.Pool, jobsRepo *jobs.Repository, notifications *storage.Repository, outboxRepo *outbox.Repository,
	emailSender EmailSender, smsSender sms.Sender, logger *slog.Logger, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Hour
	}
	return &Worker{
		pool:          pool,
		jobs:          jobsRepo,
		notifications: notifications,
		outbox:        outboxRepo,
		email:         emailSender,
		sms:           smsSender,
		logger:        logger,
		interval:      cfg.Interval,
		batchSize:     cfg.BatchSize,
		lease:         cfg.Lease,
		backoff:       cfg.Backoff,
		maxBackoff:    cfg.MaxBackoff,
		now:           time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("notification batch failed", "err", err)
			}
		}
	}
}

// processBatch claims in one short transaction and sends outside it, so a
// slow provider never holds row locks. Each result is recorded in its own
// transaction.
func (w *Worker) processBatch(ctx context.Context) error {
	var claimed []jobs.Job
	err := w.pool.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		claimed, err = w.jobs.ClaimDue(ctx, tx, w.batchSize, w.lease)
		return err
	})
	if err != nil {
		return err
	}
	for _, job := range claimed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		providerID, providerRef, sendErr := w.deliver(jobCtx, job)
		if err := w.record(jobCtx, job, providerID, providerRef, sendErr); err != nil {
			w.logger.Error("record notification result", "err", err, "job_id", job.ID)
		}
	}
	return nil
}

// deliver renders and sends one job. It returns the provider id and the
// provider's message reference.
func (w *Worker) deliver(ctx context.Context, job jobs.Job) (string, string, error) {
	msg, err := render(job)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errPermanent, err)
	}
	switch job.Channel {
	case jobs.ChannelEmail:
		if w.email == nil {
			return "", "", fmt.Errorf("%w: email not configured", errPermanent)
		}
		ref, err := w.email.Send(ctx, email.Message{To: job.Recipient, Subject: msg.Subject, Body: msg.Body})
		return w.email.ProviderID(), ref, err
	case jobs.ChannelSMS:
		if w.sms == nil {
			return "", "", fmt.Errorf("%w: sms not configured", errPermanent)
		}
		ref, err := w.sms.Send(ctx, job.Recipient, msg.SMS)
		return w.sms.ProviderID(), ref, err
	default:
		return "", "", fmt.Errorf("%w: unsupported channel %q", errPermanent, job.Channel)
	}
}

// nextAttempt decides what happens after a failed send: dead when the error
// is permanent or attempts are used up, otherwise a retry time.
func nextAttempt(job jobs.Job, sendErr error, now time.Time, base, max time.Duration) (bool, time.Time) {
	if errors.Is(sendErr, errPermanent) || job.Attempts >= job.MaxAttempts {
		return true, now
	}
	return false, now.Add(jobs.Backoff(job.Attempts, base, max))
}

func (w *Worker) record(ctx context.Context, job jobs.Job, providerID, providerRef string, sendErr error) error {
	now := w.now().UTC()
	payload := events.NotificationPayload{
		JobID:       strconv.FormatInt(job.ID, 10),
		TenantID:    job.TenantID,
		Channel:     job.Channel,
		Recipient:   job.Recipient,
		Template:    job.Template,
		ReferenceID: job.ReferenceID,
	}
	log := w.logger.With("job_id", job.ID, "channel", job.Channel, "template", job.Template, "attempt", job.Attempts)

	return w.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := db.BindTenant(ctx, tx, job.TenantID); err != nil {
			return err
		}
		if sendErr == nil {
			if err := w.jobs.MarkSent(ctx, tx, job.ID); err != nil {
				return err
			}
			if err := w.notifications.Insert(ctx, tx, storage.Notification{
				JobID:       job.ID,
				TenantID:    job.TenantID,
				ReferenceID: job.ReferenceID,
				Template:    job.Template,
				Channel:     job.Channel,
				Recipient:   job.Recipient,
				ProviderID:  providerID,
				ProviderRef: providerRef,
				Status:      jobs.StatusSent,
			}); err != nil {
				return err
			}
			log.Info("notification sent", "provider", providerID)
			return w.outbox.Emit(ctx, tx, "notification", job.ReferenceID, events.NotificationSent, payload)
		}

		dead, next := nextAttempt(job, sendErr, now, w.backoff, w.maxBackoff)
		if err := w.jobs.MarkFailed(ctx, tx, job.ID, dead, next, sendErr.Error()); err != nil {
			return err
		}
		if !dead {
			log.Warn("notification send failed, will retry", "err", sendErr, "next_run_at", next.Format(time.RFC3339))
			return nil
		}
		if err := w.notifications.Insert(ctx, tx, storage.Notification{
			JobID:       job.ID,
			TenantID:    job.TenantID,
			ReferenceID: job.ReferenceID,
			Template:    job.Template,
			Channel:     job.Channel,
			Recipient:   job.Recipient,
			ProviderID:  providerID,
			Status:      jobs.StatusDead,
			Error:       sendErr.Error(),
		}); err != nil {
			return err
		}
		log.Error("notification dead-lettered", "err", sendErr)
		payload.Error = sendErr.Error()
		return w.outbox.Emit(ctx, tx, "notification", job.ReferenceID, events.NotificationFailed, payload)
	})
}
