// Package consumer turns booking and order events into notification jobs.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/jobs"
)

// Topics the planner subscribes to.
var Topics = []string{
	events.AppointmentBooked,
	events.AppointmentCancelled,
	events.AppointmentMoved,
	events.OrderPlaced,
}

// plan is the decoded intent of one message: jobs to cancel, then jobs to
// add.
type plan struct {
	tenantID    string
	referenceID string
	cancel      bool
	templates   []string
	add         []jobs.Job
}

type Planner struct {
	pool   *db.Pool
	repo   *jobs.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewPlanner(pool *db.Pool, repo *jobs.Repository, logger *slog.Logger) *Planner {
	return &Planner{pool: pool, repo: repo, logger: logger, now: time.Now}
}

// decode maps a message to a plan. Malformed messages return ok=false and
// are dropped; retrying would not fix them.
func decode(msg kafka.Message, now time.Time) (plan, bool, error) {
	switch msg.Topic {
	case events.AppointmentBooked:
		var p events.AppointmentBookedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return plan{}, false, err
		}
		return plan{tenantID: p.TenantID, referenceID: p.AppointmentID, add: jobs.PlanBooked(p, now)}, p.TenantID != "", nil
	case events.AppointmentMoved:
		var p events.AppointmentMovedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return plan{}, false, err
		}
		return plan{
			tenantID:    p.TenantID,
			referenceID: p.AppointmentID,
			cancel:      true,
			templates:   []string{jobs.TemplateReminder},
			add:         jobs.PlanMoved(p, now),
		}, p.TenantID != "", nil
	case events.AppointmentCancelled:
		var p events.AppointmentCancelledPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return plan{}, false, err
		}
		return plan{
			tenantID:    p.TenantID,
			referenceID: p.AppointmentID,
			cancel:      true,
			add:         jobs.PlanCancelled(p, now),
		}, p.TenantID != "", nil
	case events.OrderPlaced:
		var p events.OrderPlacedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return plan{}, false, err
		}
		return plan{tenantID: p.TenantID, referenceID: p.OrderID, add: jobs.PlanOrder(p, now)}, p.TenantID != "", nil
	}
	return plan{}, false, nil
}

// Handle is a kafkax.Handler.
func (p *Planner) Handle(ctx context.Context, msg kafka.Message) error {
	pl, ok, err := decode(msg, p.now().UTC())
	if err != nil {
		p.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if !ok {
		p.logger.Warn("event ignored", "topic", msg.Topic)
		return nil
	}

	var cancelled int64
	added := 0
	err = p.pool.WithTenant(ctx, pl.tenantID, func(tx pgx.Tx) error {
		if pl.cancel {
			n, err := p.repo.CancelPending(ctx, tx, pl.tenantID, pl.referenceID, pl.templates...)
			if err != nil {
				return err
			}
			cancelled = n
		}
		for _, job := range pl.add {
			ok, err := p.repo.Insert(ctx, tx, job)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.logger.Info("notifications planned", "topic", msg.Topic, "reference_id", pl.referenceID,
		"added", added, "cancelled", cancelled)
	return nil
}
