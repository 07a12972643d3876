package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/orders"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/storage"
)

// PaymentsConsumer applies billing.payment.succeeded events to the records
// booking owns: appointment deposits and orders.
type PaymentsConsumer struct {
	pool   *db.Pool
	appts  *storage.BookingRepository
	orders *orders.Repository
	logger *slog.Logger
}

func NewPaymentsConsumer(pool *db.Pool, appts *storage.BookingRepository, orderRepo *orders.Repository, logger *slog.Logger) *PaymentsConsumer {
	return &PaymentsConsumer{pool: pool, appts: appts, orders: orderRepo, logger: logger}
}

// Handle is a kafkax.Handler. Malformed payloads are logged and dropped; a
// returned error means the event is retried.
func (c *PaymentsConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var p events.PaymentSucceededPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		c.logger.Error("invalid payment event", "err", err, "topic", msg.Topic)
		return nil
	}
	if p.TenantID == "" || p.ReferenceID == "" {
		c.logger.Error("payment event missing tenant or reference", "session_id", p.SessionID)
		return nil
	}

	switch p.Kind {
	case events.KindDeposit:
		return c.pool.WithTenant(ctx, p.TenantID, func(tx pgx.Tx) error {
			ok, err := c.appts.ConfirmDeposit(ctx, tx, p.TenantID, p.ReferenceID, p.PaidAt)
			if err != nil {
				return err
			}
			if !ok {
				c.logger.Warn("deposit paid for appointment not awaiting one", "appointment_id", p.ReferenceID)
			}
			return nil
		})
	case events.KindOrder:
		return c.pool.WithTenant(ctx, p.TenantID, func(tx pgx.Tx) error {
			o, err := c.orders.Get(ctx, tx, p.TenantID, p.ReferenceID, true)
			if err != nil {
				return err
			}
			if o.Status != orders.StatusPendingPayment {
				c.logger.Info("order already past payment", "order_id", o.ID, "status", o.Status)
				return nil
			}
			paidAt := p.PaidAt
			_, err = c.orders.SetStatus(ctx, tx, p.TenantID, o.ID, orders.StatusPaid, &paidAt)
			return err
		})
	default:
		// Invoices are settled by billing itself.
		return nil
	}
}
