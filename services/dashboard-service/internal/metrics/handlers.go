package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
)

const maxRangeDays = 366

type Handler struct {
	pool   *db.Pool
	repo   *Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(pool *db.Pool, repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, repo: repo, logger: logger, now: time.Now}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/dashboard/metrics/daily", httpx.Handle(h.logger, h.daily))
}

type dailyResponse struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Days   []Day  `json:"days"`
	Totals Day    `json:"totals"`
}

// parseRange reads from/to (YYYY-MM-DD, inclusive). The default is the last
// 30 days ending today.
func parseRange(fromRaw, toRaw string, now time.Time) (time.Time, time.Time, error) {
	to := now.UTC().Truncate(24 * time.Hour)
	if toRaw != "" {
		t, err := time.Parse(time.DateOnly, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.BadRequest("to must be YYYY-MM-DD")
		}
		to = t
	}
	from := to.AddDate(0, 0, -29)
	if fromRaw != "" {
		f, err := time.Parse(time.DateOnly, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.BadRequest("from must be YYYY-MM-DD")
		}
		from = f
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, apperr.BadRequest("from is after to")
	}
	if to.Sub(from) >= maxRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, apperr.Badf("range is limited to %d days", maxRangeDays)
	}
	return from, to, nil
}

func sum(days []Day) Day {
	var t Day
	for _, d := range days {
		t.Booked += d.Booked
		t.Cancelled += d.Cancelled
		t.Orders += d.Orders
		t.OrderRevenueCents += d.OrderRevenueCents
		t.PaidCents += d.PaidCents
		t.NotificationsSent += d.NotificationsSent
		t.NotificationsFailed += d.NotificationsFailed
	}
	return t
}

func (h *Handler) daily(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	q := r.URL.Query()
	from, to, err := parseRange(q.Get("from"), q.Get("to"), h.now())
	if err != nil {
		return err
	}
	var days []Day
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		days, err = h.repo.Range(r.Context(), tx, tenantID, from, to)
		return err
	})
	if err != nil {
		return err
	}
	if days == nil {
		days = []Day{}
	}
	totals := sum(days)
	totals.Day = ""
	httpx.WriteData(w, http.StatusOK, dailyResponse{
		From:   from.Format(time.DateOnly),
		To:     to.Format(time.DateOnly),
		Days:   days,
		Totals: totals,
	})
	return nil
}

// Consumer applies events to the counters. Replays are filtered by the
// inbox in front of it.
type Consumer struct {
	pool   *db.Pool
	repo   *Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewConsumer(pool *db.Pool, repo *Repository, logger *slog.Logger) *Consumer {
	return &Consumer{pool: pool, repo: repo, logger: logger, now: time.Now}
}

// Handle is a kafkax.Handler.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	b, ok, err := FromMessage(msg, c.now())
	if err != nil {
		c.logger.Error("invalid metrics event", "err", err, "topic", msg.Topic)
		return nil
	}
	if !ok {
		return nil
	}
	return c.pool.WithTenant(ctx, b.TenantID, func(tx pgx.Tx) error {
		return c.repo.Bump(ctx, tx, b)
	})
}
