package social

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
)

type poster interface {
	Publish(ctx context.Context, pageID, token, message, mediaURL string) (string, error)
}

type PublisherConfig struct {
	Interval  time.Duration
	BatchSize int
	Stale     time.Duration
}

// Publisher sends posts to the Graph API and records the outcome.
type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	graph     poster
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	stale     time.Duration
}

func NewPublisher(pool *db.Pool, repo *Repository, graph poster, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Stale <= 0 {
		cfg.Stale = 10 * time.Minute
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		graph:     graph,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		stale:     cfg.Stale,
	}
}

// Publish sends a post that is already in the publishing state. The Graph
// call happens outside any transaction. A post that could not be published
// is marked failed and the returned error carries the reason.
func (p *Publisher) Publish(ctx context.Context, post Post) (Post, error) {
	var acct Account
	err := p.pool.WithTenant(ctx, post.TenantID, func(tx pgx.Tx) error {
		var err error
		acct, err = p.repo.Account(ctx, tx, post.TenantID)
		return err
	})
	var pubErr error
	externalID := ""
	switch {
	case apperr.StatusOf(err) == http.StatusNotFound:
		pubErr = errors.New("no facebook page connected")
	case err != nil:
		return post, err
	default:
		externalID, pubErr = p.graph.Publish(ctx, acct.PageID, acct.Token, post.Content, post.MediaURL)
	}

	var out Post
	err = p.pool.WithTenant(ctx, post.TenantID, func(tx pgx.Tx) error {
		var err error
		if pubErr != nil {
			out, err = p.repo.MarkFailed(ctx, tx, post.TenantID, post.ID, pubErr.Error())
		} else {
			out, err = p.repo.MarkPublished(ctx, tx, post.TenantID, post.ID, externalID)
		}
		return err
	})
	if err != nil {
		return post, err
	}
	if pubErr != nil {
		p.logger.Warn("social post failed", "tenant_id", post.TenantID, "post_id", post.ID, "err", pubErr)
		return out, pubErr
	}
	p.logger.Info("social post published", "tenant_id", post.TenantID, "post_id", post.ID, "external_id", externalID)
	return out, nil
}

// Run publishes due scheduled posts until ctx ends.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error("social batch failed", "err", err)
			}
		}
	}
}

func (p *Publisher) processBatch(ctx context.Context) error {
	var due []Post
	err := p.pool.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		due, err = p.repo.ClaimDue(ctx, tx, p.batchSize, p.stale)
		return err
	})
	if err != nil {
		return err
	}
	for _, post := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := p.Publish(ctx, post); err != nil {
			var ge *GraphError
			if !errors.As(err, &ge) {
				p.logger.Error("social publish error", "post_id", post.ID, "err", err)
			}
		}
	}
	return nil
}
