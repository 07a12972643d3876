package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/crud"
)

const indexUID = "bizdash_records"

// Meili is the primary Searcher and the crud.Indexer.
type Meili struct {
	client  meili.ServiceManager
	logger  *slog.Logger
	healthy atomic.Bool
}

func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	m := &Meili{client: meili.New(url, meili.WithAPIKey(apiKey)), logger: logger}
	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", "url", url, "err", err)
	} else {
		m.healthy.Store(true)
		m.configure()
	}
	return m
}

func (m *Meili) configure() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: indexUID, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create index (may already exist)", "index", indexUID, "err", err)
	}
	index := m.client.Index(indexUID)
	filterable := []interface{}{"user_id", "resource", "entity_type", "stage_id", "client_id"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", "err", err)
	}
	searchable := []string{"title", "text"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", "err", err)
	}
}

// Watch re-checks health until ctx ends and reconfigures after recovery.
func (m *Meili) Watch(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Swap(err == nil)
			if err == nil && !was {
				m.logger.Info("meilisearch recovered")
				m.configure()
			}
		}
	}
}

func (m *Meili) Healthy() bool { return m.healthy.Load() }

func (m *Meili) Index(_ context.Context, tenantID, resource string, row crud.Row) error {
	if !m.Healthy() {
		return nil
	}
	return m.IndexDocuments([]Document{DocumentFromRow(tenantID, resource, row)})
}

func (m *Meili) IndexDocuments(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(indexUID).AddDocuments(docs, nil)
	return err
}

func (m *Meili) Remove(_ context.Context, _, _, id string) error {
	if !m.Healthy() {
		return nil
	}
	_, err := m.client.Index(indexUID).DeleteDocument(id, nil)
	return err
}

// Filter builds the Meilisearch filter expression. The tenant filter is
// always present.
func Filter(q Query) []string {
	filters := []string{fmt.Sprintf("user_id = %q", q.TenantID)}
	if q.Resource != "" {
		filters = append(filters, fmt.Sprintf("resource = %q", q.Resource))
	}
	if q.EntityType != "" {
		filters = append(filters, fmt.Sprintf("entity_type = %q", q.EntityType))
	}
	return filters
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int64, error) {
	if !m.Healthy() {
		return nil, 0, errors.New("meilisearch unhealthy")
	}
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              indexUID,
			Query:                 q.Text,
			Limit:                 int64(q.Limit),
			Offset:                int64(q.Offset),
			Filter:                Filter(q),
			AttributesToHighlight: []string{"title"},
			AttributesToCrop:      []string{"text"},
			CropLength:            30,
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}
	var out []Result
	var total int64
	for _, sr := range resp.Results {
		total += sr.EstimatedTotalHits
		for _, hit := range sr.Hits {
			out = append(out, hitToResult(hit))
		}
	}
	return out, total, nil
}

func hitString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func formatted(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var f map[string]any
	if err := json.Unmarshal(raw, &f); err != nil {
		return ""
	}
	s, _ := f[key].(string)
	return strings.TrimSpace(s)
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ID:         hitString(hit, "id"),
		Resource:   hitString(hit, "resource"),
		EntityType: hitString(hit, "entity_type"),
		Title:      hitString(hit, "title"),
		Snippet:    formatted(hit, "text"),
	}
	if r.Snippet == "" {
		r.Snippet = snippet(hitString(hit, "text"), 160)
	}
	return r
}
