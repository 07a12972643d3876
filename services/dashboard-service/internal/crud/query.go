package crud

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// ParseListQuery reads filter[col]=v, q, sort=[-]col, page and per_page.
func ParseListQuery(res *Resource, v url.Values) (ListQuery, error) {
	q := ListQuery{Filters: map[string]any{}, Page: 1, PerPage: defaultPerPage}

	for key, vals := range v {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		name := key[len("filter[") : len(key)-1]
		if !contains(res.Filterable, name) {
			return ListQuery{}, apperr.Badf("cannot filter on %q", name)
		}
		col, ok := res.column(name)
		if !ok {
			col = Column{Name: name, Kind: Text}
		}
		val, err := FilterValue(col, vals[0])
		if err != nil {
			return ListQuery{}, err
		}
		q.Filters[name] = val
	}

	q.Search = strings.TrimSpace(v.Get("q"))
	if len(q.Search) > 200 {
		return ListQuery{}, apperr.BadRequest("q is too long")
	}

	sortKey := strings.TrimSpace(v.Get("sort"))
	if sortKey == "" {
		sortKey = res.DefaultSort
	}
	if sortKey == "" {
		sortKey = "-created_at"
	}
	if strings.HasPrefix(sortKey, "-") {
		q.Desc = true
		sortKey = sortKey[1:]
	}
	if !contains(res.Sortable, sortKey) {
		return ListQuery{}, apperr.Badf("cannot sort by %q", sortKey)
	}
	q.Sort = sortKey

	if raw := v.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return ListQuery{}, apperr.BadRequest("page must be a positive integer")
		}
		q.Page = n
	}
	if raw := v.Get("per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return ListQuery{}, apperr.BadRequest("per_page must be a positive integer")
		}
		if n > maxPerPage {
			n = maxPerPage
		}
		q.PerPage = n
	}
	return q, nil
}
