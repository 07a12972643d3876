package configs

import (
	"encoding/json"
	"sort"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

var mergeable = map[string]bool{
	"business_name":    true,
	"industry":         true,
	"tabs":             true,
	"colors":           true,
	"fonts":            true,
	"pipeline_stages":  true,
	"booking_settings": true,
}

// Merge replaces the top-level keys present in patch and keeps the rest.
func Merge(cfg BusinessConfig, patch map[string]json.RawMessage) (BusinessConfig, error) {
	if len(patch) == 0 {
		return BusinessConfig{}, apperr.BadRequest("nothing to update")
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !mergeable[k] {
			return BusinessConfig{}, apperr.Badf("unknown config field %q", k)
		}
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return BusinessConfig{}, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return BusinessConfig{}, err
	}
	for k, v := range patch {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return BusinessConfig{}, err
	}
	var out BusinessConfig
	if err := json.Unmarshal(merged, &out); err != nil {
		return BusinessConfig{}, apperr.BadRequest("config field has the wrong type")
	}
	out.UserID = cfg.UserID
	return out, nil
}
