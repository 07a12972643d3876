package assistant

import (
	"encoding/json"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/configs"
)

const maxOps = 100

// Writable are the config subtrees a patch may change.
var Writable = []string{
	"/business_name",
	"/tabs",
	"/colors",
	"/fonts",
	"/pipeline_stages",
	"/booking_settings",
}

func writable(path string) bool {
	for _, p := range Writable {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Guard decodes raw and rejects any operation outside Writable. test
// operations may read any path; move and copy are checked on both ends.
func Guard(raw json.RawMessage) (jsonpatch.Patch, error) {
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, apperr.Unprocessable("invalid_patch", "patch is not a valid json patch")
	}
	if len(patch) > maxOps {
		return nil, apperr.Unprocessable("invalid_patch", "patch has too many operations")
	}
	for _, op := range patch {
		kind := op.Kind()
		path, err := op.Path()
		if err != nil {
			return nil, apperr.Unprocessable("invalid_patch", "patch operation without path")
		}
		if kind == "test" {
			continue
		}
		if !writable(path) {
			return nil, apperr.Unprocessable("forbidden_path", "patch may not change "+path)
		}
		if kind == "move" || kind == "copy" {
			from, err := op.From()
			if err != nil || (kind == "move" && !writable(from)) {
				return nil, apperr.Unprocessable("forbidden_path", "patch may not move from "+from)
			}
		}
	}
	return patch, nil
}

// Apply runs patch against cfg and returns the validated result. user_id
// and updated_at are carried over from cfg whatever the patch did.
func Apply(cfg configs.BusinessConfig, patch jsonpatch.Patch) (configs.BusinessConfig, error) {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return configs.BusinessConfig{}, err
	}
	out, err := patch.Apply(doc)
	if err != nil {
		return configs.BusinessConfig{}, apperr.Unprocessable("patch_failed", "patch does not apply: "+err.Error())
	}
	var next configs.BusinessConfig
	if err := json.Unmarshal(out, &next); err != nil {
		return configs.BusinessConfig{}, apperr.Unprocessable("patch_failed", "patched config has the wrong shape")
	}
	next.UserID = cfg.UserID
	next.UpdatedAt = cfg.UpdatedAt
	if err := next.Validate(); err != nil {
		return configs.BusinessConfig{}, err
	}
	return next, nil
}
