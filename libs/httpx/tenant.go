package httpx

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

// Identity headers are set by the gateway after the token is verified and
// are stripped from inbound requests before that.
const (
	TenantHeader = "X-Tenant-Id"
	UserHeader   = "X-User-Id"
	RoleHeader   = "X-Role"
)

// TenantID returns the tenant (business owner user id) of an authenticated
// request.
func TenantID(r *http.Request) (string, error) {
	v := strings.TrimSpace(r.Header.Get(TenantHeader))
	if v == "" {
		return "", apperr.Unauthorized("missing tenant")
	}
	if _, err := uuid.Parse(v); err != nil {
		return "", apperr.Unauthorized("invalid tenant")
	}
	return v, nil
}

// PathUUID validates a uuid path parameter.
func PathUUID(r *http.Request, name string) (string, error) {
	v := r.PathValue(name)
	if _, err := uuid.Parse(v); err != nil {
		return "", apperr.Badf("invalid %s", name)
	}
	return v, nil
}

// ParseUUID validates a uuid from a body or query field.
func ParseUUID(v, name string) (string, error) {
	v = strings.TrimSpace(v)
	if _, err := uuid.Parse(v); err != nil {
		return "", apperr.Badf("invalid %s", name)
	}
	return v, nil
}
