// Package social publishes social posts to a Facebook page through the
// Meta Graph API, on demand and on schedule.
package social

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultGraphURL = "https://graph.facebook.com/v19.0"

// GraphError is an error reported by the Graph API itself.
type GraphError struct {
	Status  int
	Message string
	Code    int
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph api %d (code %d): %s", e.Status, e.Code, e.Message)
}

type Graph struct {
	http *resty.Client
}

func NewGraph(baseURL string, timeout time.Duration) *Graph {
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Graph{http: resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")}
}

type graphResult struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
	Error  *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Publish posts message to the page feed, or as a photo caption when
// mediaURL is set, and returns the Graph id of the new post.
func (g *Graph) Publish(ctx context.Context, pageID, token, message, mediaURL string) (string, error) {
	form := map[string]string{"access_token": token}
	endpoint := "/" + pageID + "/feed"
	if mediaURL != "" {
		endpoint = "/" + pageID + "/photos"
		form["url"] = mediaURL
		form["caption"] = message
	} else {
		form["message"] = message
	}

	var out graphResult
	resp, err := g.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		SetError(&out).
		Post(endpoint)
	if err != nil {
		return "", fmt.Errorf("graph publish: %w", err)
	}
	if resp.IsError() || out.Error != nil {
		ge := &GraphError{Status: resp.StatusCode(), Message: resp.Status()}
		if out.Error != nil {
			ge.Message, ge.Code = out.Error.Message, out.Error.Code
		}
		return "", ge
	}
	if out.PostID != "" {
		return out.PostID, nil
	}
	if out.ID == "" {
		return "", fmt.Errorf("graph publish: empty id in response")
	}
	return out.ID, nil
}
