// Package media hands out presigned upload URLs for images and video.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
)

const uploadTTL = 15 * time.Minute

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
	MaxBytes      int64
}

type presigner interface {
	PresignedPutObject(ctx context.Context, bucket, object string, expires time.Duration) (*url.URL, error)
}

// NewClient connects to S3-compatible storage. The region is fixed so
// presigning never needs a network round trip.
func NewClient(cfg Config) (*minio.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
}

// EnsureBucket creates the bucket when it does not exist yet.
func EnsureBucket(ctx context.Context, c *minio.Client, bucket, region string) error {
	ok, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return c.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

// ReadyCheck reports whether the bucket is reachable.
func ReadyCheck(c *minio.Client, bucket string) func(context.Context) error {
	return func(ctx context.Context) error {
		ok, err := c.BucketExists(ctx, bucket)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("bucket %s missing", bucket)
		}
		return nil
	}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName keeps the base name of filename with anything outside
// [A-Za-z0-9._-] replaced by "-".
func SafeName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = strings.Trim(unsafeName.ReplaceAllString(name, "-"), "-.")
	if name == "" {
		name = "file"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}

// ObjectKey places an upload under tenant/<user_id>/.
func ObjectKey(tenantID, filename string) string {
	return "tenant/" + tenantID + "/" + uuid.NewString() + "-" + SafeName(filename)
}

// CheckContentType accepts image/* and video/* only.
func CheckContentType(ct string) (string, error) {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", apperr.BadRequest("content_type is invalid")
	}
	if !strings.HasPrefix(mt, "image/") && !strings.HasPrefix(mt, "video/") {
		return "", apperr.Unprocessable("unsupported_media", "only images and video can be uploaded")
	}
	return mt, nil
}

type Handler struct {
	client presigner
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(client presigner, cfg Config, logger *slog.Logger) *Handler {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 100 << 20
	}
	return &Handler{client: client, cfg: cfg, logger: logger, now: time.Now}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/dashboard/media/uploads", httpx.Handle(h.logger, h.presign))
}

type uploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type uploadResponse struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ObjectKey string            `json:"object_key"`
	PublicURL string            `json:"public_url"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// PublicURL is where an object is served from once uploaded.
func (h *Handler) PublicURL(key string) string {
	base := strings.TrimRight(h.cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if h.cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + h.cfg.Endpoint + "/" + h.cfg.Bucket
	}
	return base + "/" + key
}

func (h *Handler) presign(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	if h.client == nil {
		return apperr.Unavailable("media storage is not configured")
	}
	var req uploadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Filename) == "" {
		return apperr.BadRequest("filename is required")
	}
	ct, err := CheckContentType(req.ContentType)
	if err != nil {
		return err
	}
	if req.SizeBytes < 0 || req.SizeBytes > h.cfg.MaxBytes {
		return apperr.New(http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("uploads are limited to %d bytes", h.cfg.MaxBytes))
	}

	key := ObjectKey(tenantID, req.Filename)
	u, err := h.client.PresignedPutObject(r.Context(), h.cfg.Bucket, key, uploadTTL)
	if err != nil {
		return apperr.Wrap(err, http.StatusBadGateway, "storage_failed", "could not create upload url")
	}
	httpx.WriteData(w, http.StatusCreated, uploadResponse{
		UploadURL: u.String(),
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": ct},
		ObjectKey: key,
		PublicURL: h.PublicURL(key),
		ExpiresAt: h.now().Add(uploadTTL).UTC(),
	})
	return nil
}
