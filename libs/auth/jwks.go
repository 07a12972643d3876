package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrKeyNotFound = errors.New("jwks key not found")

// minRefreshGap bounds how often tokens with unknown kids can make us
// refetch the key set.
const minRefreshGap = 10 * time.Second

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type keySet struct {
	Keys []jsonWebKey `json:"keys"`
}

// JWKSClient caches the identity provider's RSA signing keys by kid. Keys
// are refetched after ttl, or early when a token names an unknown kid.
type JWKSClient struct {
	url    string
	ttl    time.Duration
	client *resty.Client
	now    func() time.Time

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

func NewJWKSClient(url string, ttl time.Duration, httpClient *http.Client) *JWKSClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &JWKSClient{
		url:    url,
		ttl:    ttl,
		client: resty.NewWithClient(httpClient).SetRetryCount(1).SetRetryWaitTime(200 * time.Millisecond),
		now:    time.Now,
		keys:   map[string]*rsa.PublicKey{},
	}
}

func (c *JWKSClient) Get(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key, known := c.keys[keyID]
	fresh := now.Sub(c.fetchedAt) < c.ttl
	if known && fresh {
		return key, nil
	}
	if now.Sub(c.lastAttempt) < minRefreshGap {
		if known {
			return key, nil
		}
		return nil, ErrKeyNotFound
	}

	c.lastAttempt = now
	keys, err := c.fetch(ctx)
	if err != nil {
		// A stale key beats rejecting every token while the provider is down.
		if known {
			return key, nil
		}
		return nil, err
	}
	c.keys = keys
	c.fetchedAt = now
	if key, ok := keys[keyID]; ok {
		return key, nil
	}
	return nil, ErrKeyNotFound
}

func (c *JWKSClient) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	var set keySet
	resp, err := c.client.R().SetContext(ctx).SetResult(&set).ForceContentType("application/json").Get(c.url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode())
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		if pub, err := rsaKey(k.N, k.E); err == nil {
			keys[k.Kid] = pub
		}
	}
	return keys, nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(eb)
	if len(nb) == 0 || !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("invalid rsa jwk")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}
