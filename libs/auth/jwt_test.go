package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func ownerClaims(ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Role: RoleOwner,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "0b8d7a43-8a4e-4a43-9a56-0b6f4f7a2d10",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(ownerClaims(time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	v := NewVerifier(VerifierConfig{HS256Secret: secret})
	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Tenant() != claims.Subject || claims.EffectiveRole() != RoleOwner {
		t.Fatalf("unexpected claims %+v", claims)
	}

	wrong := NewVerifier(VerifierConfig{HS256Secret: "other"})
	if _, err := wrong.Verify(context.Background(), token); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredAndMissingExpRejected(t *testing.T) {
	secret := "s"
	v := NewVerifier(VerifierConfig{HS256Secret: secret})

	expired, _ := SignHS256(ownerClaims(-time.Minute), secret)
	if _, err := v.Verify(context.Background(), expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	c := ownerClaims(time.Hour)
	c.ExpiresAt = nil
	noExp, _ := SignHS256(c, secret)
	if _, err := v.Verify(context.Background(), noExp); err == nil {
		t.Fatal("expected token without exp to fail")
	}
}

func TestStaffTokenCarriesTenant(t *testing.T) {
	c := ownerClaims(time.Hour)
	c.Role = RoleStaff
	c.TenantID = "5f0c2a8e-1d8b-4c59-8a07-5d1e9e0f6a21"
	token, _ := SignHS256(c, "s")

	claims, err := NewVerifier(VerifierConfig{HS256Secret: "s"}).Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Tenant() != c.TenantID {
		t.Fatalf("expected tenant %s, got %s", c.TenantID, claims.Tenant())
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(keySet{Keys: []jsonWebKey{{
			Kty: "RSA",
			Kid: "kid-1",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, ownerClaims(time.Hour))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := NewVerifier(VerifierConfig{JWKS: NewJWKSClient(srv.URL, time.Minute, srv.Client())})
	if _, err := v.Verify(context.Background(), signed); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	tok.Header["kid"] = "unknown"
	signed, _ = tok.SignedString(key)
	if _, err := v.Verify(context.Background(), signed); err == nil {
		t.Fatal("expected unknown kid to fail")
	}
}

func TestAlgNoneRejected(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, ownerClaims(time.Hour))
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	v := NewVerifier(VerifierConfig{HS256Secret: "s"})
	if _, err := v.Verify(context.Background(), signed); err == nil {
		t.Fatal("expected alg none to be rejected")
	}
}

func TestJWKSUnknownKidRefetchIsThrottled(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(keySet{})
	}))
	defer srv.Close()

	c := NewJWKSClient(srv.URL, time.Minute, srv.Client())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := c.Get(context.Background(), "nope"); err != ErrKeyNotFound {
			t.Fatalf("expected ErrKeyNotFound, got %v", err)
		}
	}
	if n := fetches.Load(); n != 1 {
		t.Fatalf("expected one fetch inside the gap, got %d", n)
	}
	now = now.Add(minRefreshGap)
	_, _ = c.Get(context.Background(), "nope")
	if n := fetches.Load(); n != 2 {
		t.Fatalf("expected a refetch after the gap, got %d", n)
	}
}
