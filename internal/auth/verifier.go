// Package auth turns bearer tokens into tenant principals.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"routecap/internal/config"
)

// RolePlatformAdmin may act on any tenant.
const RolePlatformAdmin = "platform_admin"

var (
	ErrMalformed    = errors.New("malformed token")
	ErrBadSignature = errors.New("bad signature")
	ErrExpired      = errors.New("token expired")
)

// Verifier validates bearer tokens and extracts tenant/role claims.
// Modes: dev (token is "tenant:role", no verification) and hmac (HS256 JWT).
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	TenantClaim string
	RoleClaim   string
	now         func() time.Time
}

type Principal struct {
	Tenant string
	Role   string
}

// CanAccess reports whether p may act on tenantID.
func (p Principal) CanAccess(tenantID string) bool {
	return p.Role == RolePlatformAdmin || p.Tenant == tenantID
}

func NewVerifier(c config.AuthConfig) *Verifier {
	v := &Verifier{
		Mode:        strings.ToLower(c.Mode),
		HMACSecret:  []byte(c.HMACSecret),
		TenantClaim: c.TenantClaim,
		RoleClaim:   c.RoleClaim,
		now:         time.Now,
	}
	if v.Mode == "" {
		v.Mode = "dev"
	}
	if v.TenantClaim == "" {
		v.TenantClaim = "tenant"
	}
	if v.RoleClaim == "" {
		v.RoleClaim = "role"
	}
	return v
}

// Dev reports whether requests without credentials are let through.
func (v *Verifier) Dev() bool { return v.Mode == "dev" }

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" {
			return Principal{}, errors.New("invalid dev token; expected tenant:role")
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	}
	if v.Mode != "hmac" {
		return Principal{}, errors.New("unsupported auth mode")
	}

	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, ErrMalformed
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(segs[0], &hdr); err != nil {
		return Principal{}, err
	}
	if hdr.Alg != "HS256" {
		return Principal{}, errors.New("unsupported alg for hmac")
	}
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, ErrMalformed
	}
	if !hmac.Equal(Sign(v.HMACSecret, segs[0]+"."+segs[1]), sig) {
		return Principal{}, ErrBadSignature
	}
	var claims map[string]any
	if err := decodeSegment(segs[1], &claims); err != nil {
		return Principal{}, err
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return Principal{}, ErrExpired
	}
	tenant, _ := claims[v.TenantClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	if tenant == "" && role != RolePlatformAdmin {
		return Principal{}, errors.New("missing tenant claim")
	}
	if role == "" {
		role = "user"
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
}

// Sign returns the HS256 signature of a JWT signing input.
func Sign(secret []byte, signingInput string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signingInput))
	return mac.Sum(nil)
}

func decodeSegment(seg string, v any) error {
	b, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return ErrMalformed
	}
	if err := json.Unmarshal(b, v); err != nil {
		return ErrMalformed
	}
	return nil
}
