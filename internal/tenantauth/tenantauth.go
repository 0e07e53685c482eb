// Package tenantauth validates the tenant credential carried on every
// request (spec §6): a bearer HS256 JWT, from which the acting tenant_id and
// admin role are derived. Static service tokens are not accepted.
package tenantauth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/config"
)

// Claims is the identity derived from a validated credential.
type Claims struct {
	TenantID string
	Admin    bool
}

// Validator checks the bearer token from an incoming request and returns the
// tenant identity it carries.
type Validator struct {
	secret      []byte
	tenantClaim string
	adminRoles  map[string]struct{}
}

func New(cfg config.AuthConfig) *Validator {
	tenantClaim := cfg.TenantClaim
	if tenantClaim == "" {
		tenantClaim = "tenant_id"
	}
	roles := make(map[string]struct{}, len(cfg.AdminRoles))
	for _, r := range cfg.AdminRoles {
		roles[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return &Validator{secret: []byte(cfg.JWTSecret), tenantClaim: tenantClaim, adminRoles: roles}
}

// ExtractToken pulls the bearer token out of the Authorization header.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, prefix))
	}
	return ""
}

// Validate parses and verifies an HS256 JWT, returning the tenant_id and
// role claims it carries.
func (v *Validator) Validate(token string) (Claims, error) {
	if len(v.secret) == 0 {
		return Claims{}, apperr.MissingCredential("")
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, apperr.InvalidCredential(err)
	}

	tenantID, _ := claims[v.tenantClaim].(string)
	if tenantID == "" {
		return Claims{}, apperr.InvalidCredential(fmt.Errorf("missing %s claim", v.tenantClaim))
	}

	role, _ := claims["role"].(string)
	_, admin := v.adminRoles[strings.ToLower(strings.TrimSpace(role))]

	return Claims{TenantID: tenantID, Admin: admin}, nil
}

// Authenticate extracts and validates the bearer token from r.
func (v *Validator) Authenticate(r *http.Request) (Claims, error) {
	token := ExtractToken(r)
	if token == "" {
		return Claims{}, apperr.MissingCredential("")
	}
	return v.Validate(token)
}
