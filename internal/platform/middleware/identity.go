package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "filegate/pkg/domain"
	dErrors "filegate/pkg/domain-errors"
	"filegate/pkg/httputil"
)

type identityKey struct{}

// IdentityClaims is the gateway token payload minted by the upstream
// authentication step. It carries the resolved tenant identity the admission
// pipeline consumes, including the stored secret fingerprint, so admission
// needs no tenant-store round trip.
type IdentityClaims struct {
	TenantID          string `json:"tenant_id"`
	UserID            string `json:"user_id,omitempty"`
	Plan              string `json:"plan"`
	SecretFingerprint string `json:"secret_fingerprint,omitempty"`
	jwt.RegisteredClaims
}

// IdentityFrom retrieves the authenticated tenant identity from the context.
func IdentityFrom(ctx context.Context) (id.TenantIdentity, bool) {
	identity, ok := ctx.Value(identityKey{}).(id.TenantIdentity)
	return identity, ok
}

// WithIdentity places a tenant identity in the context. Exported for tests
// and for the admin surface, which resolves identity differently.
func WithIdentity(ctx context.Context, identity id.TenantIdentity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// Identity validates the Bearer gateway token and stores the resulting
// TenantIdentity in the request context. Requests without a valid token
// never reach admission.
func Identity(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims := &IdentityClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected signing method")
				}
				return signingKey, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "gateway token rejected", "error", err)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid gateway token"))
				return
			}

			identity, err := claims.identity()
			if err != nil {
				logger.WarnContext(r.Context(), "gateway token claims invalid", "error", err)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func (c *IdentityClaims) identity() (id.TenantIdentity, error) {
	tenant, err := id.ParseTenantID(c.TenantID)
	if err != nil {
		return id.TenantIdentity{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid tenant id claim")
	}
	plan := id.Plan(c.Plan)
	if !plan.IsValid() {
		return id.TenantIdentity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid plan claim")
	}
	return id.TenantIdentity{
		TenantID:          tenant,
		UserID:            id.UserID(c.UserID),
		Plan:              plan,
		SecretFingerprint: c.SecretFingerprint,
	}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
