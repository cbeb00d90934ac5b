package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"permitline/internal/domain"
	"permitline/internal/repo"
)

// AuthConfig controls how the active role is identified. Roles select a view
// and a set of channels; they are not an access-control boundary.
type AuthConfig struct {
	JWTSecret string
	Logger    logrus.FieldLogger
}

// Principal is the role a request acts as.
type Principal struct {
	Role    domain.Role
	Subject string
	Source  string
}

type principalKey struct{}

func (c AuthConfig) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// roleFromContext returns the request role, falling back to session:role.
func roleFromContext(ctx context.Context, r repo.Repo) (domain.Role, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.Role != "" {
		return p.Role, nil
	}
	role, err := r.SessionRole(ctx)
	if err != nil {
		return "", handleError(err)
	}
	return role, nil
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func authenticateJWT(token string, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return Principal{}, errors.New("role claim required")
	}
	return Principal{Role: role, Subject: claims.Subject, Source: "jwt"}, nil
}

// SignRoleToken issues an HS256 token carrying the role claim.
func SignRoleToken(secret string, role domain.Role, subject string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Role:             string(role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newRoleMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			roleHeader := strings.TrimSpace(req.Header.Get("X-Role"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					cfg.logger().WithError(err).Debug("bearer token rejected")
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if roleHeader != "" {
				role, ok := domain.ParseRole(roleHeader)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "unknown role", map[string]any{"role": roleHeader}))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), Principal{Role: role, Source: "header"})))
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
