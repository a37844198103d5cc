package middleware

import (
	"net/http"
	"strings"

	"mybank/internal/api/response"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

type Authenticator struct {
	identity domain.IdentityService
	logger   logger.Logger
}

func NewAuthenticator(identity domain.IdentityService, logger logger.Logger) *Authenticator {
	return &Authenticator{identity: identity, logger: logger}
}

// Authenticate resolves the bearer token and stores the principal in the
// request context.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			response.Error(w, r, a.logger, domain.ErrInvalidCredential.WithMessage("missing bearer token"))
			return
		}

		principal, err := a.identity.Resolve(r.Context(), token)
		if err != nil {
			response.Error(w, r, a.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(domain.ContextWithPrincipal(r.Context(), *principal)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequirePasswordCurrent blocks users who still hold a temporary password.
func RequirePasswordCurrent(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := domain.PrincipalFromContext(r.Context())
			if !ok {
				response.Error(w, r, log, domain.ErrInvalidCredential)
				return
			}
			if p.MustChangePassword {
				response.Error(w, r, log, domain.ErrPasswordChange)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireRoles(log logger.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := domain.PrincipalFromContext(r.Context())
			if !ok {
				response.Error(w, r, log, domain.ErrInvalidCredential)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, r, log, domain.ErrForbidden)
		})
	}
}
