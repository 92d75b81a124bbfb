package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/multiagent-chat/server/internal/auth"
	errx "github.com/multiagent-chat/server/internal/core/error"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

type principalKey struct{}

// ExtractBearer extracts the token from an Authorization: Bearer <token> header.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", errors.New("invalid Authorization header format")
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// requireAuth rejects requests without a valid session token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Auth == nil {
			s.writeErr(w, errx.Unavailable("authentication is not configured"))
			return
		}
		token, err := ExtractBearer(r)
		if err != nil {
			s.writeErr(w, errx.Unauthorized(err.Error()))
			return
		}
		p, err := s.deps.Auth.CurrentUser(r.Context(), token)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// optionalAuth attaches the caller's account when a valid token is sent.
// Missing or rejected tokens fall through as anonymous.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractBearer(r)
		if err != nil || s.deps.Auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		p, err := s.deps.Auth.CurrentUser(r.Context(), token)
		if err != nil {
			logx.Debug().Err(err).Msg("ignoring invalid token on anonymous route")
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

func withPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*auth.Principal)
	return p, ok && p != nil && p.User != nil
}

// clientIP strips the port RemoteAddr carries unless RealIP rewrote it.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
