package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFrom returns the principal set by authenticate, or the zero
// principal.
func principalFrom(ctx context.Context) auth.Principal {
	p, _ := ctx.Value(principalKey{}).(auth.Principal)
	return p
}

// credential extracts the caller's token: a bearer token, an X-API-Key
// header, or for WebSocket upgrades an access_token query parameter.
func credential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred := credential(r)
		if cred == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="square15"`)
			s.errorResponse(w, http.StatusUnauthorized, "missing credential")
			return
		}
		p, err := s.svc.Resolve(r.Context(), cred)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				s.logger.Warn("credential resolution failed", "error", err)
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="square15", error="invalid_token"`)
			s.errorResponse(w, http.StatusUnauthorized, "invalid credential")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}
