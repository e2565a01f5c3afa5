// auth.go - Sender authentication.
//
// Sender routes need two things: the shared static secret in the
// X-Frachter-Token header, and (except for create) the capability cookie
// minted by create, which binds the request to one transfer.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"frachter/internal/token"
)

const (
	secretHeader = "X-Frachter-Token"
	cookieName   = "frachter-transfer"
)

const claimsKey ctxKey = "claims"

// claimsFromContext returns the verified claims injected by requireSender.
func claimsFromContext(ctx context.Context) *token.Claims {
	c, _ := ctx.Value(claimsKey).(*token.Claims)
	return c
}

// Lockout policy for wrong shared secrets, per client IP.
const (
	secretMaxAttempts = 10
	secretLockoutFor  = 15 * time.Minute
	secretWindow      = 10 * time.Minute
)

func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		if s.lockout.locked(ip) {
			writeError(w, errLockedOut)
			return
		}
		got := r.Header.Get(secretHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) != 1 {
			if s.lockout.recordFailure(ip) {
				s.log.Warn("client_locked_out", "ip", ip, "for", secretLockoutFor.String())
				writeError(w, errLockedOut)
				return
			}
			writeError(w, errUnauthorized)
			return
		}
		s.lockout.recordSuccess(ip)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSender(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(cookieName)
		if err != nil {
			writeError(w, errUnauthorized.withMessage("missing transfer cookie"))
			return
		}
		claims, err := s.tokens.Verify(c.Value)
		if err != nil {
			if errors.Is(err, token.ErrExpired) {
				writeError(w, errUnauthorized.withMessage("transfer token expired"))
				return
			}
			writeError(w, errUnauthorized.withMessage("invalid transfer token"))
			return
		}
		if err := claims.Require(token.RoleSender); err != nil {
			writeError(w, errUnauthorized.withMessage("token does not grant sending"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// senderCookie carries a freshly minted Sender token.
func (s *Server) senderCookie(tok string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    tok,
		Path:     "/api",
		Expires:  exp,
		MaxAge:   int(s.tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.SecureCookies,
	}
}
