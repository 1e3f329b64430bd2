package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/booktrade/internal/domain/auth"
	"github.com/xenking/booktrade/internal/loginguard"
)

// APIKeyHeader carries the raw API key on authenticated requests.
const APIKeyHeader = "X-API-Key"

// Security authenticates requests via HMAC-SHA256 hashed API keys and
// throttles brute-force attempts per client IP through the login guard.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
	guard   *loginguard.Guard
}

// NewSecurity creates a Security middleware. guard may be nil to disable
// throttling.
func NewSecurity(apikeys auth.Repository, pepper []byte, guard *loginguard.Guard) *Security {
	return &Security{
		apikeys: apikeys,
		pepper:  pepper,
		guard:   guard,
	}
}

// RequireAPIKey rejects requests without a valid API key. The key is
// never stored or compared in plaintext: its HMAC under the server
// pepper is looked up and re-compared in constant time.
func (s *Security) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := clientIP(r)

		if s.guard != nil {
			blocked, err := s.guard.Blocked(ctx, ip)
			if err != nil {
				zctx.From(ctx).Warn("Login guard unavailable", zap.Error(err))
			} else if blocked {
				writeError(w, http.StatusTooManyRequests, "too_many_attempts", "too many failed attempts, try again later")
				return
			}
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			s.reject(w, r, ip)
			return
		}

		hash := auth.HashKey(s.pepper, key)
		info, err := s.apikeys.FindByHash(ctx, hash)
		if err != nil {
			s.reject(w, r, ip)
			return
		}

		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil {
			s.reject(w, r, ip)
			return
		}
		computed, err := hex.DecodeString(hash)
		if err != nil {
			s.reject(w, r, ip)
			return
		}
		if subtle.ConstantTimeCompare(computed, stored) != 1 {
			s.reject(w, r, ip)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Security) reject(w http.ResponseWriter, r *http.Request, ip string) {
	if s.guard != nil {
		if _, err := s.guard.Record(r.Context(), ip); err != nil {
			zctx.From(r.Context()).Warn("Login guard unavailable", zap.Error(err))
		}
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
