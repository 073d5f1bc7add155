package middleware

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/repository"
	"github.com/chatdesk/internal/storage"
)

// Max allowed clock skew between client timestamp and server time.
const timestampSkew = 5 * time.Minute

// SessionAuth verifies signed requests. Clients send:
//
//	X-Session-Id: session uuid
//	X-Timestamp:  unix seconds
//	X-Signature:  hex(HMAC-SHA256(secret, method+path+body+timestamp))
//
// The per-session secret lives in the SessionStore; the sessions table is the
// fallback source of truth (revocation check included).
func SessionAuth(store storage.SessionStore, sessions *repository.SessionRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get("X-Session-Id")
			tsStr := r.Header.Get("X-Timestamp")
			sig := r.Header.Get("X-Signature")
			if sessionID == "" || tsStr == "" || sig == "" {
				unauthorized(w)
				return
			}

			ts, err := strconv.ParseInt(tsStr, 10, 64)
			if err != nil || math.Abs(float64(time.Now().Unix()-ts)) > timestampSkew.Seconds() {
				unauthorized(w)
				return
			}

			secret, err := store.GetSessionSecret(r.Context(), sessionID)
			if err != nil {
				logger.Errorf("session store lookup for %s: %v", SafeID(sessionID), err)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				return
			}
			if secret == "" {
				unauthorized(w)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				unauthorized(w)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key, err := base64.StdEncoding.DecodeString(secret)
			if err != nil {
				logger.Errorf("malformed secret for session %s", SafeID(sessionID))
				unauthorized(w)
				return
			}
			mac := hmac.New(sha256.New, key)
			mac.Write([]byte(r.Method))
			mac.Write([]byte(r.URL.Path))
			mac.Write(body)
			mac.Write([]byte(tsStr))
			expected := hex.EncodeToString(mac.Sum(nil))
			if !hmac.Equal([]byte(expected), []byte(sig)) {
				unauthorized(w)
				return
			}

			sess, err := sessions.Get(r.Context(), sessionID)
			if err != nil {
				unauthorized(w)
				return
			}
			if sess.RevokedAt != nil {
				unauthorized(w)
				return
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := sessions.TouchLastSeen(ctx, sessionID); err != nil {
					logger.Errorf("touch session %s: %v", SafeID(sessionID), err)
				}
			}()

			ctx := WithUserID(r.Context(), sess.UserID)
			ctx = WithSessionID(ctx, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized"}`))
}
