package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"softspace/internal/auth"
	"softspace/pkg/httputil"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	errMissingHeader   = errors.New("authorization header required")
	errMalformedHeader = errors.New("malformed authorization header (expected: Bearer <token>)")
)

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errMissingHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errMalformedHeader
	}
	return parts[1], nil
}

// authenticate parses the bearer token and returns the identity or writes
// a 401.
func authenticate(w http.ResponseWriter, r *http.Request, jwtSecret string, logger *zap.Logger) (auth.Identity, bool) {
	tokenString, err := bearerToken(r)
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
		return auth.Identity{}, false
	}

	claims, err := auth.ParseToken(tokenString, jwtSecret)
	if err != nil {
		logger.Debug("rejected token", zap.String("path", r.URL.Path), zap.Error(err))
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			httputil.RespondError(w, http.StatusUnauthorized, "Token has expired")
		case errors.Is(err, jwt.ErrTokenMalformed):
			httputil.RespondError(w, http.StatusUnauthorized, "Malformed token")
		default:
			httputil.RespondError(w, http.StatusUnauthorized, "Invalid token")
		}
		return auth.Identity{}, false
	}
	return claims.Identity(), true
}

// JwtAuthMiddleware requires an account token and injects the identity into
// the request context. Guest tokens are rejected.
func JwtAuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := authenticate(w, r, jwtSecret, logger)
			if !ok {
				return
			}
			if !id.IsAccount() {
				httputil.RespondError(w, http.StatusUnauthorized, "Account token required")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalIdentity accepts an account or guest token when one is sent.
// Requests without an Authorization header pass through anonymously; a bad
// token is still a 401.
func OptionalIdentity(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, ok := authenticate(w, r, jwtSecret, logger)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// RequestLogger logs one structured line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// answerOptions replies 200 to any OPTIONS request the CORS handler let
// through, so preflights never reach the route table.
func answerOptions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
