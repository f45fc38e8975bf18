package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	dErrors "github.com/botdiril/botdiril-game-backend/pkg/domain-errors"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/httputil"
	request "github.com/botdiril/botdiril-game-backend/pkg/platform/middleware/request"
)

const bearerScheme = "Bearer"

// Authenticator resolves a bearer token to a live identity.
type Authenticator interface {
	Authenticate(ctx context.Context, tokenString string) (domain.Identity, error)
}

// HandlerFunc is an HTTP handler that only runs for authenticated callers.
// The identity is passed explicitly rather than stashed in the context.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, id domain.Identity)

// RequireIdentity returns an adapter turning identity-aware handlers into
// plain http.HandlerFuncs. Every authentication failure is answered here;
// the wrapped handler never runs without an identity.
func RequireIdentity(authenticator Authenticator, logger *slog.Logger) func(HandlerFunc) http.HandlerFunc {
	return func(next HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			id, err := authenticator.Authenticate(ctx, token)
			if err != nil {
				if dErrors.CodeOf(err) == dErrors.CodeInternal {
					logger.ErrorContext(ctx, "authentication unavailable",
						"error", err,
						"request_id", requestID,
					)
					httputil.WriteError(w, err)
					return
				}
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, err)
				return
			}

			next(w, r, id)
		}
	}
}

// bearerToken extracts the credential from an Authorization header. The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	httputil.WriteError(w, err)
}
