package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/festpos/api/responses"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/logger"
)

// VerificationChecker reports whether a user may record sales.
type VerificationChecker interface {
	IsVerified(ctx context.Context, userID uuid.UUID) (bool, error)
}

// RequireVerified lets only verified staff through. Approval is looked up per
// request so revocation takes effect without new tokens.
func RequireVerified(checker VerificationChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := uuid.Parse(UserIDFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
				return
			}
			ok, err := checker.IsVerified(r.Context(), userID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check verification"))
				return
			}
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "user is not verified"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
