package controllers

import (
	"net/http"

	"github.com/angelmondragon/festpos/api/middleware"
	"github.com/angelmondragon/festpos/api/responses"
	"github.com/angelmondragon/festpos/internal/users"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/logger"
)

// Me returns the signed-in user's profile, registering it on first call.
func Me(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.Me(r.Context(), userID, middleware.DisplayNameFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}
