package controllers

import (
	"net/http"

	"github.com/angelmondragon/festpos/api/responses"
	"github.com/angelmondragon/festpos/internal/dashboard"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/logger"
)

func Dashboard(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		totals, err := svc.Totals(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, totals)
	}
}
