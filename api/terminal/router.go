// Package terminal serves the register's local cart screen API.
package terminal

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/festpos/api/middleware"
	"github.com/angelmondragon/festpos/api/responses"
	"github.com/angelmondragon/festpos/api/validators"
	"github.com/angelmondragon/festpos/internal/checkout"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/logger"
)

// Register is the controller surface the cart screen drives.
type Register interface {
	Adjust(productID string, delta int64) error
	Checkout(ctx context.Context) (string, error)
	Dismiss(key string) bool
	View() checkout.View
}

// Queue reports the local write backlog.
type Queue interface {
	PendingCount(ctx context.Context, collection string) (int, error)
}

func NewRouter(logg *logger.Logger, reg Register, queue Queue, gatherer prometheus.Gatherer, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(origins),
	)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/cart", getCart(reg))
	r.Put("/cart/items/{productId}", adjustItem(reg, logg))
	r.Post("/checkout", postCheckout(reg, logg))
	r.Delete("/notices/{key}", dismissNotice(reg, logg))
	r.Get("/sync", getSync(queue, logg))
	return r
}

func getCart(reg Register) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, reg.View())
	}
}

type adjustRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

func adjustItem(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productId")
		var payload adjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := reg.Adjust(productID, payload.Delta); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reg.View())
	}
}

type checkoutResponse struct {
	SaleID string        `json:"sale_id"`
	View   checkout.View `json:"view"`
}

// postCheckout answers 202: the sale is queued locally, not yet confirmed.
func postCheckout(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		saleID, err := reg.Checkout(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, checkoutResponse{SaleID: saleID, View: reg.View()})
	}
}

func dismissNotice(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !reg.Dismiss(chi.URLParam(r, "key")) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "notice not found"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getSync(queue Queue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := queue.PendingCount(r.Context(), "sales")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count queued sales"))
			return
		}
		responses.WriteSuccess(w, map[string]int{"queued_sales": count})
	}
}
