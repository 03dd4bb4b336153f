// Публичный трекинг: без аутентификации и контактов; из денег наружу
// видна только пограничная пошлина.
package tracking_api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xIfe3/swipline/internal/api/httpx"
	"github.com/xIfe3/swipline/internal/services/parcels"
)

type Service interface {
	PublicTracking(ctx context.Context, trackingID string) (*parcels.PublicView, error)
}

type TrackingAPI struct {
	svc Service
	log *slog.Logger
}

func New(svc Service, log *slog.Logger) *TrackingAPI {
	if log == nil {
		log = slog.Default()
	}
	return &TrackingAPI{svc: svc, log: log}
}

func (a *TrackingAPI) Routes(r chi.Router) {
	r.Get("/track/{trackingId}", a.track)
}

func (a *TrackingAPI) track(w http.ResponseWriter, r *http.Request) {
	v, err := a.svc.PublicTracking(r.Context(), chi.URLParam(r, "trackingId"))
	if err != nil {
		httpx.WriteError(w, a.log, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, v)
}
