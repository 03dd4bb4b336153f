// Package httpx — общий JSON-конверт и маппинг ошибок на статусы для всех
// API-пакетов.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/xIfe3/swipline/internal/apperrors"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func WriteData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func WriteMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: true, Message: msg})
}

// WriteError переводит ошибку в статус по её виду. Внутренности наружу не
// уходят: клиент видит только PublicMessage.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusFor(apperrors.KindOf(err))
	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		if log == nil {
			log = slog.Default()
		}
		log.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, envelope{Success: false, Message: apperrors.PublicMessage(err)})
}

func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation, apperrors.KindPrecondition, apperrors.KindAuthentication:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

const maxBodyBytes = 1 << 20

// DecodeJSON читает тело запроса с лимитом в 1 МиБ.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Validationf("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
