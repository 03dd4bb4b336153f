package payments_api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xIfe3/swipline/internal/api/httpx"
	"github.com/xIfe3/swipline/internal/apperrors"
	"github.com/xIfe3/swipline/internal/services/payments"
)

// SignatureHeader несёт подпись вебхука от процессинга.
const SignatureHeader = "Processor-Signature"

const maxWebhookBytes = 64 << 10

type Service interface {
	CreateBorderPayment(ctx context.Context, trackingID string) (*payments.CreatedPayment, error)
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error
	GetPayment(ctx context.Context, id string) (*payments.PaymentDetails, error)
}

type PaymentsAPI struct {
	svc Service
	log *slog.Logger
}

func New(svc Service, log *slog.Logger) *PaymentsAPI {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentsAPI{svc: svc, log: log}
}

func (a *PaymentsAPI) Routes(r chi.Router) {
	r.Post("/payments/border", a.createBorderPayment)
	r.Post("/payments/webhook", a.webhook)
	r.Get("/payments/{paymentId}", a.getPayment)
}

type createBorderPaymentRequest struct {
	TrackingID string `json:"trackingId"`
}

type createBorderPaymentResponse struct {
	PaymentID    string  `json:"paymentId"`
	TrackingID   string  `json:"trackingId"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	ClientSecret string  `json:"clientSecret"`
}

func (a *PaymentsAPI) createBorderPayment(w http.ResponseWriter, r *http.Request) {
	var req createBorderPaymentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, a.log, err)
		return
	}
	if req.TrackingID == "" {
		httpx.WriteError(w, a.log, apperrors.Validationf("trackingId is required"))
		return
	}

	got, err := a.svc.CreateBorderPayment(r.Context(), req.TrackingID)
	if err != nil {
		httpx.WriteError(w, a.log, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, createBorderPaymentResponse{
		PaymentID:    got.Payment.ID,
		TrackingID:   req.TrackingID,
		Amount:       got.Payment.Amount,
		Currency:     got.Payment.Currency,
		ClientSecret: got.ClientSecret,
	})
}

func (a *PaymentsAPI) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httpx.WriteError(w, a.log, apperrors.Validationf("unreadable webhook body"))
		return
	}

	if err := a.svc.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		httpx.WriteError(w, a.log, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]bool{"received": true})
}

type paymentResponse struct {
	ID          string     `json:"id"`
	ParcelID    string     `json:"parcelId"`
	TrackingID  string     `json:"trackingId,omitempty"`
	FeeType     string     `json:"feeType"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	CardBrand   string     `json:"cardBrand,omitempty"`
	CardLast4   string     `json:"cardLast4,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (a *PaymentsAPI) getPayment(w http.ResponseWriter, r *http.Request) {
	d, err := a.svc.GetPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		httpx.WriteError(w, a.log, err)
		return
	}

	resp := paymentResponse{
		ID:          d.Payment.ID,
		ParcelID:    d.Payment.ParcelID,
		FeeType:     d.Payment.FeeType,
		Amount:      d.Payment.Amount,
		Currency:    d.Payment.Currency,
		Status:      d.Payment.Status,
		CompletedAt: d.Payment.CompletedAt,
		CreatedAt:   d.Payment.CreatedAt,
	}
	if d.Parcel != nil {
		resp.TrackingID = d.Parcel.TrackingID
	}
	if m := d.Payment.Method; m != nil {
		resp.CardBrand = m.Brand
		resp.CardLast4 = m.Last4
	}
	httpx.WriteData(w, http.StatusOK, resp)
}
