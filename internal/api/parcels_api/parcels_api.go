package parcels_api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xIfe3/swipline/internal/api/httpx"
	"github.com/xIfe3/swipline/internal/models"
	"github.com/xIfe3/swipline/internal/services/parcels"
)

type Service interface {
	CreateParcel(ctx context.Context, in models.ParcelCreateInput) (*models.Parcel, error)
	GetByTrackingID(ctx context.Context, trackingID string) (*parcels.ParcelDetails, error)
	UpdateLocation(ctx context.Context, trackingID string, in parcels.UpdateLocationInput) (*models.Parcel, error)
}

type ParcelsAPI struct {
	svc Service
	log *slog.Logger
}

func New(svc Service, log *slog.Logger) *ParcelsAPI {
	if log == nil {
		log = slog.Default()
	}
	return &ParcelsAPI{svc: svc, log: log}
}

func (a *ParcelsAPI) Routes(r chi.Router) {
	r.Post("/parcels", a.createParcel)
	r.Get("/parcels/{trackingId}", a.getParcel)
	r.Put("/parcels/{trackingId}/location", a.updateLocation)
}

type contactDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type createParcelRequest struct {
	Sender struct {
		contactDTO
		AccountID *string `json:"accountId,omitempty"`
	} `json:"sender"`
	Recipient struct {
		contactDTO
		Address   string  `json:"address"`
		AccountID *string `json:"accountId,omitempty"`
	} `json:"recipient"`
	DestinationCountry string               `json:"destinationCountry"`
	Weight             float64              `json:"weight"`
	Dimensions         models.Dimensions    `json:"dimensions"`
	Contents           []models.ContentItem `json:"contents"`
}

type parcelDTO struct {
	ID                 string               `json:"id"`
	TrackingID         string               `json:"trackingId"`
	Sender             contactDTO           `json:"sender"`
	Recipient          contactDTO           `json:"recipient"`
	RecipientAddress   string               `json:"recipientAddress"`
	DestinationCountry string               `json:"destinationCountry"`
	Weight             float64              `json:"weight"`
	Dimensions         models.Dimensions    `json:"dimensions"`
	Contents           []models.ContentItem `json:"contents"`
	Status             string               `json:"status"`
	CurrentLocation    string               `json:"currentLocation"`
	Coordinates        *models.Coordinates  `json:"coordinates,omitempty"`
	ShippingCost       float64              `json:"shippingCost"`
	BorderFee          float64              `json:"borderFee"`
	BorderFeePaid      bool                 `json:"borderFeePaid"`
	EstimatedDelivery  *time.Time           `json:"estimatedDelivery,omitempty"`
	ActualDelivery     *time.Time           `json:"actualDelivery,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

type historyDTO struct {
	Status      string              `json:"status"`
	Location    string              `json:"location"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Description string              `json:"description,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

type paymentDTO struct {
	ID          string     `json:"id"`
	FeeType     string     `json:"feeType"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (a *ParcelsAPI) createParcel(w http.ResponseWriter, r *http.Request) {
	var req createParcelRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, a.log, err)
		return
	}

	p, err := a.svc.CreateParcel(r.Context(), models.ParcelCreateInput{
		SenderID:   req.Sender.AccountID,
		ReceiverID: req.Recipient.AccountID,

		SenderName:  req.Sender.Name,
		SenderEmail: req.Sender.Email,
		SenderPhone: req.Sender.Phone,

		RecipientName:    req.Recipient.Name,
		RecipientEmail:   req.Recipient.Email,
		RecipientPhone:   req.Recipient.Phone,
		RecipientAddress: req.Recipient.Address,

		DestinationCountry: req.DestinationCountry,
		Weight:             req.Weight,
		Dimensions:         req.Dimensions,
		Contents:           req.Contents,
	})
	if err != nil {
		httpx.WriteError(w, a.log, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, toParcelDTO(p))
}

func (a *ParcelsAPI) getParcel(w http.ResponseWriter, r *http.Request) {
	d, err := a.svc.GetByTrackingID(r.Context(), chi.URLParam(r, "trackingId"))
	if err != nil {
		httpx.WriteError(w, a.log, err)
		return
	}

	resp := struct {
		Parcel   parcelDTO    `json:"parcel"`
		History  []historyDTO `json:"history"`
		Payments []paymentDTO `json:"payments"`
	}{
		Parcel:   toParcelDTO(d.Parcel),
		History:  make([]historyDTO, 0, len(d.History)),
		Payments: make([]paymentDTO, 0, len(d.Payments)),
	}
	for _, h := range d.History {
		resp.History = append(resp.History, historyDTO{
			Status:      h.Status,
			Location:    h.Location,
			Coordinates: h.Coordinates,
			Description: h.Description,
			CreatedAt:   h.CreatedAt,
		})
	}
	for _, p := range d.Payments {
		resp.Payments = append(resp.Payments, paymentDTO{
			ID:          p.ID,
			FeeType:     p.FeeType,
			Amount:      p.Amount,
			Currency:    p.Currency,
			Status:      p.Status,
			CompletedAt: p.CompletedAt,
			CreatedAt:   p.CreatedAt,
		})
	}
	httpx.WriteData(w, http.StatusOK, resp)
}

type updateLocationRequest struct {
	Status      string              `json:"status"`
	Location    string              `json:"location"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Description string              `json:"description,omitempty"`
}

func (a *ParcelsAPI) updateLocation(w http.ResponseWriter, r *http.Request) {
	var req updateLocationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, a.log, err)
		return
	}

	p, err := a.svc.UpdateLocation(r.Context(), chi.URLParam(r, "trackingId"), parcels.UpdateLocationInput{
		Status:      req.Status,
		Location:    req.Location,
		Coordinates: req.Coordinates,
		Description: req.Description,
	})
	if err != nil {
		httpx.WriteError(w, a.log, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toParcelDTO(p))
}

func toParcelDTO(p *models.Parcel) parcelDTO {
	return parcelDTO{
		ID:         p.ID,
		TrackingID: p.TrackingID,
		Sender: contactDTO{
			Name:  p.SenderName,
			Email: p.SenderEmail,
			Phone: p.SenderPhone,
		},
		Recipient: contactDTO{
			Name:  p.RecipientName,
			Email: p.RecipientEmail,
			Phone: p.RecipientPhone,
		},
		RecipientAddress:   p.RecipientAddress,
		DestinationCountry: p.DestinationCountry,
		Weight:             p.Weight,
		Dimensions:         p.Dimensions,
		Contents:           p.Contents,
		Status:             p.Status,
		CurrentLocation:    p.CurrentLocation,
		Coordinates:        p.Coordinates,
		ShippingCost:       p.ShippingCost,
		BorderFee:          p.BorderFee,
		BorderFeePaid:      p.BorderFeePaid,
		EstimatedDelivery:  p.EstimatedDelivery,
		ActualDelivery:     p.ActualDelivery,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}
