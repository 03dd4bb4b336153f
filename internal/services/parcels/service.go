package parcels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xIfe3/swipline/internal/apperrors"
	"github.com/xIfe3/swipline/internal/broker/messages"
	"github.com/xIfe3/swipline/internal/cache"
	"github.com/xIfe3/swipline/internal/models"
	"github.com/xIfe3/swipline/internal/rates"
	"github.com/xIfe3/swipline/internal/storage/pgparcels"
	"github.com/xIfe3/swipline/internal/trackid"
)

type Repository interface {
	CreateParcel(ctx context.Context, p *models.Parcel, description string) error
	GetParcelByTrackingID(ctx context.Context, trackingID string) (*models.Parcel, error)
	ListHistory(ctx context.Context, parcelID string, limit, offset int) ([]*models.TrackingHistory, error)
	ApplyLocationUpdate(ctx context.Context, upd pgparcels.LocationUpdate) error
	ListPaymentsByParcel(ctx context.Context, parcelID string) ([]*models.Payment, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

const (
	// Сколько раз перегенерируем трек-номер при коллизии уникального индекса.
	maxIDAttempts = 5

	// Сколько раз перечитываем посылку при конкурентной записи.
	maxUpdateAttempts = 3

	initialLocation = "Warehouse - Origin"
)

type Service struct {
	repo      Repository
	rates     *rates.Calculator
	idgen     *trackid.Generator
	cache     cache.BytesCache
	publicTTL time.Duration
	producer  Producer
	topic     string
	log       *slog.Logger
}

func New(repo Repository, calc *rates.Calculator, idgen *trackid.Generator, c cache.BytesCache, publicTTL time.Duration, producer Producer, topic string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:      repo,
		rates:     calc,
		idgen:     idgen,
		cache:     c,
		publicTTL: publicTTL,
		producer:  producer,
		topic:     topic,
		log:       log,
	}
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validateCreateInput(in models.ParcelCreateInput) error {
	if strings.TrimSpace(in.SenderName) == "" {
		return apperrors.Validationf("senderName is required")
	}
	if !emailRe.MatchString(in.SenderEmail) {
		return apperrors.Validationf("senderEmail is invalid")
	}
	if strings.TrimSpace(in.RecipientName) == "" {
		return apperrors.Validationf("recipientName is required")
	}
	if !emailRe.MatchString(in.RecipientEmail) {
		return apperrors.Validationf("recipientEmail is invalid")
	}
	if strings.TrimSpace(in.RecipientAddress) == "" {
		return apperrors.Validationf("recipientAddress is required")
	}
	if strings.TrimSpace(in.DestinationCountry) == "" {
		return apperrors.Validationf("destinationCountry is required")
	}
	if in.Weight < 0.1 || in.Weight > 100 {
		return apperrors.Validationf("weight must be between 0.1 and 100 kg")
	}
	d := in.Dimensions
	if d.Length <= 0 || d.Width <= 0 || d.Height <= 0 {
		return apperrors.Validationf("dimensions must be positive")
	}
	if d.Unit != "cm" && d.Unit != "in" {
		return apperrors.Validationf("dimensions unit must be cm or in")
	}
	if len(in.Contents) == 0 {
		return apperrors.Validationf("contents is required")
	}
	for i, it := range in.Contents {
		if strings.TrimSpace(it.Description) == "" {
			return apperrors.Validationf("contents[%d].description is required", i)
		}
		if it.Quantity < 1 {
			return apperrors.Validationf("contents[%d].quantity must be at least 1", i)
		}
		if it.Value < 0 {
			return apperrors.Validationf("contents[%d].value must not be negative", i)
		}
	}
	return nil
}

func (s *Service) CreateParcel(ctx context.Context, in models.ParcelCreateInput) (*models.Parcel, error) {
	if err := validateCreateInput(in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	country := strings.ToUpper(strings.TrimSpace(in.DestinationCountry))
	eta := s.rates.EstimatedDelivery(now, country)

	p := &models.Parcel{
		ID:         uuid.NewString(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,

		SenderName:  strings.TrimSpace(in.SenderName),
		SenderEmail: in.SenderEmail,
		SenderPhone: in.SenderPhone,

		RecipientName:    strings.TrimSpace(in.RecipientName),
		RecipientEmail:   in.RecipientEmail,
		RecipientPhone:   in.RecipientPhone,
		RecipientAddress: strings.TrimSpace(in.RecipientAddress),

		DestinationCountry: country,

		Weight:     in.Weight,
		Dimensions: in.Dimensions,
		Contents:   in.Contents,

		Status:          models.StatusPending,
		CurrentLocation: initialLocation,

		ShippingCost: s.rates.ShippingCost(in.Weight, country),
		BorderFee:    s.rates.BorderFee(country),

		EstimatedDelivery: &eta,

		CreatedAt: now,
		UpdatedAt: now,
	}

	var err error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		p.TrackingID = s.idgen.NewID()
		err = s.repo.CreateParcel(ctx, p, "Parcel registered in system")
		if err == nil {
			break
		}
		if err != pgparcels.ErrTrackingIDTaken {
			return nil, err
		}
	}
	if err != nil {
		return nil, fmt.Errorf("tracking id space exhausted after %d attempts: %w", maxIDAttempts, err)
	}

	s.publish(ctx, messages.ParcelEvent{
		Kind:       messages.KindParcelCreated,
		OccurredAt: now,
		Parcel:     snapshot(p),
	})
	return p, nil
}

// ParcelDetails — полная запись для владельца: посылка, журнал и платежи.
type ParcelDetails struct {
	Parcel   *models.Parcel
	History  []*models.TrackingHistory
	Payments []*models.Payment
}

func (s *Service) GetByTrackingID(ctx context.Context, trackingID string) (*ParcelDetails, error) {
	p, err := s.getParcel(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListHistory(ctx, p.ID, 0, 0)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPaymentsByParcel(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &ParcelDetails{Parcel: p, History: history, Payments: payments}, nil
}

// PublicView — то, что видно по трек-номеру без аутентификации. Без
// контактов и стоимости доставки; пошлина и флаг её оплаты публичны,
// получатель по ним понимает, надо ли платить.
type PublicView struct {
	TrackingID         string               `json:"trackingId"`
	Status             string               `json:"status"`
	CurrentLocation    string               `json:"currentLocation"`
	Coordinates        *models.Coordinates  `json:"coordinates,omitempty"`
	DestinationCountry string               `json:"destinationCountry"`
	BorderFee          float64              `json:"borderFee"`
	BorderFeePaid      bool                 `json:"borderFeePaid"`
	EstimatedDelivery  *time.Time           `json:"estimatedDelivery,omitempty"`
	ActualDelivery     *time.Time           `json:"actualDelivery,omitempty"`
	History            []PublicHistoryEntry `json:"history"`
}

type PublicHistoryEntry struct {
	Status      string              `json:"status"`
	Location    string              `json:"location"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Description string              `json:"description,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

func (s *Service) PublicTracking(ctx context.Context, trackingID string) (*PublicView, error) {
	if !trackid.Valid(trackingID) {
		// Формат не наш — наружу такой же 404, как для незнакомого номера,
		// чтобы ручка не подсказывала перебор.
		return nil, apperrors.NotFoundf("parcel %q not found", trackingID)
	}

	if s.cache != nil && s.publicTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, publicKey(trackingID)); err == nil && ok {
			var v PublicView
			if json.Unmarshal(b, &v) == nil {
				return &v, nil
			}
		}
	}

	p, err := s.getParcel(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListHistory(ctx, p.ID, 0, 0)
	if err != nil {
		return nil, err
	}

	v := publicView(p, history)
	s.cachePublic(ctx, v)
	return v, nil
}

type UpdateLocationInput struct {
	Status      string
	Location    string
	Coordinates *models.Coordinates
	Description string
}

func (s *Service) UpdateLocation(ctx context.Context, trackingID string, in UpdateLocationInput) (*models.Parcel, error) {
	if !models.KnownStatus(in.Status) {
		return nil, apperrors.Validationf("unknown status %q", in.Status)
	}
	if strings.TrimSpace(in.Location) == "" {
		return nil, apperrors.Validationf("location is required")
	}
	if c := in.Coordinates; c != nil {
		if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
			return nil, apperrors.Validationf("coordinates out of range")
		}
	}

	var p *models.Parcel
	for attempt := 0; ; attempt++ {
		var err error
		p, err = s.getParcel(ctx, trackingID)
		if err != nil {
			return nil, err
		}

		if models.TerminalStatus(p.Status) {
			return nil, apperrors.Conflictf("parcel is %s and can no longer be updated", p.Status)
		}

		newRank, onRoute := models.StatusRank(in.Status)
		curRank, _ := models.StatusRank(p.Status)
		// Откат по маршруту после оплаты пошлины запрещён: платёж уже
		// привязан к факту прохождения границы.
		if onRoute && newRank >= 0 && newRank < curRank && p.BorderFeePaid {
			return nil, apperrors.Conflictf("cannot move parcel back to %s after border fee was paid", in.Status)
		}

		now := time.Now().UTC()
		upd := pgparcels.LocationUpdate{
			ParcelID:    p.ID,
			Version:     p.Version,
			Status:      in.Status,
			Location:    strings.TrimSpace(in.Location),
			Coordinates: in.Coordinates,
			Description: in.Description,
			OccurredAt:  now,
		}
		if in.Status == models.StatusDelivered && p.ActualDelivery == nil {
			upd.ActualDelivery = &now
		}

		err = s.repo.ApplyLocationUpdate(ctx, upd)
		if err == nil {
			break
		}
		if err != pgparcels.ErrVersionConflict || attempt+1 >= maxUpdateAttempts {
			return nil, err
		}
	}

	p, err := s.getParcel(ctx, trackingID)
	if err != nil {
		return nil, err
	}

	s.refreshPublic(ctx, p)

	if models.NotableStatus(p.Status) {
		s.publish(ctx, messages.ParcelEvent{
			Kind:       messages.KindParcelStatusChanged,
			OccurredAt: p.UpdatedAt,
			Parcel:     snapshot(p),
			NewStatus:  p.Status,
		})
	}
	return p, nil
}

func (s *Service) getParcel(ctx context.Context, trackingID string) (*models.Parcel, error) {
	p, err := s.repo.GetParcelByTrackingID(ctx, trackingID)
	if err == pgparcels.ErrNotFound {
		return nil, apperrors.NotFoundf("parcel %q not found", trackingID)
	}
	return p, err
}

func publicView(p *models.Parcel, history []*models.TrackingHistory) *PublicView {
	v := &PublicView{
		TrackingID:         p.TrackingID,
		Status:             p.Status,
		CurrentLocation:    p.CurrentLocation,
		Coordinates:        p.Coordinates,
		DestinationCountry: p.DestinationCountry,
		BorderFee:          p.BorderFee,
		BorderFeePaid:      p.BorderFeePaid,
		EstimatedDelivery:  p.EstimatedDelivery,
		ActualDelivery:     p.ActualDelivery,
		History:            make([]PublicHistoryEntry, 0, len(history)),
	}
	for _, h := range history {
		v.History = append(v.History, PublicHistoryEntry{
			Status:      h.Status,
			Location:    h.Location,
			Coordinates: h.Coordinates,
			Description: h.Description,
			CreatedAt:   h.CreatedAt,
		})
	}
	return v
}

// RefreshPublicTracking перечитывает посылку и перекладывает её публичную
// карточку в кэш. Дёргается платёжной стороной после прохождения границы.
func (s *Service) RefreshPublicTracking(ctx context.Context, trackingID string) {
	if s.cache == nil || s.publicTTL <= 0 {
		return
	}
	p, err := s.getParcel(ctx, trackingID)
	if err != nil {
		return
	}
	s.refreshPublic(ctx, p)
}

// refreshPublic перечитывает журнал и перекладывает публичную карточку в
// кэш, чтобы трекинг-страница не показывала устаревший статус весь TTL.
func (s *Service) refreshPublic(ctx context.Context, p *models.Parcel) {
	if s.cache == nil || s.publicTTL <= 0 {
		return
	}
	history, err := s.repo.ListHistory(ctx, p.ID, 0, 0)
	if err != nil {
		return
	}
	s.cachePublic(ctx, publicView(p, history))
}

func (s *Service) cachePublic(ctx context.Context, v *PublicView) {
	if s.cache == nil || s.publicTTL <= 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, publicKey(v.TrackingID), b, s.publicTTL)
}

func (s *Service) publish(ctx context.Context, ev messages.ParcelEvent) {
	if s.producer == nil || s.topic == "" {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(ev.Parcel.TrackingID), b); err != nil {
		s.log.Warn("publish parcel event failed", "kind", ev.Kind, "tracking_id", ev.Parcel.TrackingID, "err", err)
	}
}

func snapshot(p *models.Parcel) messages.ParcelSnapshot {
	return messages.ParcelSnapshot{
		TrackingID:         p.TrackingID,
		Status:             p.Status,
		CurrentLocation:    p.CurrentLocation,
		DestinationCountry: p.DestinationCountry,
		SenderName:         p.SenderName,
		SenderEmail:        p.SenderEmail,
		RecipientName:      p.RecipientName,
		RecipientEmail:     p.RecipientEmail,
		RecipientAddress:   p.RecipientAddress,
		BorderFee:          p.BorderFee,
		BorderFeePaid:      p.BorderFeePaid,
		EstimatedDelivery:  p.EstimatedDelivery,
	}
}

func publicKey(trackingID string) string {
	return fmt.Sprintf("parcel:%s:public", trackingID)
}
