package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/xIfe3/swipline/internal/apperrors"
	"github.com/xIfe3/swipline/internal/broker/messages"
	"github.com/xIfe3/swipline/internal/integrations/processor"
	"github.com/xIfe3/swipline/internal/models"
	"github.com/xIfe3/swipline/internal/storage/pgparcels"
)

type Repository interface {
	GetParcelByTrackingID(ctx context.Context, trackingID string) (*models.Parcel, error)
	GetParcelByID(ctx context.Context, id string) (*models.Parcel, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPaymentByID(ctx context.Context, id string) (*models.Payment, error)
	ApplyPaymentSucceeded(ctx context.Context, in pgparcels.PaymentSuccess) (pgparcels.PaymentApplyResult, error)
	ApplyPaymentFailed(ctx context.Context, providerRef string) (bool, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo      Repository
	processor processor.Client

	webhookSecret string
	tolerance     time.Duration
	currency      string

	producer Producer
	topic    string
	log      *slog.Logger

	refreshPublic func(ctx context.Context, trackingID string)
}

func New(repo Repository, pc processor.Client, webhookSecret, currency string, tolerance time.Duration, producer Producer, topic string, log *slog.Logger) *Service {
	if currency == "" {
		currency = "usd"
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:          repo,
		processor:     pc,
		webhookSecret: webhookSecret,
		tolerance:     tolerance,
		currency:      currency,
		producer:      producer,
		topic:         topic,
		log:           log,
	}
}

// WithPublicRefresh регистрирует обновление публичной трекинг-карточки
// после того, как вебхук пометил пошлину оплаченной. Без него /track до
// конца TTL отдаёт из кэша карточку, снятую до оплаты.
func (s *Service) WithPublicRefresh(f func(ctx context.Context, trackingID string)) *Service {
	s.refreshPublic = f
	return s
}

// CreatedPayment — локальная запись плюс client secret для подтверждения
// платежа на стороне клиента. Секрет у нас не хранится.
type CreatedPayment struct {
	Payment      *models.Payment
	ClientSecret string
}

func (s *Service) CreateBorderPayment(ctx context.Context, trackingID string) (*CreatedPayment, error) {
	p, err := s.repo.GetParcelByTrackingID(ctx, trackingID)
	if err == pgparcels.ErrNotFound {
		return nil, apperrors.NotFoundf("parcel %q not found", trackingID)
	}
	if err != nil {
		return nil, err
	}

	if p.BorderFeePaid {
		return nil, apperrors.Conflictf("border fee for parcel %s is already paid", trackingID)
	}
	if p.Status != models.StatusAtBorder {
		return nil, apperrors.Preconditionf("parcel %s is not at the border (status %s)", trackingID, p.Status)
	}

	amount := int64(math.Round(p.BorderFee * 100))
	intent, err := s.processor.CreateIntent(ctx, processor.CreateIntentInput{
		Amount:      amount,
		Currency:    s.currency,
		Description: fmt.Sprintf("Border fee for parcel %s", trackingID),
		Metadata: map[string]string{
			"tracking_id": trackingID,
			"parcel_id":   p.ID,
			"fee_type":    models.FeeTypeBorder,
		},
	})
	if err != nil {
		return nil, apperrors.Dependency(err, "payment processor unavailable")
	}

	pay := &models.Payment{
		ID:          uuid.NewString(),
		ParcelID:    p.ID,
		ProviderRef: intent.ID,
		FeeType:     models.FeeTypeBorder,
		Amount:      p.BorderFee,
		Currency:    s.currency,
		Status:      models.PaymentStatusPending,
		Metadata: map[string]string{
			"tracking_id": trackingID,
		},
	}
	if err := s.repo.CreatePayment(ctx, pay); err != nil {
		// Intent уже создан у провайдера; локальной записи нет, значит
		// вебхук по нему будет тихо заквитирован как неизвестный.
		s.log.Error("payment row not persisted for created intent", "provider_ref", intent.ID, "err", err)
		return nil, err
	}

	return &CreatedPayment{Payment: pay, ClientSecret: intent.ClientSecret}, nil
}

// HandleWebhook применяет событие от платёжного провайдера. Возврат nil
// означает "доставка заквитирована": провайдер не будет ретраить.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	ev, err := processor.ParseEvent(payload, sigHeader, s.webhookSecret, time.Now().UTC(), s.tolerance)
	if err != nil {
		if errors.Is(err, processor.ErrInvalidSignature) {
			return apperrors.Authenticationf("webhook signature verification failed")
		}
		return apperrors.Validationf("malformed webhook payload")
	}

	switch ev.Kind {
	case processor.EventIntentSucceeded:
		return s.applySucceeded(ctx, ev)

	case processor.EventIntentFailed:
		found, err := s.repo.ApplyPaymentFailed(ctx, ev.IntentID)
		if err != nil {
			return err
		}
		if !found {
			s.log.Info("failed intent does not match an open payment", "provider_ref", ev.IntentID)
		}
		return nil

	default:
		// intent.created и незнакомые типы квитируем молча: провайдер
		// шлёт больше, чем нам нужно.
		s.log.Debug("ignoring webhook event", "type", ev.RawType)
		return nil
	}
}

func (s *Service) applySucceeded(ctx context.Context, ev processor.Event) error {
	res, err := s.repo.ApplyPaymentSucceeded(ctx, pgparcels.PaymentSuccess{
		ProviderRef: ev.IntentID,
		CompletedAt: time.Now().UTC(),
		Method:      ev.Method,
	})
	if err != nil {
		return err
	}

	switch {
	case !res.Found:
		s.log.Info("webhook for unknown payment acked", "provider_ref", ev.IntentID)
	case res.AlreadyCompleted:
		s.log.Info("duplicate webhook delivery acked", "provider_ref", ev.IntentID)
	default:
		if res.FeeMarkedPaid && res.Parcel != nil && s.refreshPublic != nil {
			s.refreshPublic(ctx, res.Parcel.TrackingID)
		}
		if res.ParcelCleared {
			s.publishCleared(ctx, res.Parcel)
		}
	}
	return nil
}

type PaymentDetails struct {
	Payment *models.Payment
	Parcel  *models.Parcel
}

func (s *Service) GetPayment(ctx context.Context, id string) (*PaymentDetails, error) {
	// Не-UUID заведомо не наш идентификатор; наружу тот же 404.
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("payment %q not found", id)
	}
	pay, err := s.repo.GetPaymentByID(ctx, id)
	if err == pgparcels.ErrNotFound {
		return nil, apperrors.NotFoundf("payment %q not found", id)
	}
	if err != nil {
		return nil, err
	}
	parcel, err := s.repo.GetParcelByID(ctx, pay.ParcelID)
	if err != nil && err != pgparcels.ErrNotFound {
		return nil, err
	}
	return &PaymentDetails{Payment: pay, Parcel: parcel}, nil
}

func (s *Service) publishCleared(ctx context.Context, p *models.Parcel) {
	if s.producer == nil || s.topic == "" || p == nil {
		return
	}
	ev := messages.ParcelEvent{
		Kind:       messages.KindBorderFeePaid,
		OccurredAt: time.Now().UTC(),
		Parcel: messages.ParcelSnapshot{
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
		},
		NewStatus: p.Status,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(p.TrackingID), b); err != nil {
		s.log.Warn("publish border fee event failed", "tracking_id", p.TrackingID, "err", err)
	}
}
