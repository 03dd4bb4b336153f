// Package notifier превращает события посылок из Kafka в письма. Отдельный
// процесс: почтовый провайдер медленный и не должен задерживать API.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xIfe3/swipline/internal/broker/messages"
	"github.com/xIfe3/swipline/internal/integrations/mailer"
	"github.com/xIfe3/swipline/internal/models"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Notifier struct {
	mailer mailer.Client
	rl     RateLimiter

	from                string
	perRecipientPerHour int64

	log *slog.Logger

	startedAtUnixNano int64
	lastEventUnixNano atomic.Int64
	totalEvents       atomic.Int64
	totalSent         atomic.Int64
	totalSkipped      atomic.Int64
	totalErrors       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(m mailer.Client, rl RateLimiter, from string, log *slog.Logger) *Notifier {
	if from == "" {
		from = "Swipline <updates@swipline.com>"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		mailer:              m,
		rl:                  rl,
		from:                from,
		perRecipientPerHour: 20,
		log:                 log,
		startedAtUnixNano:   time.Now().UTC().UnixNano(),
	}
}

func (n *Notifier) WithRecipientCap(perHour int64) *Notifier {
	if perHour > 0 {
		n.perRecipientPerHour = perHour
	}
	return n
}

type Stats struct {
	StartedAt    time.Time  `json:"startedAt"`
	LastEventAt  *time.Time `json:"lastEventAt,omitempty"`
	TotalEvents  int64      `json:"totalEvents"`
	TotalSent    int64      `json:"totalSent"`
	TotalSkipped int64      `json:"totalSkipped"`
	TotalErrors  int64      `json:"totalErrors"`
	LastError    string     `json:"lastError,omitempty"`
}

func (n *Notifier) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, n.startedAtUnixNano).UTC(),
		TotalEvents:  n.totalEvents.Load(),
		TotalSent:    n.totalSent.Load(),
		TotalSkipped: n.totalSkipped.Load(),
		TotalErrors:  n.totalErrors.Load(),
	}
	if v := n.lastEventUnixNano.Load(); v > 0 {
		t := time.Unix(0, v).UTC()
		st.LastEventAt = &t
	}
	n.lastErrorMu.Lock()
	st.LastError = n.lastError
	n.lastErrorMu.Unlock()
	return st
}

// Handle обрабатывает одно сообщение из топика. Ошибка наружу означает
// "не коммитить": Kafka доставит сообщение ещё раз.
func (n *Notifier) Handle(ctx context.Context, key, value []byte) error {
	n.totalEvents.Add(1)
	n.lastEventUnixNano.Store(time.Now().UTC().UnixNano())

	var ev messages.ParcelEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		// Битое сообщение ретраить бессмысленно.
		n.log.Error("drop malformed parcel event", "key", string(key), "err", err)
		n.totalSkipped.Add(1)
		return nil
	}

	var msgs []mailer.Message
	switch ev.Kind {
	case messages.KindParcelCreated:
		msgs = append(msgs, n.createdEmail(ev.Parcel))
	case messages.KindParcelStatusChanged:
		msgs = append(msgs, n.statusEmail(ev.Parcel, ev.NewStatus))
		if ev.NewStatus == models.StatusAtBorder && !ev.Parcel.BorderFeePaid {
			msgs = append(msgs, n.borderFeeReminderEmail(ev.Parcel))
		}
	case messages.KindBorderFeePaid:
		msgs = append(msgs, n.feePaidEmail(ev.Parcel))
	default:
		n.log.Warn("unknown parcel event kind", "kind", ev.Kind)
		n.totalSkipped.Add(1)
		return nil
	}

	for _, m := range msgs {
		if err := n.send(ctx, m); err != nil {
			n.totalErrors.Add(1)
			n.lastErrorMu.Lock()
			n.lastError = err.Error()
			n.lastErrorMu.Unlock()
			return err
		}
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, m mailer.Message) error {
	if len(m.To) == 0 || m.To[0] == "" {
		n.totalSkipped.Add(1)
		return nil
	}

	if n.rl != nil && n.perRecipientPerHour > 0 {
		key := fmt.Sprintf("rl:mail:%s:%s", strings.ToLower(m.To[0]), time.Now().UTC().Format("2006010215"))
		allowed, cnt, err := n.rl.Allow(ctx, key, n.perRecipientPerHour, 70*time.Minute)
		if err == nil && !allowed {
			n.log.Warn("mail cap reached for recipient", "to", m.To[0], "count", cnt)
			n.totalSkipped.Add(1)
			return nil
		}
		// Ошибка редиса не повод терять письмо.
	}

	if err := n.mailer.Send(ctx, m); err != nil {
		return err
	}
	n.totalSent.Add(1)
	return nil
}

var statusLine = map[string]string{
	models.StatusCollected:      "Your parcel has been collected",
	models.StatusInTransit:      "Your parcel is in transit",
	models.StatusAtBorder:       "Your parcel has reached border control",
	models.StatusBorderCleared:  "Your parcel has cleared customs",
	models.StatusOutForDelivery: "Your parcel is out for delivery",
	models.StatusDelivered:      "Your parcel has been delivered",
	models.StatusCancelled:      "Your parcel has been cancelled",
}

func (n *Notifier) createdEmail(p messages.ParcelSnapshot) mailer.Message {
	eta := ""
	if p.EstimatedDelivery != nil {
		eta = fmt.Sprintf("<p>Estimated delivery: <b>%s</b></p>", p.EstimatedDelivery.Format("January 2, 2006"))
	}
	return mailer.Message{
		From:    n.from,
		To:      []string{p.SenderEmail},
		Subject: fmt.Sprintf("Your Tracking ID: %s", p.TrackingID),
		HTML: fmt.Sprintf(
			"<h2>Parcel registered</h2><p>Hi %s,</p><p>Your parcel to %s is registered. Track it with <b>%s</b>.</p>%s",
			html.EscapeString(p.SenderName), html.EscapeString(p.RecipientName), p.TrackingID, eta,
		),
	}
}

func (n *Notifier) statusEmail(p messages.ParcelSnapshot, newStatus string) mailer.Message {
	line, ok := statusLine[newStatus]
	if !ok {
		line = "Your parcel status changed"
	}
	return mailer.Message{
		From:    n.from,
		To:      []string{p.RecipientEmail},
		Subject: fmt.Sprintf("%s: %s", line, p.TrackingID),
		HTML: fmt.Sprintf(
			"<h2>%s</h2><p>Hi %s,</p><p>Parcel <b>%s</b> is now <b>%s</b> at %s.</p>",
			line, html.EscapeString(p.RecipientName), p.TrackingID, newStatus, html.EscapeString(p.CurrentLocation),
		),
	}
}

func (n *Notifier) borderFeeReminderEmail(p messages.ParcelSnapshot) mailer.Message {
	return mailer.Message{
		From:    n.from,
		To:      []string{p.RecipientEmail},
		Subject: fmt.Sprintf("Border fee due for parcel %s", p.TrackingID),
		HTML: fmt.Sprintf(
			"<h2>Border fee required</h2><p>Hi %s,</p><p>Parcel <b>%s</b> is held at border control. "+
				"A fee of <b>$%.2f</b> must be paid before it can continue.</p>",
			html.EscapeString(p.RecipientName), p.TrackingID, p.BorderFee,
		),
	}
}

func (n *Notifier) feePaidEmail(p messages.ParcelSnapshot) mailer.Message {
	return mailer.Message{
		From:    n.from,
		To:      []string{p.RecipientEmail},
		Subject: fmt.Sprintf("Payment received: parcel %s cleared customs", p.TrackingID),
		HTML: fmt.Sprintf(
			"<h2>Border fee paid</h2><p>Hi %s,</p><p>We received your payment of <b>$%.2f</b>. "+
				"Parcel <b>%s</b> has cleared customs and is moving again.</p>",
			html.EscapeString(p.RecipientName), p.BorderFee, p.TrackingID,
		),
	}
}
