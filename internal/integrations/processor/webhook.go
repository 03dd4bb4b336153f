package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/xIfe3/swipline/internal/models"
)

// Вид события webhook-а. Непонятные типы не ошибка: процессинг шлёт
// больше, чем мы обрабатываем.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventIntentSucceeded
	EventIntentFailed
	EventIntentCreated
)

type Event struct {
	ID      string
	Kind    EventKind
	RawType string

	// IntentID — provider_ref платежа, к которому относится событие.
	IntentID string

	// Сводка способа оплаты из succeeded-события. Полных карточных
	// данных процессинг в webhook не кладёт, и мы их не храним.
	Method *models.PaymentMethod
}

// ErrInvalidSignature — подпись не сошлась или протухла. Такое событие
// не должно трогать состояние вообще.
var ErrInvalidSignature = errors.New("processor: invalid webhook signature")

const signatureVersion = "v1"

type eventPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentMethod *struct {
				Type string `json:"type"`
				Card *struct {
					Brand string `json:"brand"`
					Last4 string `json:"last4"`
				} `json:"card"`
			} `json:"payment_method"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent проверяет HMAC-подпись доставки и декодирует событие в
// размеченное объединение. Формат заголовка: "t=<unix>,v1=<hex hmac>",
// подписывается строка "<unix>.<payload>" общим секретом.
func ParseEvent(payload []byte, sigHeader, secret string, now time.Time, tolerance time.Duration) (Event, error) {
	ts, sigs, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return Event{}, ErrInvalidSignature
	}

	if tolerance > 0 {
		at := time.Unix(ts, 0)
		if at.Before(now.Add(-tolerance)) || at.After(now.Add(tolerance)) {
			return Event{}, ErrInvalidSignature
		}
	}

	expected := computeSignature(payload, secret, ts)
	ok := false
	for _, s := range sigs {
		if hmac.Equal([]byte(s), []byte(expected)) {
			ok = true
			break
		}
	}
	if !ok {
		return Event{}, ErrInvalidSignature
	}

	var raw eventPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, errors.Wrap(err, "decode webhook payload")
	}

	ev := Event{
		ID:       raw.ID,
		RawType:  raw.Type,
		IntentID: raw.Data.Object.ID,
	}

	switch raw.Type {
	case "payment_intent.succeeded":
		ev.Kind = EventIntentSucceeded
	case "payment_intent.payment_failed":
		ev.Kind = EventIntentFailed
	case "payment_intent.created":
		ev.Kind = EventIntentCreated
	default:
		ev.Kind = EventUnknown
	}

	if pm := raw.Data.Object.PaymentMethod; pm != nil {
		m := &models.PaymentMethod{Type: pm.Type}
		if pm.Card != nil {
			m.Brand = pm.Card.Brand
			m.Last4 = pm.Card.Last4
		}
		ev.Method = m
	}

	return ev, nil
}

// Sign выдаёт значение заголовка подписи для payload. Используется
// фейком процессинга и тестами.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,%s=%s", ts, signatureVersion, computeSignature(payload, secret, ts))
}

func computeSignature(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.", ts)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(h string) (int64, []string, error) {
	var ts int64 = -1
	var sigs []string
	for _, part := range strings.Split(h, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, err
			}
			ts = n
		case signatureVersion:
			sigs = append(sigs, v)
		}
	}
	if ts < 0 || len(sigs) == 0 {
		return 0, nil, errors.New("malformed signature header")
	}
	return ts, sigs, nil
}
