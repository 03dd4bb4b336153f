// Package processor describes the boundary with the external payment
// processor: opening payment intents and decoding its webhook events.
package processor

import "context"

type CreateIntentInput struct {
	// Amount в минорных единицах валюты (центах).
	Amount      int64
	Currency    string
	Description string

	// Metadata возвращается процессингом как есть; используем для
	// последующей сверки (parcel id, tracking id, тип сбора).
	Metadata map[string]string
}

// Intent — intent на стороне процессинга. ClientSecret уходит клиенту
// для завершения оплаты, ID кладём в payments.provider_ref.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

type Client interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error)
}
