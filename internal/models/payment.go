package models

import "time"

const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

const (
	FeeTypeBorder   = "border_fee"
	FeeTypeShipping = "shipping_fee"
	FeeTypeTax      = "tax"
)

// PaymentMethod — то, что процессинг отдаёт о способе оплаты.
// Полные карточные данные сюда не попадают никогда.
type PaymentMethod struct {
	Type  string `json:"type"`
	Last4 string `json:"last4,omitempty"`
	Brand string `json:"brand,omitempty"`
}

// Payment — одна попытка собрать сбор через внешний процессинг.
// Финансовая запись: мутируется только reconciliation-ом, не удаляется.
type Payment struct {
	ID       string
	ParcelID string

	// Идентификатор intent-а на стороне процессинга, уникален в системе.
	ProviderRef string

	FeeType  string
	Amount   float64
	Currency string
	Status   string

	Method      *PaymentMethod
	Metadata    map[string]string
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
