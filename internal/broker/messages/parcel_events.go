package messages

import "time"

// Виды доменных событий посылки. Ядро только публикует их; доставкой
// уведомлений владеет notifier.
const (
	KindParcelCreated       = "parcel.created"
	KindParcelStatusChanged = "parcel.status_changed"
	KindBorderFeePaid       = "parcel.border_fee_paid"
)

// ParcelSnapshot — срез посылки на момент события. В письма попадают
// только эти поля, полную запись наружу не отдаём.
type ParcelSnapshot struct {
	TrackingID         string     `json:"tracking_id"`
	Status             string     `json:"status"`
	CurrentLocation    string     `json:"current_location"`
	DestinationCountry string     `json:"destination_country"`
	SenderName         string     `json:"sender_name"`
	SenderEmail        string     `json:"sender_email"`
	RecipientName      string     `json:"recipient_name"`
	RecipientEmail     string     `json:"recipient_email"`
	RecipientAddress   string     `json:"recipient_address"`
	BorderFee          float64    `json:"border_fee"`
	BorderFeePaid      bool       `json:"border_fee_paid"`
	EstimatedDelivery  *time.Time `json:"estimated_delivery,omitempty"`
}

type ParcelEvent struct {
	Kind       string         `json:"kind"`
	OccurredAt time.Time      `json:"occurred_at"`
	Parcel     ParcelSnapshot `json:"parcel"`

	// Для parcel.status_changed — новый статус, уже записанный в историю.
	NewStatus string `json:"new_status,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}
