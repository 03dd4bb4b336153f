package models

import "time"

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit"` // "cm" | "in"
}

type ContentItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Value       float64 `json:"value"`
}

type Parcel struct {
	ID         string
	TrackingID string

	// Ссылки на аккаунты опциональны; контакты всегда снапшотятся на момент
	// создания, чтобы история не менялась вслед за профилем.
	SenderID   *string
	ReceiverID *string

	SenderName  string
	SenderEmail string
	SenderPhone string

	RecipientName    string
	RecipientEmail   string
	RecipientPhone   string
	RecipientAddress string

	DestinationCountry string

	Weight     float64
	Dimensions Dimensions
	Contents   []ContentItem

	Status          string
	CurrentLocation string
	Coordinates     *Coordinates

	ShippingCost  float64
	BorderFee     float64
	BorderFeePaid bool

	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time

	Version   int64
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackingHistory — append-only запись журнала; никогда не
// редактируется и не удаляется.
type TrackingHistory struct {
	ID          uint64
	ParcelID    string
	Status      string
	Location    string
	Coordinates *Coordinates
	Description string
	CreatedAt   time.Time
}

type ParcelCreateInput struct {
	SenderID   *string
	ReceiverID *string

	SenderName  string
	SenderEmail string
	SenderPhone string

	RecipientName    string
	RecipientEmail   string
	RecipientPhone   string
	RecipientAddress string

	DestinationCountry string

	Weight     float64
	Dimensions Dimensions
	Contents   []ContentItem
}
