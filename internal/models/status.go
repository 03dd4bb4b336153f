package models

// Статусы посылки — закрытый набор, новые значения не принимаем с ручек.
const (
	StatusPending        = "pending"
	StatusCollected      = "collected"
	StatusInTransit      = "in_transit"
	StatusAtBorder       = "at_border"
	StatusBorderCleared  = "border_cleared"
	StatusOutForDelivery = "out_for_delivery"
	StatusDelivered      = "delivered"
	StatusCancelled      = "cancelled"
)

// statusRank задаёт порядок прямого маршрута. cancelled вне маршрута (-1).
var statusRank = map[string]int{
	StatusPending:        0,
	StatusCollected:      1,
	StatusInTransit:      2,
	StatusAtBorder:       3,
	StatusBorderCleared:  4,
	StatusOutForDelivery: 5,
	StatusDelivered:      6,
	StatusCancelled:      -1,
}

var notableStatuses = map[string]struct{}{
	StatusAtBorder:       {},
	StatusBorderCleared:  {},
	StatusOutForDelivery: {},
	StatusDelivered:      {},
}

func KnownStatus(s string) bool {
	_, ok := statusRank[s]
	return ok
}

// StatusRank returns the position of a status on the forward route and
// false for cancelled/unknown values.
func StatusRank(s string) (int, bool) {
	r, ok := statusRank[s]
	if !ok || r < 0 {
		return 0, false
	}
	return r, true
}

// NotableStatus reports whether a status change should be announced to
// the notification side.
func NotableStatus(s string) bool {
	_, ok := notableStatuses[s]
	return ok
}

func TerminalStatus(s string) bool {
	return s == StatusCancelled || s == StatusDelivered
}
