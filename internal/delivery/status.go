package delivery

import (
	"strings"
	"unicode"
)

// Milestone is a courier progress point that the order lifecycle cares about.
type Milestone string

const (
	MilestoneNone           Milestone = ""
	MilestonePickedUp       Milestone = "picked_up"
	MilestoneOutForDelivery Milestone = "out_for_delivery"
	MilestoneDelivered      Milestone = "delivered"
)

// MapStatus folds the dispatch service's free-form status strings into a
// milestone. Statuses without an order-level meaning map to MilestoneNone.
func MapStatus(status string) Milestone {
	switch compact(status) {
	case "pickedup", "pickup", "shipped", "intransit", "arrivedathub":
		return MilestonePickedUp
	case "outfordelivery", "ofd", "outfordeliver":
		return MilestoneOutForDelivery
	case "delivered", "completed":
		return MilestoneDelivered
	default:
		return MilestoneNone
	}
}

func compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
