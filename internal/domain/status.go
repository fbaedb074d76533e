package domain

import "strings"

// DeliveryStatus is the closed set of fulfilment states an order moves through.
type DeliveryStatus string

const (
	DeliveryStatusPending        DeliveryStatus = "PENDING"
	DeliveryStatusProcessing     DeliveryStatus = "PROCESSING"
	DeliveryStatusShipped        DeliveryStatus = "SHIPPED"
	DeliveryStatusInTransit      DeliveryStatus = "IN_TRANSIT"
	DeliveryStatusOutForDelivery DeliveryStatus = "OUT_FOR_DELIVERY"
	DeliveryStatusDelivered      DeliveryStatus = "DELIVERED"
	DeliveryStatusCancelled      DeliveryStatus = "CANCELLED"
	DeliveryStatusFailedDelivery DeliveryStatus = "FAILED_DELIVERY"
	DeliveryStatusReturned       DeliveryStatus = "RETURNED"
)

// deliveryTransitions is the single authoritative adjacency map for delivery
// states. Both the mutation path and any validation layer consult it through
// CanTransitionTo; the table is never duplicated elsewhere.
var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending:        {DeliveryStatusProcessing, DeliveryStatusCancelled},
	DeliveryStatusProcessing:     {DeliveryStatusShipped, DeliveryStatusCancelled},
	DeliveryStatusShipped:        {DeliveryStatusInTransit, DeliveryStatusFailedDelivery, DeliveryStatusCancelled},
	DeliveryStatusInTransit:      {DeliveryStatusOutForDelivery, DeliveryStatusFailedDelivery},
	DeliveryStatusOutForDelivery: {DeliveryStatusDelivered, DeliveryStatusFailedDelivery},
	DeliveryStatusDelivered:      {},
	DeliveryStatusFailedDelivery: {DeliveryStatusOutForDelivery, DeliveryStatusReturned},
	DeliveryStatusReturned:       {},
	DeliveryStatusCancelled:      {},
}

// CanonicalTimeline is the fixed customer-facing tracking sequence. Side
// branches (CANCELLED, FAILED_DELIVERY, RETURNED) and the intermediate transit
// states are deliberately omitted from this display.
var CanonicalTimeline = [4]DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusProcessing,
	DeliveryStatusShipped,
	DeliveryStatusDelivered,
}

// CanTransitionTo reports whether the state machine permits moving from s to
// target, regardless of actor.
func (s DeliveryStatus) CanTransitionTo(target DeliveryStatus) bool {
	next, ok := deliveryTransitions[s]
	if !ok {
		return false
	}
	for _, candidate := range next {
		if candidate == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s DeliveryStatus) Terminal() bool {
	next, ok := deliveryTransitions[s]
	return ok && len(next) == 0
}

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	_, ok := deliveryTransitions[s]
	return ok
}

// ParseDeliveryStatus normalises raw input into a DeliveryStatus.
func ParseDeliveryStatus(raw string) (DeliveryStatus, bool) {
	status := DeliveryStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", false
	}
	return status, true
}

// ParseTransactionType normalises raw input into a TransactionType.
func ParseTransactionType(raw string) (TransactionType, bool) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(raw))) {
	case TransactionTypeSale:
		return TransactionTypeSale, true
	case TransactionTypeExpense:
		return TransactionTypeExpense, true
	default:
		return "", false
	}
}
