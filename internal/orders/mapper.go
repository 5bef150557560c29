package orders

// OrderStatusFor maps a delivery status to the order status it implies.
// The second result is false when the delivery status implies no change.
func OrderStatusFor(d DeliveryStatus) (Status, bool) {
	switch d {
	case DeliveryPending:
		return StatusPending, true
	case DeliveryAssigned:
		return StatusConfirmed, true
	case DeliveryPickedUp:
		return StatusPacked, true
	case DeliveryInTransit:
		return StatusShipped, true
	case DeliveryDelivered:
		return StatusDelivered, true
	case DeliveryFailed:
		return StatusCancelled, true
	}
	return "", false
}
