package orders

import "testing"

func TestOrderStatusFor(t *testing.T) {
	tests := []struct {
		delivery DeliveryStatus
		want     Status
		ok       bool
	}{
		{DeliveryPending, StatusPending, true},
		{DeliveryAssigned, StatusConfirmed, true},
		{DeliveryPickedUp, StatusPacked, true},
		{DeliveryInTransit, StatusShipped, true},
		{DeliveryDelivered, StatusDelivered, true},
		{DeliveryFailed, StatusCancelled, true},
		{DeliveryStatus("lost_in_space"), "", false},
		{DeliveryStatus(""), "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.delivery), func(t *testing.T) {
			got, ok := OrderStatusFor(tt.delivery)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("OrderStatusFor(%q) = %q, %v; want %q, %v", tt.delivery, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEveryDeliveryStatusMapsToValidOrderStatus(t *testing.T) {
	for _, d := range []DeliveryStatus{DeliveryPending, DeliveryAssigned, DeliveryPickedUp, DeliveryInTransit, DeliveryDelivered, DeliveryFailed} {
		if !d.Valid() {
			t.Fatalf("%q should be valid", d)
		}
		st, ok := OrderStatusFor(d)
		if !ok || !st.Valid() {
			t.Fatalf("%q maps to invalid status %q", d, st)
		}
	}
}
