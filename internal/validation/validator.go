package validation

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// New returns a validator with the order enum tags and the create-order
// struct rule registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("payment_method", func(fl validatorv10.FieldLevel) bool {
		return orders.PaymentMethod(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("payment_status", func(fl validatorv10.FieldLevel) bool {
		return orders.PaymentStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("delivery_status", func(fl validatorv10.FieldLevel) bool {
		return orders.DeliveryStatus(fl.Field().String()).Valid()
	})

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	return v
}

// createOrderStructValidation rejects requests whose total and totalAmount are
// both set but disagree (compared in cents).
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if req.Total == 0 || req.TotalAmount == 0 {
		return
	}
	if cents(req.Total) != cents(req.TotalAmount) {
		sl.ReportError(req.TotalAmount, "totalAmount", "TotalAmount", "total_match",
			fmt.Sprintf("totalAmount %.2f != total %.2f", req.TotalAmount, req.Total))
	}
}

func cents(v float64) int64 { return int64(math.Round(v * 100)) }
