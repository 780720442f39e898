package payment

import (
	"github.com/shopspring/decimal"

	"payportal/internal/portal"
)

// MinorUnits parses amount and returns it as a positive integer string.
// "50000" and "50000.00" are accepted, "0", "-1" and "12.5" are not.
func MinorUnits(amount string) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", Errorf(KindValidation, "payment.MinorUnits", "amount %q is not a number", amount)
	}
	if !d.IsPositive() {
		return "", Errorf(KindValidation, "payment.MinorUnits", "amount %q must be positive", amount)
	}
	if !d.IsInteger() {
		return "", Errorf(KindValidation, "payment.MinorUnits", "amount %q must be a whole number of minor units", amount)
	}
	return d.StringFixed(0), nil
}

// validateOrder runs the provider-independent checks before any network call.
func validateOrder(op string, req OrderRequest, maxOrderIDLen int) (string, error) {
	if !portal.ValidOrderID(req.OrderID, maxOrderIDLen) {
		return "", Errorf(KindValidation, op, "order id %q is not accepted by the provider", req.OrderID)
	}
	amount, err := MinorUnits(req.Amount)
	if err != nil {
		return "", err
	}
	return amount, nil
}

func validateOrderID(op, orderID string, maxOrderIDLen int) error {
	if !portal.ValidOrderID(orderID, maxOrderIDLen) {
		return Errorf(KindValidation, op, "order id %q is not accepted by the provider", orderID)
	}
	return nil
}
