package enums

import "strings"

// PaymentMethod is the Midtrans payment_type recorded on payments and orders.
type PaymentMethod string

const (
	// PaymentMethodSnap marks a payment whose channel is not chosen yet.
	PaymentMethodSnap         PaymentMethod = "midtrans"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodEChannel     PaymentMethod = "echannel"
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodGoPay        PaymentMethod = "gopay"
	PaymentMethodShopeePay    PaymentMethod = "shopeepay"
	PaymentMethodQRIS         PaymentMethod = "qris"
	PaymentMethodCStore       PaymentMethod = "cstore"
	PaymentMethodOther        PaymentMethod = "other"
)

var gatewayPaymentMethods = map[PaymentMethod]struct{}{
	PaymentMethodBankTransfer: {},
	PaymentMethodEChannel:     {},
	PaymentMethodCreditCard:   {},
	PaymentMethodGoPay:        {},
	PaymentMethodShopeePay:    {},
	PaymentMethodQRIS:         {},
	PaymentMethodCStore:       {},
}

func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether p is a settled channel or the snap placeholder.
func (p PaymentMethod) IsValid() bool {
	if p == PaymentMethodSnap || p == PaymentMethodOther {
		return true
	}
	_, ok := gatewayPaymentMethods[p]
	return ok
}

// PaymentMethodFromGateway maps a notification payment_type onto a known
// channel. Empty input keeps the snap placeholder; unknown channels become other.
func PaymentMethodFromGateway(raw string) PaymentMethod {
	value := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return PaymentMethodSnap
	}
	if _, ok := gatewayPaymentMethods[value]; ok {
		return value
	}
	return PaymentMethodOther
}
