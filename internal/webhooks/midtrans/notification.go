package midtranswebhook

import (
	"encoding/json"
	"strings"

	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
)

// Notification is the payment notification posted by the gateway.
type Notification struct {
	OrderID           string                  `json:"order_id"`
	TransactionStatus enums.TransactionStatus `json:"transaction_status"`
	FraudStatus       enums.FraudStatus       `json:"fraud_status"`
	TransactionID     string                  `json:"transaction_id"`
	StatusCode        string                  `json:"status_code"`
	GrossAmount       string                  `json:"gross_amount"`
	SignatureKey      string                  `json:"signature_key"`
	PaymentType       string                  `json:"payment_type"`
	Raw               json.RawMessage         `json:"-"`
}

// Decode parses a notification body. A missing order id is a hard input failure.
func Decode(payload []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Notification{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification payload")
	}
	n.OrderID = strings.TrimSpace(n.OrderID)
	if n.OrderID == "" {
		return Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification: missing order_id")
	}
	n.TransactionStatus = enums.TransactionStatus(strings.ToLower(strings.TrimSpace(string(n.TransactionStatus))))
	n.FraudStatus = enums.FraudStatus(strings.ToLower(strings.TrimSpace(string(n.FraudStatus))))
	n.Raw = append(json.RawMessage(nil), payload...)
	return n, nil
}

// DedupeKey identifies an exact redelivery of the same notification.
func (n Notification) DedupeKey() string {
	return n.OrderID + ":" + string(n.TransactionStatus) + ":" + n.TransactionID
}

// FraudAccepted treats an absent fraud verdict as accepted.
func (n Notification) FraudAccepted() bool {
	return n.FraudStatus == "" || n.FraudStatus == enums.FraudStatusAccept
}
