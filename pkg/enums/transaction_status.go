package enums

import "fmt"

// TransactionStatus is the transaction_status reported by the payment gateway.
type TransactionStatus string

const (
	TransactionStatusCapture    TransactionStatus = "capture"
	TransactionStatusSettlement TransactionStatus = "settlement"
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusDeny       TransactionStatus = "deny"
	TransactionStatusCancel     TransactionStatus = "cancel"
	TransactionStatusExpire     TransactionStatus = "expire"
	TransactionStatusRefund     TransactionStatus = "refund"
	TransactionStatusAuthorize  TransactionStatus = "authorize"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusCapture,
	TransactionStatusSettlement,
	TransactionStatusPending,
	TransactionStatusDeny,
	TransactionStatusCancel,
	TransactionStatusExpire,
	TransactionStatusRefund,
	TransactionStatusAuthorize,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}

// IsSuccess reports whether funds were captured or settled.
func (t TransactionStatus) IsSuccess() bool {
	return t == TransactionStatusCapture || t == TransactionStatusSettlement
}

// IsFailure reports whether the gateway closed the transaction without payment.
func (t TransactionStatus) IsFailure() bool {
	return t == TransactionStatusDeny || t == TransactionStatusCancel || t == TransactionStatusExpire
}
