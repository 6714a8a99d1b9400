package enums

import "fmt"

// FraudStatus is the fraud screening verdict reported by the payment gateway.
type FraudStatus string

const (
	FraudStatusAccept    FraudStatus = "accept"
	FraudStatusChallenge FraudStatus = "challenge"
	FraudStatusDeny      FraudStatus = "deny"
)

var validFraudStatuses = []FraudStatus{
	FraudStatusAccept,
	FraudStatusChallenge,
	FraudStatusDeny,
}

// String implements fmt.Stringer.
func (f FraudStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FraudStatus.
func (f FraudStatus) IsValid() bool {
	for _, candidate := range validFraudStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFraudStatus converts raw input into a FraudStatus.
func ParseFraudStatus(value string) (FraudStatus, error) {
	for _, candidate := range validFraudStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fraud status %q", value)
}
