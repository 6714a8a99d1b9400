package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

var (
	ErrMissingUser   = errors.New("user id is required")
	ErrMissingVendor = errors.New("vendor tokens require a vendor id")
)

// Identity is the authenticated actor behind a request. VendorID is set only
// for vendor actors.
type Identity struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
}

func (id Identity) Validate() error {
	if id.UserID == uuid.Nil {
		return ErrMissingUser
	}
	if !id.Role.IsValid() {
		return fmt.Errorf("invalid actor role %q", id.Role)
	}
	if id.Role == enums.ActorRoleVendor && id.VendorID == nil {
		return ErrMissingVendor
	}
	return nil
}

func (id Identity) IsOperator() bool {
	return id.Role == enums.ActorRoleOperator
}

// AccessTokenPayload is what a caller supplies when minting a token.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
	JTI      string
}

func (p AccessTokenPayload) identity() Identity {
	return Identity{UserID: p.UserID, Role: p.Role, VendorID: p.VendorID}
}

// AccessTokenClaims is the JWT body. The subject carries the user id.
type AccessTokenClaims struct {
	Role     enums.ActorRole `json:"role"`
	VendorID *uuid.UUID      `json:"vendor_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity resolves the claims into a validated actor.
func (c *AccessTokenClaims) Identity() (Identity, error) {
	if c == nil {
		return Identity{}, ErrMissingUser
	}
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("subject %q is not a user id: %w", c.Subject, err)
	}
	id := Identity{UserID: userID, Role: c.Role, VendorID: c.VendorID}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}
