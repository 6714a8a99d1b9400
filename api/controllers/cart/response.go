package cart

import (
	"github.com/google/uuid"

	cartsvc "github.com/angelmondragon/marketplace-core/internal/cart"
)

type mutationView struct {
	ItemID    *uuid.UUID `json:"item_id,omitempty"`
	Quantity  int        `json:"quantity,omitempty"`
	Available int        `json:"available"`
	Removed   bool       `json:"removed,omitempty"`
}

type cartView struct {
	Summary    *cartsvc.Summary   `json:"cart"`
	Validation cartsvc.Validation `json:"validation"`
	Mutation   *mutationView      `json:"mutation,omitempty"`
}
