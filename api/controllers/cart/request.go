package cart

import "github.com/google/uuid"

type addItemRequest struct {
	SkuID    uuid.UUID `json:"sku_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,min=1,max=999"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=999"`
}

type mergeRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
}
